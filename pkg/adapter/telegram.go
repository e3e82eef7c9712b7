package adapter

import (
	"context"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/amitripshtos/auditlife/pkg/model"
	"github.com/amitripshtos/auditlife/pkg/utils/logging"
)

// Chat is the outbound side of the transport: plain text messages and
// interactive choice prompts. The transport returns the chosen opaque value
// through the inbound handler.
type Chat interface {
	SendText(ctx context.Context, chatID model.ChatID, text string) error
	SendChoices(ctx context.Context, chatID model.ChatID, prompt string, options []model.Choice) error
}

// Handler receives one normalized inbound message.
type Handler func(ctx context.Context, msg *model.Inbound)

// Telegram implements Chat and long-polling message delivery on the Bot API.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

func NewTelegram(token string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create telegram bot")
	}
	return &Telegram{bot: bot}, nil
}

func (t *Telegram) SendText(ctx context.Context, chatID model.ChatID, text string) error {
	msg := tgbotapi.NewMessage(int64(chatID), text)
	if _, err := t.bot.Send(msg); err != nil {
		return goerr.Wrap(err, "failed to send message", goerr.V("chat_id", chatID))
	}
	return nil
}

func (t *Telegram) SendChoices(ctx context.Context, chatID model.ChatID, prompt string, options []model.Choice) error {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(options))
	for _, opt := range options {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(opt.Label, opt.Value),
		))
	}

	msg := tgbotapi.NewMessage(int64(chatID), prompt)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := t.bot.Send(msg); err != nil {
		return goerr.Wrap(err, "failed to send choice prompt", goerr.V("chat_id", chatID))
	}
	return nil
}

// Listen long-polls the Bot API and dispatches each update to the handler
// in its own goroutine. It returns when the context is cancelled.
func (t *Telegram) Listen(ctx context.Context, handler Handler) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := t.bot.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return ctx.Err()

		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, err := t.normalize(update)
			if err != nil {
				logging.From(ctx).Warn("dropping unusable update", "error", err)
				continue
			}
			if msg == nil {
				continue
			}
			if update.CallbackQuery != nil {
				// Acknowledge the button press so the client stops spinning.
				if _, err := t.bot.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, "")); err != nil {
					logging.From(ctx).Warn("failed to answer callback query", "error", err)
				}
			}
			go handler(ctx, msg)
		}
	}
}

// normalize converts a raw update into the inbound message contract. Returns
// (nil, nil) for update types the system does not consume.
func (t *Telegram) normalize(update tgbotapi.Update) (*model.Inbound, error) {
	if q := update.CallbackQuery; q != nil {
		if q.Message == nil {
			return nil, goerr.New("callback query without message")
		}
		return &model.Inbound{
			ChatID:     model.ChatID(q.Message.Chat.ID),
			OperatorID: model.OperatorID(q.From.ID),
			Kind:       model.KindChoice,
			Choice:     q.Data,
		}, nil
	}

	m := update.Message
	if m == nil || m.From == nil {
		return nil, nil
	}

	inbound := &model.Inbound{
		ChatID:     model.ChatID(m.Chat.ID),
		OperatorID: model.OperatorID(m.From.ID),
	}

	switch {
	case m.IsCommand():
		inbound.Kind = model.KindCommand
		inbound.Text = m.Command()

	case m.Voice != nil:
		data, err := t.download(m.Voice.FileID)
		if err != nil {
			return nil, err
		}
		inbound.Kind = model.KindAudio
		inbound.Audio = data
		inbound.MIME = m.Voice.MimeType
		if inbound.MIME == "" {
			inbound.MIME = "audio/ogg"
		}

	case m.Audio != nil:
		data, err := t.download(m.Audio.FileID)
		if err != nil {
			return nil, err
		}
		inbound.Kind = model.KindAudio
		inbound.Audio = data
		inbound.MIME = m.Audio.MimeType

	case m.Text != "":
		inbound.Kind = model.KindText
		inbound.Text = m.Text

	default:
		return nil, nil
	}

	return inbound, nil
}

func (t *Telegram) download(fileID string) ([]byte, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve file URL", goerr.V("file_id", fileID))
	}

	resp, err := http.Get(url)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to download file", goerr.V("file_id", fileID))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("unexpected status downloading file",
			goerr.V("file_id", fileID), goerr.V("status", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read file body", goerr.V("file_id", fileID))
	}
	return data, nil
}
