package conversation

import (
	"context"
	"strings"

	"github.com/amitripshtos/auditlife/pkg/adapter"
	"github.com/amitripshtos/auditlife/pkg/model"
	"github.com/amitripshtos/auditlife/pkg/repository"
	"github.com/amitripshtos/auditlife/pkg/service/pipeline"
	"github.com/amitripshtos/auditlife/pkg/session"
	"github.com/amitripshtos/auditlife/pkg/utils/logging"
)

// Operator-visible messages.
const (
	msgNotAuthorized = "You are not authorized to use this bot."
	msgBusy          = "I'm still working on your previous input. Wait for it to finish, or send /reset to start over."
	msgWelcome       = "Hi! I'm AuditLife. Send me text or voice notes to process and document."
	msgReset         = "State has been reset. Any pending actions are cancelled."
	msgEmptyInput    = "There's nothing to process in that message."
	msgUseButtons    = "Please pick one of the buttons above, or send /reset to start over."
	msgNoPending     = "There's nothing pending for that choice. Send me new input to process."
	msgAskName       = "What should the new destination be called?"
	msgEmptyName     = "The name cannot be empty. Please send a name for the new destination."
	msgStaleChoice   = "That option is no longer valid. Pick one of the current buttons, or send /reset."
)

// UseCase is the conversational orchestration engine: authorization gate,
// pipeline coordinator and destination-resolution state machine for every
// chat. All collaborators are injected interfaces.
type UseCase struct {
	sessions *session.Store
	repo     repository.Repository
	chat     adapter.Chat

	transcriber pipeline.Transcriber
	translator  pipeline.Translator
	extractor   pipeline.Extractor
	summarizer  pipeline.Summarizer

	archive adapter.Archive
	allowed map[model.OperatorID]struct{}
}

// NewInput bundles the required collaborators of the engine.
type NewInput struct {
	Sessions *session.Store
	Repo     repository.Repository
	Chat     adapter.Chat

	Transcriber pipeline.Transcriber
	Translator  pipeline.Translator
	Extractor   pipeline.Extractor
	Summarizer  pipeline.Summarizer

	// AllowedOperators is the authorization allow-set. An empty set denies
	// everyone.
	AllowedOperators []model.OperatorID
}

// Option is a functional option for UseCase.
type Option func(*UseCase)

// WithArchive enables best-effort archiving of raw voice notes before
// transcription.
func WithArchive(archive adapter.Archive) Option {
	return func(u *UseCase) {
		u.archive = archive
	}
}

func New(input NewInput, opts ...Option) *UseCase {
	allowed := make(map[model.OperatorID]struct{}, len(input.AllowedOperators))
	for _, id := range input.AllowedOperators {
		allowed[id] = struct{}{}
	}

	u := &UseCase{
		sessions:    input.Sessions,
		repo:        input.Repo,
		chat:        input.Chat,
		transcriber: input.Transcriber,
		translator:  input.Translator,
		extractor:   input.Extractor,
		summarizer:  input.Summarizer,
		allowed:     allowed,
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// HandleMessage processes one inbound message end to end. Errors of the
// chat's own workflow are reported to the operator and not returned; the
// returned error covers only transport-level failures.
func (u *UseCase) HandleMessage(ctx context.Context, msg *model.Inbound) error {
	logger := logging.From(ctx).With("chat_id", msg.ChatID)
	ctx = logging.With(ctx, logger)

	if !u.authorized(msg.OperatorID) {
		// Log the identity only, never the payload.
		logger.Warn("rejecting message", "error", model.ErrNotAuthorized, "operator_id", msg.OperatorID)
		return u.chat.SendText(ctx, msg.ChatID, msgNotAuthorized)
	}

	switch msg.Kind {
	case model.KindCommand:
		return u.handleCommand(ctx, msg)
	case model.KindChoice:
		return u.handleChoice(ctx, msg)
	case model.KindText:
		return u.handleText(ctx, msg)
	case model.KindAudio:
		return u.runPipeline(ctx, msg)
	default:
		logger.Warn("ignoring message of unknown kind", "kind", msg.Kind)
		return nil
	}
}

func (u *UseCase) authorized(id model.OperatorID) bool {
	_, ok := u.allowed[id]
	return ok
}

func (u *UseCase) handleCommand(ctx context.Context, msg *model.Inbound) error {
	switch msg.Text {
	case "start":
		return u.chat.SendText(ctx, msg.ChatID, msgWelcome)
	case "reset":
		return u.apply(ctx, msg.ChatID, eventReset{})
	default:
		logging.From(ctx).Debug("unknown command", "command", msg.Text)
		return nil
	}
}

func (u *UseCase) handleText(ctx context.Context, msg *model.Inbound) error {
	text := strings.TrimSpace(msg.Text)

	if sess, ok := u.sessions.Get(msg.ChatID); ok {
		switch sess.Phase {
		case model.PhaseAwaitingName:
			return u.apply(ctx, msg.ChatID, eventSupplyName{Name: text})
		case model.PhaseAwaitingChoice:
			// Wrong input shape for the phase: feedback only, no transition.
			logging.From(ctx).Debug("ignoring free text", "error", model.ErrInvalidForPhase)
			return u.chat.SendText(ctx, msg.ChatID, msgUseButtons)
		}
	}

	if text == "" {
		logging.From(ctx).Debug("ignoring message", "error", model.ErrEmptyInput)
		return u.chat.SendText(ctx, msg.ChatID, msgEmptyInput)
	}
	return u.runPipeline(ctx, msg)
}

func (u *UseCase) handleChoice(ctx context.Context, msg *model.Inbound) error {
	sess, ok := u.sessions.Get(msg.ChatID)
	if !ok || sess.Phase != model.PhaseAwaitingChoice {
		return u.chat.SendText(ctx, msg.ChatID, msgNoPending)
	}

	switch {
	case msg.Choice == choiceCreateNew:
		return u.apply(ctx, msg.ChatID, eventSelectCreateNew{})
	case strings.HasPrefix(msg.Choice, choiceDestPrefix):
		id := strings.TrimPrefix(msg.Choice, choiceDestPrefix)
		return u.apply(ctx, msg.ChatID, eventSelectExisting{ID: id})
	default:
		logging.From(ctx).Warn("unknown choice value", "value", msg.Choice)
		return u.chat.SendText(ctx, msg.ChatID, msgStaleChoice)
	}
}
