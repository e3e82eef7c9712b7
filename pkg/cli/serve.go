package cli

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/amitripshtos/auditlife/pkg/model"
	"github.com/amitripshtos/auditlife/pkg/service/pipeline"
	"github.com/amitripshtos/auditlife/pkg/session"
	"github.com/amitripshtos/auditlife/pkg/usecase/conversation"
	"github.com/amitripshtos/auditlife/pkg/utils/logging"
)

func serveCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the bot against the Telegram long-polling API",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.New(cfg.logLevel, os.Stdout)
			logging.SetDefault(logger)
			ctx = logging.With(ctx, logger)

			operators, err := cfg.operatorIDs()
			if err != nil {
				return err
			}
			if len(operators) == 0 {
				logger.Warn("allowed-operators is empty, every message will be rejected")
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			transport, err := cfg.newTelegram()
			if err != nil {
				return err
			}

			archive, err := cfg.newArchive(ctx)
			if err != nil {
				return err
			}

			providers := pipeline.NewProvider(gemini)

			var opts []conversation.Option
			if archive != nil {
				opts = append(opts, conversation.WithArchive(archive))
			}

			uc := conversation.New(conversation.NewInput{
				Sessions:         session.New(),
				Repo:             repo,
				Chat:             transport,
				Transcriber:      providers,
				Translator:       providers,
				Extractor:        providers,
				Summarizer:       providers,
				AllowedOperators: operators,
			}, opts...)

			logger.Info("starting bot",
				"operators", len(operators),
				"model", cfg.geminiModel,
				"project", cfg.project,
			)

			return transport.Listen(ctx, func(ctx context.Context, msg *model.Inbound) {
				if err := uc.HandleMessage(ctx, msg); err != nil {
					logging.From(ctx).Error("failed to handle message",
						"error", err, "chat_id", msg.ChatID)
				}
			})
		},
	}
}
