package cli

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/amitripshtos/auditlife/pkg/utils/logging"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	if err := godotenv.Load(); err != nil {
		logging.Default().Debug("no .env file found, using environment variables")
	}

	cmd := &cli.Command{
		Name:  "auditlife",
		Usage: "Voice and text auditing bot with fact extraction",
		Commands: []*cli.Command{
			serveCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
