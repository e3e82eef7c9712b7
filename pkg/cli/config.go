package cli

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/amitripshtos/auditlife/pkg/adapter"
	"github.com/amitripshtos/auditlife/pkg/model"
	"github.com/amitripshtos/auditlife/pkg/repository"
)

// config holds configuration values
type config struct {
	// Transport
	telegramToken    string
	allowedOperators string

	// Repository
	project      string
	database     string
	schemaConfig string

	// Adapters
	geminiAPIKey string
	geminiModel  string
	audioBucket  string

	logLevel string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "telegram-token",
			Usage:       "Telegram bot token",
			Sources:     cli.EnvVars("TELEGRAM_BOT_TOKEN"),
			Destination: &cfg.telegramToken,
		},
		&cli.StringFlag{
			Name:        "allowed-operators",
			Usage:       "Comma-separated operator IDs allowed to use the bot",
			Sources:     cli.EnvVars("ALLOWED_OPERATOR_IDS"),
			Destination: &cfg.allowedOperators,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "schema-config",
			Usage:       "Path to a YAML file mapping store collections and the parent container",
			Sources:     cli.EnvVars("AUDITLIFE_SCHEMA_CONFIG"),
			Destination: &cfg.schemaConfig,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// llmFlags returns flags for AI provider configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Generative model used by all pipeline stages",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "audio-bucket",
			Usage:       "Cloud Storage bucket for raw voice note archiving (optional)",
			Sources:     cli.EnvVars("AUDIT_AUDIO_BUCKET"),
			Destination: &cfg.audioBucket,
		},
	}
}

// operatorIDs parses the comma-separated allow-set.
func (cfg *config) operatorIDs() ([]model.OperatorID, error) {
	value := strings.TrimSpace(cfg.allowedOperators)
	if value == "" {
		return nil, nil
	}

	var ids []model.OperatorID
	for _, item := range strings.Split(value, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(item), 10, 64)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid operator ID list", goerr.V("value", value))
		}
		ids = append(ids, model.OperatorID(id))
	}
	return ids, nil
}

// loadSchema reads the optional store schema file. Missing path means
// defaults.
func (cfg *config) loadSchema() (repository.Schema, error) {
	var schema repository.Schema
	if cfg.schemaConfig == "" {
		return schema, nil
	}

	data, err := os.ReadFile(cfg.schemaConfig)
	if err != nil {
		return schema, goerr.Wrap(err, "failed to read schema config", goerr.V("path", cfg.schemaConfig))
	}
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return schema, goerr.Wrap(err, "failed to parse schema config", goerr.V("path", cfg.schemaConfig))
	}
	return schema, nil
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	schema, err := cfg.loadSchema()
	if err != nil {
		return nil, err
	}

	repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database, schema)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiAPIKey == "" {
		return nil, goerr.New("gemini-api-key is required")
	}
	return adapter.NewGemini(ctx, cfg.geminiAPIKey, adapter.WithModel(cfg.geminiModel))
}

// newTelegram creates the chat transport
func (cfg *config) newTelegram() (*adapter.Telegram, error) {
	if cfg.telegramToken == "" {
		return nil, goerr.New("telegram-token is required")
	}
	return adapter.NewTelegram(cfg.telegramToken)
}

// newArchive creates the optional audio archive
func (cfg *config) newArchive(ctx context.Context) (adapter.Archive, error) {
	if cfg.audioBucket == "" {
		return nil, nil
	}
	archive, err := adapter.NewArchive(ctx, cfg.audioBucket)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create audio archive")
	}
	return archive, nil
}
