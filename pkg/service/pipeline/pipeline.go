package pipeline

import (
	"context"

	"github.com/amitripshtos/auditlife/pkg/model"
)

// The four capability providers consumed by the pipeline coordinator. Each
// is a single external call; retries and timeouts are the provider's
// concern, never the coordinator's.

// Transcriber converts an audio blob into text, reporting the language the
// backend detected. The language is a hint downstream, never a guarantee.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (text, language string, err error)
}

// Translator renders text into English. It must be an idempotent no-op on
// text that is already English.
type Translator interface {
	Translate(ctx context.Context, text, languageHint string) (string, error)
}

// Extractor pulls subject-predicate-object facts out of English text. Zero
// facts is a valid, non-error result.
type Extractor interface {
	Extract(ctx context.Context, englishText string) ([]*model.Fact, error)
}

// Summarizer produces a concise summary of English text.
type Summarizer interface {
	Summarize(ctx context.Context, englishText string) (string, error)
}
