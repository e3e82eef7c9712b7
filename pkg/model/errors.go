package model

import "github.com/m-mizutani/goerr/v2"

// Error taxonomy of the orchestration core. Nothing here is retried
// automatically; every error is isolated to the handling path of the chat
// that triggered it.
var (
	// ErrNotAuthorized is returned when the operator is not in the allow-set.
	ErrNotAuthorized = goerr.New("operator is not authorized")

	// ErrBusy is returned when a chat already has an in-flight pipeline run
	// or an unresolved pending session.
	ErrBusy = goerr.New("chat has a pending run or unresolved session")

	// ErrEmptyInput is returned when the operator sends input with no content.
	ErrEmptyInput = goerr.New("input is empty")

	// Stage errors. A failure at any stage aborts the pipeline without
	// partial persistence.
	ErrTranscription = goerr.New("transcription failed")
	ErrTranslation   = goerr.New("translation failed")
	ErrExtraction    = goerr.New("fact extraction failed")
	ErrSummarization = goerr.New("summarization failed")

	// ErrFactWrite means the facts batch could not be persisted. The whole
	// pipeline is reported as failed even though the AI stages succeeded,
	// since fact persistence is the primary value of a run.
	ErrFactWrite = goerr.New("failed to write facts batch")

	// ErrAppend and ErrCreate mean the destination operation failed. The
	// session is preserved so the operator can retry the same choice.
	ErrAppend = goerr.New("failed to append summary to destination")
	ErrCreate = goerr.New("failed to create destination")

	// ErrInvalidForPhase means the inbound message does not match the shape
	// the current phase expects. The session is left unchanged.
	ErrInvalidForPhase = goerr.New("input does not match the current phase")
)
