package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/amitripshtos/auditlife/pkg/model"
	"github.com/amitripshtos/auditlife/pkg/utils/logging"
)

const transcriptPreviewLimit = 1000

// runPipeline is the pipeline coordinator: it turns raw input into a
// PipelineResult, persists the facts batch, and opens the destination
// resolution session. At most one run is in flight per chat; a second
// input, or input during an unresolved session, is rejected as busy.
func (u *UseCase) runPipeline(ctx context.Context, msg *model.Inbound) error {
	logger := logging.From(ctx)

	gen, ok := u.sessions.TryAcquire(msg.ChatID)
	if !ok {
		logger.Info("rejecting input", "error", model.ErrBusy)
		return u.chat.SendText(ctx, msg.ChatID, msgBusy)
	}
	defer u.sessions.Release(msg.ChatID)

	sourceText, result, err := u.process(ctx, msg)
	if err != nil {
		logger.Error("pipeline failed", "error", err)
		return u.chat.SendText(ctx, msg.ChatID, stageMessage(err))
	}

	// Facts persist before the resolution phase begins, so fact loss never
	// depends on the destination choice succeeding.
	if len(result.Facts) > 0 {
		for _, f := range result.Facts {
			f.SourceText = sourceText
		}
		if err := u.repo.PutFacts(ctx, result.Facts); err != nil {
			err = goerr.Wrap(model.ErrFactWrite, "facts batch rejected", goerr.V("cause", err))
			logger.Error("failed to persist facts", "error", err)
			return u.chat.SendText(ctx, msg.ChatID, stageMessage(err))
		}
		if err := u.chat.SendText(ctx, msg.ChatID,
			fmt.Sprintf("Recorded %d facts.", len(result.Facts))); err != nil {
			return err
		}
	} else {
		if err := u.chat.SendText(ctx, msg.ChatID, "No specific facts extracted."); err != nil {
			return err
		}
	}

	return u.beginResolution(ctx, msg.ChatID, gen, result.Summary)
}

// process sequences the AI stages. Each stage is a single external call
// with no retry here; the first failure aborts the run with a stage-tagged
// error. Returns the source text the facts are attributed to.
func (u *UseCase) process(ctx context.Context, msg *model.Inbound) (string, *model.PipelineResult, error) {
	logger := logging.From(ctx)

	text := msg.Text
	language := ""

	if msg.Kind == model.KindAudio {
		u.archiveAudio(ctx, msg)

		var err error
		text, language, err = u.transcriber.Transcribe(ctx, msg.Audio, msg.MIME)
		if err != nil {
			return "", nil, stageError(model.ErrTranscription, err)
		}
		logger.Debug("transcription complete", "language", language)

		preview := text
		if len(preview) > transcriptPreviewLimit {
			preview = preview[:transcriptPreviewLimit] + "..."
		}
		if err := u.chat.SendText(ctx, msg.ChatID, "Transcription:\n\n"+preview); err != nil {
			return "", nil, err
		}
	}

	english, err := u.translator.Translate(ctx, text, language)
	if err != nil {
		return "", nil, stageError(model.ErrTranslation, err)
	}

	facts, err := u.extractor.Extract(ctx, english)
	if err != nil {
		return "", nil, stageError(model.ErrExtraction, err)
	}

	summary, err := u.summarizer.Summarize(ctx, english)
	if err != nil {
		return "", nil, stageError(model.ErrSummarization, err)
	}

	return text, &model.PipelineResult{
		EnglishText: english,
		Facts:       facts,
		Summary:     summary,
	}, nil
}

// beginResolution opens the destination-resolution session for a completed
// run, unless the chat was reset while the run was in flight, in which case
// the result is discarded.
func (u *UseCase) beginResolution(ctx context.Context, chatID model.ChatID, gen uint64, summary string) error {
	logger := logging.From(ctx)

	candidates, err := u.repo.ListDestinations(ctx, summary)
	if err != nil {
		logger.Error("failed to list destinations", "error", err)
		return u.chat.SendText(ctx, chatID,
			"Your facts are saved, but I couldn't look up destinations for the summary. Send the input again to retry.")
	}

	sess := &model.Session{
		Summary:    summary,
		Candidates: candidates,
		CreatedAt:  time.Now(),
	}
	if len(candidates) == 0 {
		sess.Phase = model.PhaseAwaitingName
	} else {
		sess.Phase = model.PhaseAwaitingChoice
	}

	if !u.sessions.PutIfCurrent(chatID, gen, sess) {
		logger.Info("discarding pipeline result, chat was reset mid-flight")
		return nil
	}

	if sess.Phase == model.PhaseAwaitingName {
		return u.chat.SendText(ctx, chatID,
			"Here's the summary:\n\n"+summary+"\n\nThere are no destinations yet. "+msgAskName)
	}

	options := make([]model.Choice, 0, len(candidates)+1)
	for _, d := range candidates {
		options = append(options, model.Choice{
			Label: d.Name,
			Value: choiceDestPrefix + d.ID,
		})
	}
	options = append(options, model.Choice{
		Label: "Create a new destination",
		Value: choiceCreateNew,
	})

	prompt := "Here's the summary:\n\n" + summary + "\n\nWhere should I put it?"
	return u.chat.SendChoices(ctx, chatID, prompt, options)
}

// archiveAudio saves the raw voice note. Best effort only; failure never
// blocks transcription.
func (u *UseCase) archiveAudio(ctx context.Context, msg *model.Inbound) {
	if u.archive == nil {
		return
	}

	ext := "bin"
	if i := strings.LastIndex(msg.MIME, "/"); i >= 0 && i < len(msg.MIME)-1 {
		ext = msg.MIME[i+1:]
	}
	key := fmt.Sprintf("voice/%s/%s.%s", time.Now().UTC().Format("2006/01/02"), uuid.NewString(), ext)

	if err := u.archive.Save(ctx, key, msg.MIME, msg.Audio); err != nil {
		logging.From(ctx).Warn("failed to archive audio", "error", err, "key", key)
	}
}

// stageError tags a provider failure with its stage sentinel unless the
// provider already did.
func stageError(stage, err error) error {
	if errors.Is(err, stage) {
		return err
	}
	return goerr.Wrap(stage, "pipeline stage failed", goerr.V("cause", err))
}

// stageMessage maps a pipeline error to the generic operator-facing text.
func stageMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrTranscription):
		return "Sorry, processing failed at transcription. Please try again."
	case errors.Is(err, model.ErrTranslation):
		return "Sorry, processing failed at translation. Please try again."
	case errors.Is(err, model.ErrExtraction):
		return "Sorry, processing failed at fact extraction. Please try again."
	case errors.Is(err, model.ErrSummarization):
		return "Sorry, processing failed at summarization. Please try again."
	case errors.Is(err, model.ErrFactWrite):
		return "Sorry, I couldn't save the extracted facts. Nothing was stored; please try again."
	default:
		return "Sorry, something went wrong while processing. Please try again."
	}
}
