package conversation

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/amitripshtos/auditlife/pkg/model"
	"github.com/amitripshtos/auditlife/pkg/utils/logging"
)

// Opaque values carried by choice buttons.
const (
	choiceDestPrefix = "dest:"
	choiceCreateNew  = "create_new"
)

// The destination-resolution state machine is driven by typed events, one
// per operator action. Dispatch validates the phase before emitting an
// event, so apply only deals with legal phase/event pairs plus store
// failures.
type event interface {
	isEvent()
}

type eventSelectExisting struct{ ID string }
type eventSelectCreateNew struct{}
type eventSupplyName struct{ Name string }
type eventReset struct{}

func (eventSelectExisting) isEvent()  {}
func (eventSelectCreateNew) isEvent() {}
func (eventSupplyName) isEvent()      {}
func (eventReset) isEvent()           {}

func (u *UseCase) apply(ctx context.Context, chatID model.ChatID, ev event) error {
	switch ev := ev.(type) {
	case eventReset:
		return u.applyReset(ctx, chatID)
	case eventSelectExisting:
		return u.applySelectExisting(ctx, chatID, ev.ID)
	case eventSelectCreateNew:
		return u.applySelectCreateNew(ctx, chatID)
	case eventSupplyName:
		return u.applySupplyName(ctx, chatID, ev.Name)
	default:
		return goerr.New("unhandled event type")
	}
}

// applyReset unconditionally clears the session regardless of phase.
// Idempotent when the chat is already idle. A pipeline run in flight is not
// interrupted; its result is discarded on completion.
func (u *UseCase) applyReset(ctx context.Context, chatID model.ChatID) error {
	u.sessions.Reset(chatID)
	logging.From(ctx).Info("session reset")
	return u.chat.SendText(ctx, chatID, msgReset)
}

// applySelectExisting appends the pending summary to the chosen destination
// and returns the chat to idle. On a store failure the session is kept so
// the operator can retry the same choice.
func (u *UseCase) applySelectExisting(ctx context.Context, chatID model.ChatID, id string) error {
	sess, ok := u.sessions.Get(chatID)
	if !ok {
		return u.chat.SendText(ctx, chatID, msgNoPending)
	}

	dest := sess.Candidate(id)
	if dest == nil {
		// Stale or forged callback value; session unchanged.
		logging.From(ctx).Warn("selected destination not in pending candidates", "id", id)
		return u.chat.SendText(ctx, chatID, msgStaleChoice)
	}

	if err := u.repo.AppendToDestination(ctx, dest.ID, sess.Summary); err != nil {
		err = goerr.Wrap(model.ErrAppend, "append rejected", goerr.V("cause", err), goerr.V("destination", dest.ID))
		logging.From(ctx).Error("failed to append summary", "error", err)
		return u.chat.SendText(ctx, chatID,
			"Failed to add the summary to '"+dest.Name+"'. Pick again to retry, or send /reset.")
	}

	u.sessions.Delete(chatID)
	return u.chat.SendText(ctx, chatID, "Summary added to '"+dest.Name+"'.")
}

// applySelectCreateNew keeps the summary, drops the candidate list, and
// waits for the operator to name the new destination.
func (u *UseCase) applySelectCreateNew(ctx context.Context, chatID model.ChatID) error {
	sess, ok := u.sessions.Get(chatID)
	if !ok {
		return u.chat.SendText(ctx, chatID, msgNoPending)
	}

	u.sessions.Put(chatID, &model.Session{
		Phase:     model.PhaseAwaitingName,
		Summary:   sess.Summary,
		CreatedAt: sess.CreatedAt,
	})
	return u.chat.SendText(ctx, chatID, msgAskName)
}

// applySupplyName creates the destination under the configured parent
// container, appends the summary, and returns to idle. Store failures keep
// the session for a retry with the same or another name.
func (u *UseCase) applySupplyName(ctx context.Context, chatID model.ChatID, name string) error {
	sess, ok := u.sessions.Get(chatID)
	if !ok {
		return u.chat.SendText(ctx, chatID, msgNoPending)
	}

	if name == "" {
		return u.chat.SendText(ctx, chatID, msgEmptyName)
	}

	id, err := u.repo.CreateDestination(ctx, name)
	if err != nil {
		err = goerr.Wrap(model.ErrCreate, "create rejected", goerr.V("cause", err), goerr.V("name", name))
		logging.From(ctx).Error("failed to create destination", "error", err)
		return u.chat.SendText(ctx, chatID,
			"Failed to create '"+name+"'. Send a name again to retry, or /reset.")
	}

	if err := u.repo.AppendToDestination(ctx, id, sess.Summary); err != nil {
		err = goerr.Wrap(model.ErrAppend, "append rejected", goerr.V("cause", err), goerr.V("destination", id))
		logging.From(ctx).Error("failed to append summary to new destination", "error", err)
		return u.chat.SendText(ctx, chatID,
			"Created '"+name+"' but failed to add the summary. Send the name again to retry, or /reset.")
	}

	u.sessions.Delete(chatID)
	return u.chat.SendText(ctx, chatID, "Created '"+name+"' and added the summary.")
}
