package model

import "time"

// Phase is the destination-resolution state of a chat.
type Phase string

const (
	// PhaseIdle means no pending summary. Idle chats have no Session at all;
	// the constant exists for reporting and tests.
	PhaseIdle Phase = "IDLE"

	// PhaseAwaitingChoice means candidates have been presented and the
	// operator must pick one or choose to create a new destination.
	PhaseAwaitingChoice Phase = "AWAITING_DESTINATION_CHOICE"

	// PhaseAwaitingName means the operator chose to create a new destination
	// and must supply its name as free text.
	PhaseAwaitingName Phase = "AWAITING_NEW_DESTINATION_NAME"
)

// Destination is a candidate document a summary can be appended to. The
// "create new" choice is a sentinel with Existing=false and no ID.
type Destination struct {
	ID       string `firestore:"-"`
	Name     string `firestore:"name"`
	Existing bool   `firestore:"-"`
}

// Session is the per-chat destination-resolution state. A chat has at most
// one Session at a time; a Session in an awaiting phase always carries a
// non-empty Summary. Sessions are treated as immutable values: transitions
// build a new Session and replace the old one atomically in the store.
type Session struct {
	Phase      Phase
	Summary    string
	Candidates []*Destination
	CreatedAt  time.Time
}

// Candidate returns the candidate with the given ID, or nil if the ID is
// not in the pending list.
func (s *Session) Candidate(id string) *Destination {
	for _, d := range s.Candidates {
		if d.ID == id {
			return d
		}
	}
	return nil
}
