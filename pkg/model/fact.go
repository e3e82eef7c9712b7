package model

import (
	"github.com/m-mizutani/goerr/v2"
)

// Fact is a single extracted statement in subject-predicate-object form.
// Facts are immutable: they are written to the document store once, as a
// batch, and never updated.
type Fact struct {
	Subject    string `json:"subject" firestore:"subject"`
	Predicate  string `json:"predicate" firestore:"predicate"`
	Object     string `json:"object" firestore:"object"`
	Context    string `json:"context,omitempty" firestore:"context,omitempty"`
	SourceText string `json:"-" firestore:"source_text,omitempty"`
}

// Validate checks if the fact is well-formed. Predicate and object may be
// empty strings, subject may not.
func (f *Fact) Validate() error {
	if f.Subject == "" {
		return goerr.New("fact subject is empty")
	}
	return nil
}

// PipelineResult holds the output of a full pipeline run. It is transient
// and lives only as long as the session it populates.
type PipelineResult struct {
	EnglishText string
	Facts       []*Fact
	Summary     string
}
