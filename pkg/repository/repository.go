package repository

import (
	"context"

	"github.com/amitripshtos/auditlife/pkg/model"
)

// Repository is the structured document store boundary: fact persistence
// and destination documents that summaries are appended to.
type Repository interface {
	// PutFacts persists one batch of extracted facts. The write is
	// all-or-nothing; on error no fact of the batch is stored.
	PutFacts(ctx context.Context, facts []*model.Fact) error

	// ListDestinations returns ranked candidate destinations for a summary.
	// The ranking strategy is the store's capability, not core logic.
	ListDestinations(ctx context.Context, summary string) ([]*model.Destination, error)

	// AppendToDestination appends a summary entry to an existing destination.
	AppendToDestination(ctx context.Context, id, summary string) error

	// CreateDestination creates a destination with the given name under the
	// configured parent container and returns its ID.
	CreateDestination(ctx context.Context, name string) (string, error)
}
