package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/amitripshtos/auditlife/pkg/model"
)

// Schema maps the logical store onto Firestore collection and document
// names. Zero values fall back to the defaults below.
type Schema struct {
	FactsCollection        string `yaml:"facts_collection"`
	DestinationsCollection string `yaml:"destinations_collection"`
	EntriesCollection      string `yaml:"entries_collection"`
	ParentContainerID      string `yaml:"parent_container_id"`
	CandidateLimit         int    `yaml:"candidate_limit"`
}

func (s *Schema) applyDefaults() {
	if s.FactsCollection == "" {
		s.FactsCollection = "facts"
	}
	if s.DestinationsCollection == "" {
		s.DestinationsCollection = "destinations"
	}
	if s.EntriesCollection == "" {
		s.EntriesCollection = "entries"
	}
	if s.CandidateLimit <= 0 {
		s.CandidateLimit = 5
	}
}

// firestoreRepo implements Repository on Firestore.
type firestoreRepo struct {
	client *firestore.Client
	schema Schema
}

// NewFirestore creates a Firestore-backed repository.
func NewFirestore(ctx context.Context, projectID, databaseID string, schema Schema) (Repository, error) {
	schema.applyDefaults()

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}

	return &firestoreRepo{
		client: client,
		schema: schema,
	}, nil
}

type factDoc struct {
	Subject    string    `firestore:"subject"`
	Predicate  string    `firestore:"predicate"`
	Object     string    `firestore:"object"`
	Context    string    `firestore:"context,omitempty"`
	SourceText string    `firestore:"source_text,omitempty"`
	CreatedAt  time.Time `firestore:"created_at"`
}

type destinationDoc struct {
	Name      string    `firestore:"name"`
	Parent    string    `firestore:"parent,omitempty"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type entryDoc struct {
	Text      string    `firestore:"text"`
	CreatedAt time.Time `firestore:"created_at"`
}

func (r *firestoreRepo) PutFacts(ctx context.Context, facts []*model.Fact) error {
	if len(facts) == 0 {
		return nil
	}

	now := time.Now()
	batch := r.client.Batch()
	for _, fact := range facts {
		if err := fact.Validate(); err != nil {
			return goerr.Wrap(err, "invalid fact in batch")
		}
		ref := r.client.Collection(r.schema.FactsCollection).NewDoc()
		batch.Create(ref, &factDoc{
			Subject:    fact.Subject,
			Predicate:  fact.Predicate,
			Object:     fact.Object,
			Context:    fact.Context,
			SourceText: fact.SourceText,
			CreatedAt:  now,
		})
	}

	if _, err := batch.Commit(ctx); err != nil {
		return goerr.Wrap(err, "failed to commit facts batch", goerr.V("count", len(facts)))
	}
	return nil
}

// ListDestinations ranks candidates by recency of their last entry, the
// same ordering the store uses for its own views.
func (r *firestoreRepo) ListDestinations(ctx context.Context, summary string) ([]*model.Destination, error) {
	iter := r.client.Collection(r.schema.DestinationsCollection).
		OrderBy("updated_at", firestore.Desc).
		Limit(r.schema.CandidateLimit).
		Documents(ctx)
	defer iter.Stop()

	var dests []*model.Destination
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list destinations")
		}

		var d destinationDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to decode destination", goerr.V("id", doc.Ref.ID))
		}
		dests = append(dests, &model.Destination{
			ID:       doc.Ref.ID,
			Name:     d.Name,
			Existing: true,
		})
	}
	return dests, nil
}

func (r *firestoreRepo) AppendToDestination(ctx context.Context, id, summary string) error {
	destRef := r.client.Collection(r.schema.DestinationsCollection).Doc(id)
	entryRef := destRef.Collection(r.schema.EntriesCollection).NewDoc()
	now := time.Now()

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(destRef); err != nil {
			return goerr.Wrap(err, "destination not found", goerr.V("id", id))
		}
		if err := tx.Create(entryRef, &entryDoc{Text: summary, CreatedAt: now}); err != nil {
			return err
		}
		return tx.Update(destRef, []firestore.Update{
			{Path: "updated_at", Value: now},
		})
	})
	if err != nil {
		return goerr.Wrap(err, "failed to append to destination", goerr.V("id", id))
	}
	return nil
}

func (r *firestoreRepo) CreateDestination(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", goerr.New("destination name is empty")
	}

	now := time.Now()
	ref := r.client.Collection(r.schema.DestinationsCollection).Doc(uuid.NewString())
	if _, err := ref.Create(ctx, &destinationDoc{
		Name:      name,
		Parent:    r.schema.ParentContainerID,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to create destination", goerr.V("name", name))
	}
	return ref.ID, nil
}
