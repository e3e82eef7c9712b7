package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/amitripshtos/auditlife/pkg/model"
	"github.com/amitripshtos/auditlife/pkg/repository"
)

// Integration tests against a real Firestore database. Skipped unless the
// test project is configured.
func setupRepo(t *testing.T) repository.Repository {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.NewFirestore(context.Background(), projectID, databaseID, repository.Schema{
		FactsCollection:        "test_facts",
		DestinationsCollection: "test_destinations",
	})
	gt.NoError(t, err)

	return repo
}

func TestFirestorePutFacts(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	facts := []*model.Fact{
		{
			Subject:    "Alice",
			Predicate:  "works at",
			Object:     "Acme Corp",
			Context:    "Met Alice, she works at Acme Corp",
			SourceText: "Met Alice, she works at Acme Corp",
		},
		{
			Subject: "Bob",
		},
	}

	gt.NoError(t, repo.PutFacts(ctx, facts))
}

func TestFirestorePutFactsRejectsInvalidBatch(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	err := repo.PutFacts(ctx, []*model.Fact{{Subject: ""}})
	gt.Error(t, err)
}

func TestFirestoreDestinationLifecycle(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	name := fmt.Sprintf("Trip Notes %d", time.Now().UnixNano())
	id, err := repo.CreateDestination(ctx, name)
	gt.NoError(t, err)
	gt.NotEqual(t, id, "")

	gt.NoError(t, repo.AppendToDestination(ctx, id, "Met Alice from Acme Corp"))

	dests, err := repo.ListDestinations(ctx, "Met Alice from Acme Corp")
	gt.NoError(t, err)

	found := false
	for _, d := range dests {
		if d.ID == id {
			found = true
			gt.Equal(t, d.Name, name)
			gt.True(t, d.Existing)
		}
	}
	gt.True(t, found)
}

func TestFirestoreAppendToMissingDestination(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	err := repo.AppendToDestination(ctx, "no-such-destination", "summary")
	gt.Error(t, err)
}
