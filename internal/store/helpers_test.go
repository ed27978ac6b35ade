package store

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erazemk/corrente/internal/model"
)

// tickClock makes Clock return strictly increasing timestamps one minute apart
// so that creation order is unambiguous.
func tickClock(t *testing.T) {
	t.Helper()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var n atomic.Int64
	prev := Clock
	Clock = func() time.Time { return base.Add(time.Duration(n.Add(1)) * time.Minute) }
	t.Cleanup(func() { Clock = prev })
}

func mustUser(t *testing.T, database *sql.DB, username string, role model.Role) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), database, username, "hash", role)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func mustItem(t *testing.T, database *sql.DB, donorID int64, category model.Category) *model.Item {
	t.Helper()
	item, err := CreateItem(context.Background(), database, donorID, category, model.ConditionGood, "")
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	return item
}

func mustRequest(t *testing.T, database *sql.DB, requesterID int64, category model.Category, urgency int) *model.Request {
	t.Helper()
	r, err := CreateRequest(context.Background(), database, requesterID, category, urgency, "")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	return r
}

// mustMatch creates an item and a request of the same category and matches
// them. It returns the allocated item and its open mission.
func mustMatch(t *testing.T, database *sql.DB, donorID, requesterID int64, category model.Category) (*model.Item, *model.Mission) {
	t.Helper()
	item := mustItem(t, database, donorID, category)
	r := mustRequest(t, database, requesterID, category, model.UrgencyMedium)
	_, mission, err := CommitMatch(context.Background(), database, *item, *r)
	if err != nil {
		t.Fatalf("CommitMatch: %v", err)
	}
	item, err = GetItem(context.Background(), database, item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	return item, mission
}
