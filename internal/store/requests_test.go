package store

import (
	"context"
	"errors"
	"testing"

	"github.com/erazemk/corrente/internal/db"
	"github.com/erazemk/corrente/internal/model"
)

func TestCreateRequest(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	requester := mustUser(t, database, "ana", model.RoleRequester)

	r, err := CreateRequest(ctx, database, requester.ID, model.CategoryWheelchair, model.UrgencyHigh, "pós-cirúrgico")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if r.Status != model.RequestStatusPending {
		t.Errorf("expected status 'pendente', got %q", r.Status)
	}
	if r.MatchedItemID != nil {
		t.Errorf("expected no matched item, got %v", *r.MatchedItemID)
	}
	if r.Notes != "pós-cirúrgico" {
		t.Errorf("expected notes to round-trip, got %q", r.Notes)
	}
}

func TestCreateRequestValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	requester := mustUser(t, database, "ana", model.RoleRequester)

	tests := []struct {
		name     string
		category model.Category
		urgency  int
		field    string
	}{
		{"unknown category", "helicoptero", 2, "category_needed"},
		{"urgency too low", model.CategoryCrutches, 0, "urgency_level"},
		{"urgency too high", model.CategoryCrutches, 4, "urgency_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateRequest(ctx, database, requester.ID, tt.category, tt.urgency, "")
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}

	pending, _ := ListPendingRequests(ctx, database, "")
	if len(pending) != 0 {
		t.Errorf("expected no requests stored, got %d", len(pending))
	}
}

func TestListRequestsFilters(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	tickClock(t)
	ana := mustUser(t, database, "ana", model.RoleRequester)
	bia := mustUser(t, database, "bia", model.RoleRequester)

	mustRequest(t, database, ana.ID, model.CategoryWheelchair, 1)
	cancelled := mustRequest(t, database, ana.ID, model.CategoryCrutches, 2)
	mustRequest(t, database, bia.ID, model.CategoryWheelchair, 3)
	CancelRequest(ctx, database, cancelled.ID)

	wheelchairs, _ := ListPendingRequests(ctx, database, model.CategoryWheelchair)
	if len(wheelchairs) != 2 {
		t.Errorf("expected 2 pending wheelchair requests, got %d", len(wheelchairs))
	}

	mine, _ := ListRequests(ctx, database, RequestFilter{RequesterID: ana.ID})
	if len(mine) != 2 {
		t.Errorf("expected 2 requests by ana, got %d", len(mine))
	}

	all, _ := ListPendingRequests(ctx, database, "")
	if len(all) != 2 {
		t.Errorf("expected 2 pending requests overall, got %d", len(all))
	}
}

func TestCancelRequest(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	requester := mustUser(t, database, "ana", model.RoleRequester)
	r := mustRequest(t, database, requester.ID, model.CategoryWalker, 2)

	got, err := CancelRequest(ctx, database, r.ID)
	if err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	if got.Status != model.RequestStatusCancelled {
		t.Errorf("expected status 'cancelado', got %q", got.Status)
	}
	if got.Version != r.Version+1 {
		t.Errorf("expected version bump, got %d", got.Version)
	}

	if _, err := CancelRequest(ctx, database, r.ID); !errors.Is(err, model.ErrNotPending) {
		t.Errorf("expected not pending on second cancel, got %v", err)
	}
	if _, err := CancelRequest(ctx, database, 999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestCancelMatchedRequest(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := mustUser(t, database, "donor", model.RoleDonor)
	requester := mustUser(t, database, "ana", model.RoleRequester)

	item := mustItem(t, database, donor.ID, model.CategoryWalker)
	r := mustRequest(t, database, requester.ID, model.CategoryWalker, 2)
	if _, _, err := CommitMatch(ctx, database, *item, *r); err != nil {
		t.Fatalf("CommitMatch: %v", err)
	}

	if _, err := CancelRequest(ctx, database, r.ID); !errors.Is(err, model.ErrNotPending) {
		t.Fatalf("expected not pending, got %v", err)
	}
	got, _ := GetRequest(ctx, database, r.ID)
	if got.Status != model.RequestStatusFulfilled {
		t.Errorf("expected request to stay 'atendido', got %q", got.Status)
	}
}
