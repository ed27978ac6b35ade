package store

import (
	"context"
	"database/sql"

	"github.com/erazemk/corrente/internal/model"
)

// Repository adapts the package functions to the allocator's store interface.
type Repository struct {
	DB *sql.DB
}

// PendingRequests returns the pending requests of a category.
func (r Repository) PendingRequests(ctx context.Context, category model.Category) ([]model.Request, error) {
	return ListPendingRequests(ctx, r.DB, category)
}

// AvailableItems returns the available items of a category in FIFO order.
func (r Repository) AvailableItems(ctx context.Context, category model.Category) ([]model.Item, error) {
	return ListAvailableItems(ctx, r.DB, category)
}

// Commit binds item to req and opens the delivery mission.
func (r Repository) Commit(ctx context.Context, item model.Item, req model.Request) (*model.Match, *model.Mission, error) {
	return CommitMatch(ctx, r.DB, item, req)
}
