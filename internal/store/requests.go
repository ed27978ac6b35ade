package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/corrente/internal/model"
)

const requestColumns = `id, requester_id, category_needed, urgency_level, notes, status,
	matched_item_id, version, created_at, updated_at`

func scanRequest(row rowScanner) (*model.Request, error) {
	r := &model.Request{}
	var notes sql.NullString
	err := row.Scan(&r.ID, &r.RequesterID, &r.CategoryNeeded, &r.UrgencyLevel, &notes, &r.Status,
		&r.MatchedItemID, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Notes = notes.String
	return r, nil
}

// ValidateRequest checks intake fields.
func ValidateRequest(category model.Category, urgency int) error {
	if !category.Valid() {
		return &model.ValidationError{Field: "category_needed", Reason: "unknown category " + string(category)}
	}
	if urgency < model.UrgencyLow || urgency > model.UrgencyHigh {
		return &model.ValidationError{Field: "urgency_level", Reason: "must be between 1 and 3"}
	}
	return nil
}

// CreateRequest records a new pending request.
func CreateRequest(ctx context.Context, db *sql.DB, requesterID int64, category model.Category, urgency int, notes string) (*model.Request, error) {
	if err := ValidateRequest(category, urgency); err != nil {
		return nil, err
	}

	now := Clock()
	result, err := db.ExecContext(ctx,
		`INSERT INTO requests (requester_id, category_needed, urgency_level, notes, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		requesterID, category, urgency, nullString(notes), model.RequestStatusPending, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting request id: %w", err)
	}

	return GetRequest(ctx, db, id)
}

// GetRequest returns a request by ID.
func GetRequest(ctx context.Context, db *sql.DB, id int64) (*model.Request, error) {
	r, err := scanRequest(db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting request: %w", err)
	}
	return r, nil
}

// RequestFilter narrows ListRequests. Zero values match everything.
type RequestFilter struct {
	Status      model.RequestStatus
	Category    model.Category
	RequesterID int64
}

// ListRequests returns requests matching the filter, oldest first.
func ListRequests(ctx context.Context, db *sql.DB, f RequestFilter) ([]model.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Category != "" {
		query += ` AND category_needed = ?`
		args = append(args, f.Category)
	}
	if f.RequesterID > 0 {
		query += ` AND requester_id = ?`
		args = append(args, f.RequesterID)
	}

	query += ` ORDER BY created_at, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	defer rows.Close()

	var requests []model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// ListPendingRequests returns the pending requests of a category. An empty
// category lists all categories.
func ListPendingRequests(ctx context.Context, db *sql.DB, category model.Category) ([]model.Request, error) {
	return ListRequests(ctx, db, RequestFilter{Status: model.RequestStatusPending, Category: category})
}

// CancelRequest cancels a pending request. Requests that were already matched
// or cancelled fail with model.ErrNotPending.
func CancelRequest(ctx context.Context, db *sql.DB, id int64) (*model.Request, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE requests SET status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND status = ?`,
		model.RequestStatusCancelled, Clock(), id, model.RequestStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("cancelling request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking request update: %w", err)
	}
	if n == 0 {
		r, err := GetRequest(ctx, db, id)
		if err != nil {
			return nil, err
		}
		if r == nil {
			return nil, fmt.Errorf("request %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("request %d is %s: %w", id, r.Status, model.ErrNotPending)
	}
	return GetRequest(ctx, db, id)
}
