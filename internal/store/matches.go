package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/corrente/internal/lifecycle"
	"github.com/erazemk/corrente/internal/model"
)

// CommitMatch binds item to req. The item moves to aguardando_coleta, the
// request becomes atendido, and the match and its delivery mission are
// created, all in one transaction. Both conditional writes check the versions
// of the snapshots passed in; if either lost a race the transaction is rolled
// back and a *model.ConflictError names the entity that changed.
func CommitMatch(ctx context.Context, db *sql.DB, item model.Item, req model.Request) (*model.Match, *model.Mission, error) {
	if item.Category != req.CategoryNeeded {
		return nil, nil, &model.ValidationError{
			Field:  "category",
			Reason: fmt.Sprintf("item %d is %s, request %d needs %s", item.ID, item.Category, req.ID, req.CategoryNeeded),
		}
	}
	if req.Status != model.RequestStatusPending {
		return nil, nil, fmt.Errorf("request %d is %s: %w", req.ID, req.Status, model.ErrNotPending)
	}

	next, err := lifecycle.Apply(item, lifecycle.Transition{To: model.ItemStatusAwaitingPickup})
	if err != nil {
		return nil, nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := Clock()

	if err := writeTransition(ctx, tx, item, next, 0, fmt.Sprintf("alocado ao pedido #%d", req.ID), now); err != nil {
		return nil, nil, err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE requests SET status = ?, matched_item_id = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ? AND status = ?`,
		model.RequestStatusFulfilled, item.ID, now, req.ID, req.Version, model.RequestStatusPending,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("fulfilling request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("checking request update: %w", err)
	}
	if n == 0 {
		return nil, nil, missingOrConflict(ctx, tx, "requests", "request", req.ID)
	}

	result, err = tx.ExecContext(ctx,
		`INSERT INTO matches (item_id, request_id, created_at) VALUES (?, ?, ?)`,
		item.ID, req.ID, now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating match: %w", err)
	}
	matchID, err := result.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("getting match id: %w", err)
	}

	result, err = tx.ExecContext(ctx,
		`INSERT INTO missions (match_id, item_id, origin_id, destination_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		matchID, item.ID, item.HolderID, req.RequesterID, model.MissionStatusOpen, now, now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating mission: %w", err)
	}
	missionID, err := result.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("getting mission id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing match: %w", err)
	}

	match := &model.Match{
		ID:          matchID,
		ItemID:      item.ID,
		RequestID:   req.ID,
		CreatedAt:   now,
		Category:    item.Category,
		RequesterID: req.RequesterID,
	}
	mission := &model.Mission{
		ID:            missionID,
		MatchID:       matchID,
		ItemID:        item.ID,
		OriginID:      item.HolderID,
		DestinationID: req.RequesterID,
		Status:        model.MissionStatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return match, mission, nil
}

const matchQuery = `SELECT m.id, m.item_id, m.request_id, m.created_at, r.category_needed, r.requester_id
	FROM matches m JOIN requests r ON r.id = m.request_id`

func scanMatch(row rowScanner) (*model.Match, error) {
	m := &model.Match{}
	if err := row.Scan(&m.ID, &m.ItemID, &m.RequestID, &m.CreatedAt, &m.Category, &m.RequesterID); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMatch returns a match by ID.
func GetMatch(ctx context.Context, db *sql.DB, id int64) (*model.Match, error) {
	m, err := scanMatch(db.QueryRowContext(ctx, matchQuery+` WHERE m.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting match: %w", err)
	}
	return m, nil
}

// MatchFilter narrows ListMatches. Zero values match everything.
type MatchFilter struct {
	ItemID      int64
	RequesterID int64
}

// ListMatches returns matches, newest first.
func ListMatches(ctx context.Context, db *sql.DB, f MatchFilter) ([]model.Match, error) {
	query := matchQuery + ` WHERE 1=1`
	var args []any

	if f.ItemID > 0 {
		query += ` AND m.item_id = ?`
		args = append(args, f.ItemID)
	}
	if f.RequesterID > 0 {
		query += ` AND r.requester_id = ?`
		args = append(args, f.RequesterID)
	}
	query += ` ORDER BY m.created_at DESC, m.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}
