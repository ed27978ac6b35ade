package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/corrente/internal/model"
)

// Stats summarises the state of the pool.
type Stats struct {
	ItemsByStatus     map[model.ItemStatus]int    `json:"items_by_status"`
	RequestsByStatus  map[model.RequestStatus]int `json:"requests_by_status"`
	PendingByCategory map[model.Category]int      `json:"pending_by_category"`
	Matches           int                         `json:"matches"`
	ActiveMissions    int                         `json:"active_missions"`
}

// GetStats counts items, requests, matches and missions.
func GetStats(ctx context.Context, db *sql.DB) (*Stats, error) {
	s := &Stats{
		ItemsByStatus:     make(map[model.ItemStatus]int),
		RequestsByStatus:  make(map[model.RequestStatus]int),
		PendingByCategory: make(map[model.Category]int),
	}

	if err := countGrouped(ctx, db,
		`SELECT status, COUNT(*) FROM items WHERE deleted_at IS NULL GROUP BY status`,
		func(k string, n int) { s.ItemsByStatus[model.ItemStatus(k)] = n },
	); err != nil {
		return nil, fmt.Errorf("counting items: %w", err)
	}

	if err := countGrouped(ctx, db,
		`SELECT status, COUNT(*) FROM requests GROUP BY status`,
		func(k string, n int) { s.RequestsByStatus[model.RequestStatus(k)] = n },
	); err != nil {
		return nil, fmt.Errorf("counting requests: %w", err)
	}

	if err := countGrouped(ctx, db,
		`SELECT category_needed, COUNT(*) FROM requests WHERE status = 'pendente' GROUP BY category_needed`,
		func(k string, n int) { s.PendingByCategory[model.Category(k)] = n },
	); err != nil {
		return nil, fmt.Errorf("counting pending requests: %w", err)
	}

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&s.Matches); err != nil {
		return nil, fmt.Errorf("counting matches: %w", err)
	}

	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM missions WHERE status IN (?, ?)`,
		model.MissionStatusAccepted, model.MissionStatusEnRoute,
	).Scan(&s.ActiveMissions)
	if err != nil {
		return nil, fmt.Errorf("counting missions: %w", err)
	}

	return s, nil
}

func countGrouped(ctx context.Context, db *sql.DB, query string, put func(string, int)) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		put(k, n)
	}
	return rows.Err()
}
