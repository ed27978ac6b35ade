package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/corrente/internal/model"
)

const missionColumns = `id, match_id, item_id, origin_id, destination_id, distributor_id, status, created_at, updated_at`

func scanMission(row rowScanner) (*model.Mission, error) {
	m := &model.Mission{}
	err := row.Scan(&m.ID, &m.MatchID, &m.ItemID, &m.OriginID, &m.DestinationID, &m.DistributorID,
		&m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMission returns a mission by ID.
func GetMission(ctx context.Context, db *sql.DB, id int64) (*model.Mission, error) {
	m, err := scanMission(db.QueryRowContext(ctx,
		`SELECT `+missionColumns+` FROM missions WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting mission: %w", err)
	}
	return m, nil
}

// MissionFilter narrows ListMissions. Zero values match everything.
type MissionFilter struct {
	Status        model.MissionStatus
	DistributorID int64
	PartyID       int64 // origin or destination
}

// ListMissions returns missions matching the filter, oldest first.
func ListMissions(ctx context.Context, db *sql.DB, f MissionFilter) ([]model.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.DistributorID > 0 {
		query += ` AND distributor_id = ?`
		args = append(args, f.DistributorID)
	}
	if f.PartyID > 0 {
		query += ` AND (origin_id = ? OR destination_id = ?)`
		args = append(args, f.PartyID, f.PartyID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing missions: %w", err)
	}
	defer rows.Close()

	var missions []model.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mission: %w", err)
		}
		missions = append(missions, *m)
	}
	return missions, rows.Err()
}

// ListActiveMissionsForDistributor returns the accepted and en-route missions
// of a distributor.
func ListActiveMissionsForDistributor(ctx context.Context, db *sql.DB, distributorID int64) ([]model.Mission, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+missionColumns+` FROM missions
		 WHERE distributor_id = ? AND status IN (?, ?)
		 ORDER BY created_at, id`,
		distributorID, model.MissionStatusAccepted, model.MissionStatusEnRoute,
	)
	if err != nil {
		return nil, fmt.Errorf("listing active missions: %w", err)
	}
	defer rows.Close()

	var missions []model.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mission: %w", err)
		}
		missions = append(missions, *m)
	}
	return missions, rows.Err()
}

// activeItemMission returns the accepted or en-route mission of an item run by
// distributorID, or nil.
func activeItemMission(ctx context.Context, q querier, itemID, distributorID int64) (*model.Mission, error) {
	m, err := scanMission(q.QueryRowContext(ctx,
		`SELECT `+missionColumns+` FROM missions
		 WHERE item_id = ? AND distributor_id = ? AND status IN (?, ?)
		 ORDER BY id DESC LIMIT 1`,
		itemID, distributorID, model.MissionStatusAccepted, model.MissionStatusEnRoute,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item mission: %w", err)
	}
	return m, nil
}

// cancelItemMissions cancels every unfinished mission of an item.
func cancelItemMissions(ctx context.Context, q querier, itemID int64, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE missions SET status = ?, updated_at = ?
		 WHERE item_id = ? AND status IN (?, ?, ?)`,
		model.MissionStatusCancelled, now, itemID,
		model.MissionStatusOpen, model.MissionStatusAccepted, model.MissionStatusEnRoute,
	)
	if err != nil {
		return fmt.Errorf("cancelling item missions: %w", err)
	}
	return nil
}

// AcceptMission assigns an open mission to a distributor.
func AcceptMission(ctx context.Context, db *sql.DB, id, distributorID int64) (*model.Mission, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE missions SET status = ?, distributor_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		model.MissionStatusAccepted, distributorID, Clock(), id, model.MissionStatusOpen,
	)
	if err != nil {
		return nil, fmt.Errorf("accepting mission: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, missionNotAdvanced(ctx, db, id, model.MissionStatusAccepted)
	}
	return GetMission(ctx, db, id)
}

// AdvanceMission moves a mission along its workflow. Only the assigned
// distributor may advance an accepted mission; actorID 0 skips that check.
func AdvanceMission(ctx context.Context, db *sql.DB, id, actorID int64, to model.MissionStatus) (*model.Mission, error) {
	m, err := GetMission(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("mission %d: %w", id, model.ErrNotFound)
	}
	if to == model.MissionStatusAccepted {
		return AcceptMission(ctx, db, id, actorID)
	}
	if !m.Status.CanAdvance(to) {
		return nil, fmt.Errorf("mission %d %s -> %s: %w", id, m.Status, to, model.ErrInvalidTransition)
	}
	if actorID != 0 && m.DistributorID != nil && *m.DistributorID != actorID {
		return nil, fmt.Errorf("mission %d belongs to another distributor: %w", id, model.ErrUnauthorizedTransition)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE missions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, Clock(), id, m.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("advancing mission: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, &model.ConflictError{Entity: "mission", ID: id}
	}
	return GetMission(ctx, db, id)
}

func missionNotAdvanced(ctx context.Context, db *sql.DB, id int64, to model.MissionStatus) error {
	m, err := GetMission(ctx, db, id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("mission %d: %w", id, model.ErrNotFound)
	}
	return fmt.Errorf("mission %d %s -> %s: %w", id, m.Status, to, model.ErrInvalidTransition)
}
