package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/corrente/internal/lifecycle"
	"github.com/erazemk/corrente/internal/model"
)

const itemColumns = `i.id, i.category, i.condition, i.description, i.photo_mime, i.status,
	i.holder_id, i.donor_id, i.version, i.created_at, i.updated_at, i.deleted_at,
	COALESCE(NULLIF(h.name, ''), h.username)`

const itemFrom = ` FROM items i JOIN users h ON h.id = i.holder_id`

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var description, photoMime sql.NullString
	err := row.Scan(&item.ID, &item.Category, &item.Condition, &description, &photoMime, &item.Status,
		&item.HolderID, &item.DonorID, &item.Version, &item.CreatedAt, &item.UpdatedAt, &item.DeletedAt,
		&item.HolderName)
	if err != nil {
		return nil, err
	}
	item.Description = description.String
	item.PhotoMime = photoMime.String
	return item, nil
}

// CreateItem registers a donated item. The donor holds it and it starts available.
func CreateItem(ctx context.Context, db *sql.DB, donorID int64, category model.Category, condition model.Condition, description string) (*model.Item, error) {
	if !category.Valid() {
		return nil, &model.ValidationError{Field: "category", Reason: "unknown category " + string(category)}
	}
	if !condition.Valid() {
		return nil, &model.ValidationError{Field: "condition", Reason: "unknown condition " + string(condition)}
	}

	now := Clock()
	result, err := db.ExecContext(ctx,
		`INSERT INTO items (category, condition, description, status, holder_id, donor_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		category, condition, nullString(description), model.ItemStatusAvailable, donorID, donorID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	return getItem(ctx, db, id)
}

func getItem(ctx context.Context, q querier, id int64) (*model.Item, error) {
	item, err := scanItem(q.QueryRowContext(ctx, `SELECT `+itemColumns+itemFrom+` WHERE i.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ItemFilter narrows ListItems. Zero values match everything.
type ItemFilter struct {
	Status   model.ItemStatus
	Category model.Category
	HolderID int64
	DonorID  int64
}

// ListItems returns non-deleted items matching the filter, oldest first.
func ListItems(ctx context.Context, db *sql.DB, f ItemFilter) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + itemFrom + ` WHERE i.deleted_at IS NULL`
	var args []any

	if f.Status != "" {
		query += ` AND i.status = ?`
		args = append(args, f.Status)
	}
	if f.Category != "" {
		query += ` AND i.category = ?`
		args = append(args, f.Category)
	}
	if f.HolderID > 0 {
		query += ` AND i.holder_id = ?`
		args = append(args, f.HolderID)
	}
	if f.DonorID > 0 {
		query += ` AND i.donor_id = ?`
		args = append(args, f.DonorID)
	}

	query += ` ORDER BY i.created_at, i.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ListAvailableItems returns the available items of a category in FIFO order
// (creation time, then id). An empty category lists all categories.
func ListAvailableItems(ctx context.Context, db *sql.DB, category model.Category) ([]model.Item, error) {
	return ListItems(ctx, db, ItemFilter{Status: model.ItemStatusAvailable, Category: category})
}

// TransitionItem applies a custody change to the item snapshot the caller
// observed. Status, holder and version change in a single conditional UPDATE
// and a custody event is recorded in the same transaction. If the stored item
// no longer has the snapshot's version the call fails with *model.ConflictError.
//
// Parties never assign an available item themselves; that edge belongs to
// CommitMatch and only the system actor (0) may take it here. Pickup and
// delivery are reserved for the distributor of the item's active mission, and
// delivery must go to the mission's destination. When a match falls through
// (back to disponivel from aguardando_coleta or em_transito) the item's
// unfinished missions are cancelled in the same transaction.
func TransitionItem(ctx context.Context, db *sql.DB, item model.Item, tr lifecycle.Transition, notes string) (*model.Item, error) {
	next, err := lifecycle.Apply(item, tr)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := checkCustody(ctx, tx, item, tr); err != nil {
		return nil, err
	}

	now := Clock()
	if err := writeTransition(ctx, tx, item, next, tr.ActorID, notes, now); err != nil {
		return nil, err
	}

	if next.Status == model.ItemStatusAvailable &&
		(item.Status == model.ItemStatusAwaitingPickup || item.Status == model.ItemStatusInTransit) {
		if err := cancelItemMissions(ctx, tx, item.ID, now); err != nil {
			return nil, err
		}
	}

	updated, err := getItem(ctx, tx, item.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transition: %w", err)
	}
	return updated, nil
}

// ItemMoves returns the statuses actorID may move item to right now.
func ItemMoves(ctx context.Context, db *sql.DB, item model.Item, actorID int64) ([]model.ItemStatus, error) {
	var out []model.ItemStatus
	for _, to := range lifecycle.Moves(item.Status, item.HolderID, actorID) {
		err := checkCustody(ctx, db, item, lifecycle.Transition{To: to, ActorID: actorID})
		var denied *model.AuthorizationError
		switch {
		case err == nil:
			out = append(out, to)
		case errors.As(err, &denied):
		default:
			return nil, err
		}
	}
	return out, nil
}

// checkCustody enforces the rules of an edge that depend on the item's
// missions. A zero tr.HolderID skips the destination check.
func checkCustody(ctx context.Context, q querier, item model.Item, tr lifecycle.Transition) error {
	denied := &model.AuthorizationError{From: item.Status, To: tr.To, ActorID: tr.ActorID}

	switch {
	case tr.To == model.ItemStatusAwaitingPickup:
		if tr.ActorID != 0 {
			return denied
		}

	case item.Status == model.ItemStatusAwaitingPickup && tr.To == model.ItemStatusInTransit,
		item.Status == model.ItemStatusInTransit && tr.To == model.ItemStatusInUse:
		m, err := activeItemMission(ctx, q, item.ID, tr.ActorID)
		if err != nil {
			return err
		}
		if m == nil {
			return denied
		}
		if tr.To == model.ItemStatusInUse && tr.HolderID != 0 && tr.HolderID != m.DestinationID {
			return &model.ValidationError{
				Field:  "holder_id",
				Reason: fmt.Sprintf("mission %d delivers to party %d", m.ID, m.DestinationID),
			}
		}
	}
	return nil
}

// writeTransition performs the conditional write of prev -> next and appends
// the custody event.
func writeTransition(ctx context.Context, q querier, prev, next model.Item, actorID int64, notes string, now time.Time) error {
	result, err := q.ExecContext(ctx,
		`UPDATE items SET status = ?, holder_id = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ? AND deleted_at IS NULL`,
		next.Status, next.HolderID, now, prev.ID, prev.Version,
	)
	if err != nil {
		return fmt.Errorf("updating item status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking item update: %w", err)
	}
	if n == 0 {
		return missingOrConflict(ctx, q, "items", "item", prev.ID)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO custody_events (item_id, from_status, to_status, from_holder_id, to_holder_id, actor_id, notes, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		prev.ID, prev.Status, next.Status, prev.HolderID, next.HolderID, nullInt(actorID), nullString(notes), now,
	)
	if err != nil {
		return fmt.Errorf("recording custody event: %w", err)
	}
	return nil
}

// missingOrConflict distinguishes a vanished row from a lost race after a
// conditional write affected nothing.
func missingOrConflict(ctx context.Context, q querier, table, entity string, id int64) error {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = ?)`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking %s: %w", entity, err)
	}
	if !exists {
		return fmt.Errorf("%s %d: %w", entity, id, model.ErrNotFound)
	}
	return &model.ConflictError{Entity: entity, ID: id}
}

// DeleteItem soft-deletes an item. Only available items can be withdrawn.
func DeleteItem(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET deleted_at = ?, version = version + 1
		 WHERE id = ? AND deleted_at IS NULL AND status = ?`,
		Clock(), id, model.ItemStatusAvailable,
	)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return missingOrConflict(ctx, db, "items", "item", id)
	}
	return nil
}

// SetItemPhoto stores an item's photo.
func SetItemPhoto(ctx context.Context, db *sql.DB, id int64, photo []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET photo = ?, photo_mime = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		photo, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting item photo: %w", err)
	}
	return nil
}

// GetItemPhoto returns an item's photo and MIME type.
func GetItemPhoto(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var photo []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT photo, photo_mime FROM items WHERE id = ?`, id,
	).Scan(&photo, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item photo: %w", err)
	}
	return photo, mime.String, nil
}

// GetItemHistory returns the custody history of an item, newest first.
func GetItemHistory(ctx context.Context, db *sql.DB, itemID int64) ([]model.CustodyEvent, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT e.id, e.item_id, e.from_status, e.to_status, e.from_holder_id, e.to_holder_id,
		        e.actor_id, e.notes, e.occurred_at,
		        COALESCE(NULLIF(fh.name, ''), fh.username), COALESCE(NULLIF(th.name, ''), th.username)
		 FROM custody_events e
		 JOIN users fh ON fh.id = e.from_holder_id
		 JOIN users th ON th.id = e.to_holder_id
		 WHERE e.item_id = ?
		 ORDER BY e.occurred_at DESC, e.id DESC`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting item history: %w", err)
	}
	defer rows.Close()

	var events []model.CustodyEvent
	for rows.Next() {
		var e model.CustodyEvent
		var actor sql.NullInt64
		var notes sql.NullString
		if err := rows.Scan(&e.ID, &e.ItemID, &e.FromStatus, &e.ToStatus, &e.FromHolderID, &e.ToHolderID,
			&actor, &notes, &e.OccurredAt, &e.FromHolderName, &e.ToHolderName); err != nil {
			return nil, fmt.Errorf("scanning custody event: %w", err)
		}
		e.ActorID = actor.Int64
		e.Notes = notes.String
		events = append(events, e)
	}
	return events, rows.Err()
}
