// Package allocation binds available items to the highest ranked pending
// requests of the same category.
//
// Categories are independent: each one is ranked and walked on its own, and
// Run processes them in parallel. Every binding is committed through the
// Store with conditional writes, so a request or item that changed since it
// was read is reported as a conflict instead of being overwritten.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/corrente/internal/metrics"
	"github.com/erazemk/corrente/internal/model"
	"github.com/erazemk/corrente/internal/priority"
)

// Store is the persistence the allocator needs.
type Store interface {
	PendingRequests(ctx context.Context, category model.Category) ([]model.Request, error)
	AvailableItems(ctx context.Context, category model.Category) ([]model.Item, error)
	// Commit atomically binds item to req. It returns a *model.ConflictError
	// naming the entity whose snapshot is stale.
	Commit(ctx context.Context, item model.Item, req model.Request) (*model.Match, *model.Mission, error)
}

// Binding outcomes.
const (
	StatusMatched  = "matched"
	StatusConflict = "conflict"
	StatusProposed = "proposed"
)

// Binding is one attempt to pair a request with an item.
type Binding struct {
	RequestID int64          `json:"request_id"`
	ItemID    int64          `json:"item_id"`
	Category  model.Category `json:"category"`
	Score     int            `json:"score"`
	Status    string         `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	Match     *model.Match   `json:"match,omitempty"`
	Mission   *model.Mission `json:"mission,omitempty"`
}

// Result summarises an allocation call.
type Result struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Bindings  []Binding `json:"bindings"`
	Unmatched int       `json:"unmatched"`
}

// Matched returns the bindings that produced a match.
func (r *Result) Matched() []Binding {
	var out []Binding
	for _, b := range r.Bindings {
		if b.Status == StatusMatched {
			out = append(out, b)
		}
	}
	return out
}

// Allocator runs allocation against a Store.
type Allocator struct {
	Store   Store
	Now     func() time.Time
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// mu serializes runs so two triggers never walk the same queues at once.
	mu sync.Mutex
}

// New creates an Allocator using the wall clock and the default logger.
func New(store Store, m *metrics.Metrics, logger *slog.Logger) *Allocator {
	return &Allocator{Store: store, Metrics: m, Logger: logger}
}

func (a *Allocator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

func (a *Allocator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Allocate binds items from available to requests from pending. Requests that
// are not pending and items that are not available are ignored, so passing
// stale lists never re-matches a fulfilled request.
func (a *Allocator) Allocate(ctx context.Context, pending []model.Request, available []model.Item) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString(), StartedAt: a.now()}
	err := a.walk(ctx, pending, available, res, a.Store.Commit)
	a.finish(res, start)
	if err != nil {
		return res, err
	}
	return res, nil
}

// Run loads every category from the store in parallel and allocates each one.
func (a *Allocator) Run(ctx context.Context) (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	res := &Result{RunID: uuid.NewString(), StartedAt: a.now()}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, category := range model.Categories {
		g.Go(func() error {
			pending, err := a.Store.PendingRequests(ctx, category)
			if err != nil {
				return fmt.Errorf("loading %s requests: %w", category, err)
			}
			if len(pending) == 0 {
				return nil
			}
			available, err := a.Store.AvailableItems(ctx, category)
			if err != nil {
				return fmt.Errorf("loading %s items: %w", category, err)
			}

			part := &Result{StartedAt: res.StartedAt}
			err = a.walk(ctx, pending, available, part, a.Store.Commit)

			mu.Lock()
			res.Bindings = append(res.Bindings, part.Bindings...)
			res.Unmatched += part.Unmatched
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()

	sort.SliceStable(res.Bindings, func(i, j int) bool {
		return res.Bindings[i].Category < res.Bindings[j].Category
	})

	a.finish(res, start)
	if err != nil {
		return res, err
	}
	return res, nil
}

// finish records a completed run in the metrics and the log.
func (a *Allocator) finish(res *Result, start time.Time) {
	d := time.Since(start)
	a.Metrics.ObserveAllocationRun(d)
	a.logger().Info("allocation run",
		"run_id", res.RunID,
		"matched", len(res.Matched()),
		"bindings", len(res.Bindings),
		"unmatched", res.Unmatched,
		"duration", d.String(),
	)
}

// Plan computes the bindings Allocate would attempt if no write conflicted.
// It has no side effects.
func Plan(pending []model.Request, available []model.Item, now time.Time) []Binding {
	a := &Allocator{Now: func() time.Time { return now }, Logger: slog.New(slog.DiscardHandler)}
	res := &Result{StartedAt: now}
	propose := func(context.Context, model.Item, model.Request) (*model.Match, *model.Mission, error) {
		return nil, nil, nil
	}
	a.walk(context.Background(), pending, available, res, propose)
	for i := range res.Bindings {
		res.Bindings[i].Status = StatusProposed
	}
	return res.Bindings
}

type commitFunc func(ctx context.Context, item model.Item, req model.Request) (*model.Match, *model.Mission, error)

// walk ranks each category and pops FIFO items for the ranked requests.
// An item conflict moves on to the next item for the same request. A request
// conflict puts the item back at the front of its bucket for the next request.
func (a *Allocator) walk(ctx context.Context, pending []model.Request, available []model.Item, res *Result, commit commitFunc) error {
	now := res.StartedAt
	buckets := partition(available)
	queues := make(map[model.Category][]model.Request)
	for _, r := range pending {
		if r.Status != model.RequestStatusPending {
			continue
		}
		queues[r.CategoryNeeded] = append(queues[r.CategoryNeeded], r)
	}

	categories := make([]model.Category, 0, len(queues))
	for c := range queues {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	for _, category := range categories {
		bucket := buckets[category]
		ranked := priority.Rank(queues[category], now)
		for _, r := range ranked {
			if level, clamped := priority.ClampUrgency(r.Request.UrgencyLevel); clamped {
				a.Metrics.IncrementClampedUrgency()
				a.logger().Warn("urgency level out of range, clamped",
					"request_id", r.Request.ID,
					"urgency_level", r.Request.UrgencyLevel,
					"clamped_to", level,
				)
			}
		}

		for n, r := range ranked {
			if len(bucket) == 0 {
				res.Unmatched += len(ranked) - n
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			matched, gone := false, false
			for len(bucket) > 0 && !matched && !gone {
				item := bucket[0]
				bucket = bucket[1:]

				b := Binding{RequestID: r.Request.ID, ItemID: item.ID, Category: category, Score: r.Score}
				match, mission, err := commit(ctx, item, r.Request)

				switch {
				case err == nil:
					b.Status = StatusMatched
					b.Match = match
					b.Mission = mission
					matched = true
				case isStale(err, "item"):
					b.Status = StatusConflict
					b.Reason = err.Error()
				case isStale(err, "request"):
					b.Status = StatusConflict
					b.Reason = err.Error()
					bucket = append([]model.Item{item}, bucket...)
					gone = true
				default:
					return fmt.Errorf("committing request %d with item %d: %w", r.Request.ID, item.ID, err)
				}

				res.Bindings = append(res.Bindings, b)
				a.Metrics.IncrementBinding(string(category), b.Status)
				if b.Status == StatusConflict {
					a.logger().Info("allocation conflict",
						"request_id", b.RequestID,
						"item_id", b.ItemID,
						"error", b.Reason,
					)
				}
			}
			if !matched && len(bucket) == 0 {
				res.Unmatched++
			}
		}
	}
	return nil
}

// isStale reports whether err means the given entity changed under us.
func isStale(err error, entity string) bool {
	var conflict *model.ConflictError
	if errors.As(err, &conflict) {
		return conflict.Entity == entity
	}
	switch entity {
	case "item":
		return errors.Is(err, model.ErrInvalidTransition)
	case "request":
		return errors.Is(err, model.ErrNotPending)
	}
	return false
}

// partition groups available items by category in FIFO order.
func partition(items []model.Item) map[model.Category][]model.Item {
	buckets := make(map[model.Category][]model.Item)
	for _, item := range items {
		if item.Status != model.ItemStatusAvailable || item.DeletedAt != nil {
			continue
		}
		buckets[item.Category] = append(buckets[item.Category], item)
	}
	for _, bucket := range buckets {
		sort.Slice(bucket, func(i, j int) bool {
			if !bucket[i].CreatedAt.Equal(bucket[j].CreatedAt) {
				return bucket[i].CreatedAt.Before(bucket[j].CreatedAt)
			}
			return bucket[i].ID < bucket[j].ID
		})
	}
	return buckets
}
