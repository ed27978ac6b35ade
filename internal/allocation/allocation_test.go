package allocation

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/corrente/internal/db"
	"github.com/erazemk/corrente/internal/metrics"
	"github.com/erazemk/corrente/internal/model"
	"github.com/erazemk/corrente/internal/store"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) time.Time { return now.Add(-time.Duration(d) * 24 * time.Hour) }

func request(id int64, category model.Category, urgency int, created time.Time) model.Request {
	return model.Request{
		ID:             id,
		RequesterID:    100 + id,
		CategoryNeeded: category,
		UrgencyLevel:   urgency,
		Status:         model.RequestStatusPending,
		CreatedAt:      created,
	}
}

func item(id int64, category model.Category, created time.Time) model.Item {
	return model.Item{ID: id, Category: category, Status: model.ItemStatusAvailable, HolderID: 1, CreatedAt: created}
}

// fakeStore records commits and reports configured entities as stale.
type fakeStore struct {
	mu            sync.Mutex
	staleItems    map[int64]bool
	staleRequests map[int64]bool
	commits       [][2]int64
}

func (f *fakeStore) PendingRequests(context.Context, model.Category) ([]model.Request, error) {
	return nil, nil
}

func (f *fakeStore) AvailableItems(context.Context, model.Category) ([]model.Item, error) {
	return nil, nil
}

func (f *fakeStore) Commit(_ context.Context, item model.Item, req model.Request) (*model.Match, *model.Mission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.staleItems[item.ID] {
		return nil, nil, &model.ConflictError{Entity: "item", ID: item.ID}
	}
	if f.staleRequests[req.ID] {
		return nil, nil, &model.ConflictError{Entity: "request", ID: req.ID}
	}
	f.commits = append(f.commits, [2]int64{req.ID, item.ID})
	return &model.Match{ItemID: item.ID, RequestID: req.ID}, &model.Mission{ItemID: item.ID}, nil
}

func newAllocator(s Store) *Allocator {
	return &Allocator{
		Store:  s,
		Now:    func() time.Time { return now },
		Logger: slog.New(slog.DiscardHandler),
	}
}

func TestPlanPrefersAgedRequest(t *testing.T) {
	pending := []model.Request{
		request(1, model.CategoryWheelchair, model.UrgencyHigh, now),
		request(2, model.CategoryWheelchair, model.UrgencyLow, daysAgo(25)),
	}
	available := []model.Item{item(10, model.CategoryWheelchair, daysAgo(3))}

	plan := Plan(pending, available, now)
	require.Len(t, plan, 1)
	assert.Equal(t, int64(2), plan[0].RequestID)
	assert.Equal(t, 35, plan[0].Score)
	assert.Equal(t, StatusProposed, plan[0].Status)
}

func TestPlanPartitionsByCategory(t *testing.T) {
	pending := []model.Request{
		request(1, model.CategoryWheelchair, 2, daysAgo(1)),
		request(2, model.CategoryCrutches, 2, daysAgo(1)),
		request(3, model.CategoryCrutches, 3, daysAgo(1)),
		request(4, model.CategoryWalker, 3, daysAgo(1)),
	}
	available := []model.Item{
		item(10, model.CategoryCrutches, daysAgo(2)),
		item(11, model.CategoryWheelchair, daysAgo(2)),
		item(12, model.CategoryBedpan, daysAgo(2)),
	}

	plan := Plan(pending, available, now)

	got := map[int64]int64{}
	for _, b := range plan {
		got[b.RequestID] = b.ItemID
	}
	assert.Equal(t, map[int64]int64{1: 11, 3: 10}, got)
}

func TestPlanUsesFIFOItems(t *testing.T) {
	pending := []model.Request{
		request(1, model.CategoryWalker, 3, daysAgo(1)),
		request(2, model.CategoryWalker, 2, daysAgo(1)),
	}
	available := []model.Item{
		item(30, model.CategoryWalker, daysAgo(1)),
		item(20, model.CategoryWalker, daysAgo(5)),
		item(21, model.CategoryWalker, daysAgo(5)),
	}

	plan := Plan(pending, available, now)
	require.Len(t, plan, 2)
	assert.Equal(t, [2]int64{1, 20}, [2]int64{plan[0].RequestID, plan[0].ItemID})
	assert.Equal(t, [2]int64{2, 21}, [2]int64{plan[1].RequestID, plan[1].ItemID})
}

func TestAllocateSkipsNonPendingAndUnavailable(t *testing.T) {
	fulfilled := request(1, model.CategoryWalker, 3, daysAgo(30))
	fulfilled.Status = model.RequestStatusFulfilled
	inUse := item(10, model.CategoryWalker, daysAgo(9))
	inUse.Status = model.ItemStatusInUse

	fs := &fakeStore{}
	res, err := newAllocator(fs).Allocate(context.Background(),
		[]model.Request{fulfilled, request(2, model.CategoryWalker, 1, now)},
		[]model.Item{inUse, item(11, model.CategoryWalker, now)},
	)
	require.NoError(t, err)
	assert.Equal(t, [][2]int64{{2, 11}}, fs.commits)
	assert.NotEmpty(t, res.RunID)
}

func TestAllocateNoItemsIsNoop(t *testing.T) {
	fs := &fakeStore{}
	res, err := newAllocator(fs).Allocate(context.Background(),
		[]model.Request{request(1, model.CategoryMattress, 2, now)}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Bindings)
	assert.Equal(t, 1, res.Unmatched)
	assert.Empty(t, fs.commits)
}

func TestItemConflictTriesNextItem(t *testing.T) {
	fs := &fakeStore{staleItems: map[int64]bool{10: true}}
	res, err := newAllocator(fs).Allocate(context.Background(),
		[]model.Request{request(1, model.CategoryCrutches, 3, now)},
		[]model.Item{item(10, model.CategoryCrutches, daysAgo(2)), item(11, model.CategoryCrutches, daysAgo(1))},
	)
	require.NoError(t, err)

	require.Len(t, res.Bindings, 2)
	assert.Equal(t, StatusConflict, res.Bindings[0].Status)
	assert.Equal(t, int64(10), res.Bindings[0].ItemID)
	assert.Equal(t, StatusMatched, res.Bindings[1].Status)
	assert.Equal(t, int64(11), res.Bindings[1].ItemID)
}

func TestRequestConflictReturnsItem(t *testing.T) {
	fs := &fakeStore{staleRequests: map[int64]bool{1: true}}
	res, err := newAllocator(fs).Allocate(context.Background(),
		[]model.Request{request(1, model.CategoryCrutches, 3, now), request(2, model.CategoryCrutches, 1, now)},
		[]model.Item{item(10, model.CategoryCrutches, daysAgo(2))},
	)
	require.NoError(t, err)

	require.Len(t, res.Bindings, 2)
	assert.Equal(t, StatusConflict, res.Bindings[0].Status)
	assert.Equal(t, StatusMatched, res.Bindings[1].Status)
	assert.Equal(t, [][2]int64{{2, 10}}, fs.commits)
}

func TestClampedUrgencyIsLogged(t *testing.T) {
	var buf bytes.Buffer
	m := metrics.New(prometheus.NewRegistry())
	fs := &fakeStore{}
	a := &Allocator{
		Store:   fs,
		Now:     func() time.Time { return now },
		Metrics: m,
		Logger:  slog.New(slog.NewTextHandler(&buf, nil)),
	}

	res, err := a.Allocate(context.Background(),
		[]model.Request{request(1, model.CategoryCrutches, 9, now), request(2, model.CategoryCrutches, 3, daysAgo(1))},
		[]model.Item{item(10, model.CategoryCrutches, now)},
	)
	require.NoError(t, err)

	// Urgency 9 is treated as 3, so the older request still wins.
	require.Len(t, res.Matched(), 1)
	assert.Equal(t, int64(2), res.Matched()[0].RequestID)
	assert.Contains(t, buf.String(), "urgency level out of range")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClampedUrgency))
}

func TestAllocateRecordsRun(t *testing.T) {
	var buf bytes.Buffer
	m := metrics.New(prometheus.NewRegistry())
	a := &Allocator{
		Store:   &fakeStore{},
		Now:     func() time.Time { return now },
		Metrics: m,
		Logger:  slog.New(slog.NewTextHandler(&buf, nil)),
	}

	res, err := a.Allocate(context.Background(),
		[]model.Request{request(1, model.CategoryWalker, 2, now)},
		[]model.Item{item(10, model.CategoryWalker, now)},
	)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AllocationRuns))
	assert.Contains(t, buf.String(), "allocation run")
	assert.Contains(t, buf.String(), "run_id="+res.RunID)
	assert.Contains(t, buf.String(), "matched=1")
}

func TestAllocateStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fs := &fakeStore{}
	_, err := newAllocator(fs).Allocate(ctx,
		[]model.Request{request(1, model.CategoryCrutches, 3, now)},
		[]model.Item{item(10, model.CategoryCrutches, now)},
	)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fs.commits)
}

// SQLite-backed scenarios.

func setClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := store.Clock
	store.Clock = func() time.Time { return at }
	t.Cleanup(func() { store.Clock = prev })
}

func mustUser(t *testing.T, database *sql.DB, name string, role model.Role) *model.User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), database, name, "hash", role)
	require.NoError(t, err)
	return u
}

func TestEndToEndAgedRequestWins(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := mustUser(t, database, "donor", model.RoleDonor)
	ana := mustUser(t, database, "ana", model.RoleRequester)
	bia := mustUser(t, database, "bia", model.RoleRequester)

	setClock(t, daysAgo(25))
	b, err := store.CreateRequest(ctx, database, bia.ID, model.CategoryWheelchair, model.UrgencyLow, "")
	require.NoError(t, err)
	setClock(t, now)
	a, err := store.CreateRequest(ctx, database, ana.ID, model.CategoryWheelchair, model.UrgencyHigh, "")
	require.NoError(t, err)
	it, err := store.CreateItem(ctx, database, donor.ID, model.CategoryWheelchair, model.ConditionGood, "")
	require.NoError(t, err)

	pending := []model.Request{*a, *b}
	available := []model.Item{*it}
	alloc := newAllocator(store.Repository{DB: database})

	res, err := alloc.Allocate(ctx, pending, available)
	require.NoError(t, err)
	require.Len(t, res.Matched(), 1)
	assert.Equal(t, b.ID, res.Matched()[0].RequestID)
	assert.Equal(t, 35, res.Matched()[0].Score)

	// Same stale inputs again: nothing new is matched and A stays pending.
	res, err = alloc.Allocate(ctx, pending, available)
	require.NoError(t, err)
	assert.Empty(t, res.Matched())

	gotA, _ := store.GetRequest(ctx, database, a.ID)
	assert.Equal(t, model.RequestStatusPending, gotA.Status)
	gotB, _ := store.GetRequest(ctx, database, b.ID)
	assert.Equal(t, model.RequestStatusFulfilled, gotB.Status)
	require.NotNil(t, gotB.MatchedItemID)
	assert.Equal(t, it.ID, *gotB.MatchedItemID)

	// A fresh run from the store sees no available item.
	res, err = alloc.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Matched())
	assert.Equal(t, 1, res.Unmatched)

	matches, _ := store.ListMatches(ctx, database, store.MatchFilter{})
	assert.Len(t, matches, 1)
}

func TestRunMatchesEveryCategory(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := mustUser(t, database, "donor", model.RoleDonor)
	requester := mustUser(t, database, "ana", model.RoleRequester)

	categories := []model.Category{model.CategoryWheelchair, model.CategoryCrutches, model.CategoryWalker}
	for _, c := range categories {
		for range 3 {
			_, err := store.CreateRequest(ctx, database, requester.ID, c, 2, "")
			require.NoError(t, err)
		}
		for range 2 {
			_, err := store.CreateItem(ctx, database, donor.ID, c, model.ConditionGood, "")
			require.NoError(t, err)
		}
	}

	res, err := newAllocator(store.Repository{DB: database}).Run(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Matched(), 6)
	assert.Equal(t, 3, res.Unmatched)

	assertUniqueMatches(t, database)
}

func TestConcurrentAllocatorsNeverDoubleBind(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := mustUser(t, database, "donor", model.RoleDonor)
	requester := mustUser(t, database, "ana", model.RoleRequester)

	for range 5 {
		_, err := store.CreateRequest(ctx, database, requester.ID, model.CategoryCrutches, 3, "")
		require.NoError(t, err)
	}
	for range 3 {
		_, err := store.CreateItem(ctx, database, donor.ID, model.CategoryCrutches, model.ConditionNew, "")
		require.NoError(t, err)
	}

	pending, err := store.ListPendingRequests(ctx, database, model.CategoryCrutches)
	require.NoError(t, err)
	available, err := store.ListAvailableItems(ctx, database, model.CategoryCrutches)
	require.NoError(t, err)

	// Each allocator works from the same snapshot, as two racing triggers would.
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = newAllocator(store.Repository{DB: database}).Allocate(ctx, pending, available)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	matches, _ := store.ListMatches(ctx, database, store.MatchFilter{})
	assert.Len(t, matches, 3)
	assertUniqueMatches(t, database)

	left, _ := store.ListAvailableItems(ctx, database, model.CategoryCrutches)
	assert.Empty(t, left)
}

func TestCancelledBeforeCommitIsSkipped(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	donor := mustUser(t, database, "donor", model.RoleDonor)
	ana := mustUser(t, database, "ana", model.RoleRequester)
	bia := mustUser(t, database, "bia", model.RoleRequester)

	first, err := store.CreateRequest(ctx, database, ana.ID, model.CategoryBedpan, 3, "")
	require.NoError(t, err)
	second, err := store.CreateRequest(ctx, database, bia.ID, model.CategoryBedpan, 1, "")
	require.NoError(t, err)
	it, err := store.CreateItem(ctx, database, donor.ID, model.CategoryBedpan, model.ConditionGood, "")
	require.NoError(t, err)

	pending := []model.Request{*first, *second}
	_, err = store.CancelRequest(ctx, database, first.ID)
	require.NoError(t, err)

	res, err := newAllocator(store.Repository{DB: database}).Allocate(ctx, pending, []model.Item{*it})
	require.NoError(t, err)

	require.Len(t, res.Bindings, 2)
	assert.Equal(t, StatusConflict, res.Bindings[0].Status)
	assert.Equal(t, first.ID, res.Bindings[0].RequestID)
	assert.Equal(t, StatusMatched, res.Bindings[1].Status)
	assert.Equal(t, second.ID, res.Bindings[1].RequestID)

	gotFirst, _ := store.GetRequest(ctx, database, first.ID)
	assert.Equal(t, model.RequestStatusCancelled, gotFirst.Status)
	assert.Nil(t, gotFirst.MatchedItemID)
}

func assertUniqueMatches(t *testing.T, database *sql.DB) {
	t.Helper()
	matches, err := store.ListMatches(context.Background(), database, store.MatchFilter{})
	require.NoError(t, err)

	items := map[int64]bool{}
	requests := map[int64]bool{}
	for _, m := range matches {
		assert.False(t, items[m.ItemID], "item %d matched twice", m.ItemID)
		assert.False(t, requests[m.RequestID], "request %d matched twice", m.RequestID)
		items[m.ItemID] = true
		requests[m.RequestID] = true
	}
}
