package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/corrente/internal/model"
)

const (
	donor     int64 = 10
	driver    int64 = 20
	requester int64 = 30
	hub       int64 = 40
)

func TestNoSelfLoops(t *testing.T) {
	for _, s := range model.ItemStatuses {
		assert.False(t, CanTransition(s, s), "self loop on %s", s)
	}
}

func TestTransitionTableExact(t *testing.T) {
	want := map[model.ItemStatus][]model.ItemStatus{
		model.ItemStatusAvailable:      {model.ItemStatusAwaitingPickup, model.ItemStatusMaintenance},
		model.ItemStatusAwaitingPickup: {model.ItemStatusAvailable, model.ItemStatusInTransit},
		model.ItemStatusInTransit:      {model.ItemStatusAvailable, model.ItemStatusInUse},
		model.ItemStatusInUse:          {model.ItemStatusAvailable, model.ItemStatusMaintenance},
		model.ItemStatusMaintenance:    {model.ItemStatusAvailable},
	}

	for _, from := range model.ItemStatuses {
		assert.ElementsMatch(t, want[from], Next(from), "exits of %s", from)
		for _, to := range model.ItemStatuses {
			expected := false
			for _, w := range want[from] {
				if w == to {
					expected = true
				}
			}
			assert.Equal(t, expected, CanTransition(from, to), "%s -> %s", from, to)
		}
	}

	assert.False(t, CanTransition(model.ItemStatusInUse, model.ItemStatusInTransit))
	assert.False(t, CanTransition("bogus", model.ItemStatusAvailable))
}

func TestCanMoveItem(t *testing.T) {
	tests := []struct {
		name   string
		status model.ItemStatus
		holder int64
		actor  int64
		want   bool
	}{
		{"available by anyone", model.ItemStatusAvailable, donor, requester, true},
		{"pickup by collector", model.ItemStatusAwaitingPickup, donor, driver, true},
		{"pickup by holder", model.ItemStatusAwaitingPickup, donor, donor, true},
		{"transit by driver", model.ItemStatusInTransit, driver, driver, true},
		{"transit by stranger", model.ItemStatusInTransit, driver, requester, false},
		{"in use by requester", model.ItemStatusInUse, requester, requester, true},
		{"in use by donor", model.ItemStatusInUse, requester, donor, false},
		{"maintenance by holder", model.ItemStatusMaintenance, hub, hub, true},
		{"maintenance by stranger", model.ItemStatusMaintenance, hub, donor, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanMoveItem(tt.status, tt.holder, tt.actor))
		})
	}
}

func TestMoves(t *testing.T) {
	assert.Equal(t,
		[]model.ItemStatus{model.ItemStatusAwaitingPickup, model.ItemStatusMaintenance},
		Moves(model.ItemStatusAvailable, donor, donor))
	assert.Equal(t,
		[]model.ItemStatus{model.ItemStatusAwaitingPickup},
		Moves(model.ItemStatusAvailable, donor, requester))
	assert.Equal(t,
		[]model.ItemStatus{model.ItemStatusInTransit},
		Moves(model.ItemStatusAwaitingPickup, donor, driver))
	assert.Empty(t, Moves(model.ItemStatusInUse, requester, driver))
}

func TestApplyFullCycle(t *testing.T) {
	item := model.Item{ID: 1, Status: model.ItemStatusAvailable, HolderID: donor, Version: 3}

	item, err := Apply(item, Transition{To: model.ItemStatusAwaitingPickup, ActorID: 0})
	require.NoError(t, err)
	assert.Equal(t, donor, item.HolderID)
	assert.Equal(t, int64(3), item.Version)

	item, err = Apply(item, Transition{To: model.ItemStatusInTransit, ActorID: driver})
	require.NoError(t, err)
	assert.Equal(t, model.ItemStatusInTransit, item.Status)
	assert.Equal(t, driver, item.HolderID)

	item, err = Apply(item, Transition{To: model.ItemStatusInUse, ActorID: driver, HolderID: requester})
	require.NoError(t, err)
	assert.Equal(t, requester, item.HolderID)

	item, err = Apply(item, Transition{To: model.ItemStatusAvailable, ActorID: requester})
	require.NoError(t, err)
	assert.Equal(t, model.ItemStatusAvailable, item.Status)
	assert.Equal(t, requester, item.HolderID, "last accepting custodian keeps the item")
}

func TestApplyReturnToHub(t *testing.T) {
	item := model.Item{ID: 1, Status: model.ItemStatusInTransit, HolderID: driver}
	out, err := Apply(item, Transition{To: model.ItemStatusAvailable, ActorID: driver, HolderID: hub})
	require.NoError(t, err)
	assert.Equal(t, hub, out.HolderID)
}

func TestApplyInvalidTransitionLeavesItem(t *testing.T) {
	item := model.Item{ID: 1, Status: model.ItemStatusInUse, HolderID: requester}
	out, err := Apply(item, Transition{To: model.ItemStatusInTransit, ActorID: requester})
	require.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Equal(t, item, out)
}

func TestApplyUnauthorized(t *testing.T) {
	item := model.Item{ID: 1, Status: model.ItemStatusInTransit, HolderID: driver}
	out, err := Apply(item, Transition{To: model.ItemStatusInUse, ActorID: requester, HolderID: requester})
	require.ErrorIs(t, err, model.ErrUnauthorizedTransition)
	assert.Equal(t, item, out)

	// The holder cannot "collect" an item it already holds.
	item = model.Item{ID: 1, Status: model.ItemStatusAwaitingPickup, HolderID: donor}
	_, err = Apply(item, Transition{To: model.ItemStatusInTransit, ActorID: donor})
	require.ErrorIs(t, err, model.ErrUnauthorizedTransition)
}

func TestApplyDeliveryNeedsRecipient(t *testing.T) {
	item := model.Item{ID: 1, Status: model.ItemStatusInTransit, HolderID: driver}
	_, err := Apply(item, Transition{To: model.ItemStatusInUse, ActorID: driver})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestApplyUnknownStatus(t *testing.T) {
	item := model.Item{ID: 1, Status: model.ItemStatusAvailable, HolderID: donor}
	_, err := Apply(item, Transition{To: "perdido", ActorID: donor})
	require.ErrorIs(t, err, model.ErrValidation)
}
