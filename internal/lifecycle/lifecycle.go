// Package lifecycle validates custody changes of a single item.
//
// Every legal edge lives in one table together with who may initiate it and
// how the holder changes. Apply never mutates its input; persisting the
// returned item atomically is the store's job.
package lifecycle

import (
	"github.com/erazemk/corrente/internal/model"
)

// Authority names the party allowed to initiate an edge.
type Authority int

const (
	// AnyActor: any authenticated party (or the allocator) may initiate.
	AnyActor Authority = iota
	// CurrentHolder: only the party holding the item may give it away.
	CurrentHolder
	// Receiver: the actor takes custody and must not already hold the item.
	Receiver
)

// HolderRule describes how the holder changes along an edge.
type HolderRule int

const (
	// KeepHolder leaves the holder unchanged.
	KeepHolder HolderRule = iota
	// ActorHolds makes the actor the new holder.
	ActorHolds
	// RecipientHolds makes the named recipient the new holder; a recipient is required.
	RecipientHolds
	// RecipientOrCurrent uses the named recipient if given, else the current holder.
	RecipientOrCurrent
)

// Edge is a legal transition with its policy.
type Edge struct {
	From      model.ItemStatus
	To        model.ItemStatus
	Authority Authority
	Holder    HolderRule
}

// edges is the complete transition table.
var edges = []Edge{
	{model.ItemStatusAvailable, model.ItemStatusAwaitingPickup, AnyActor, KeepHolder},
	{model.ItemStatusAvailable, model.ItemStatusMaintenance, CurrentHolder, RecipientOrCurrent},

	{model.ItemStatusAwaitingPickup, model.ItemStatusInTransit, Receiver, ActorHolds},
	{model.ItemStatusAwaitingPickup, model.ItemStatusAvailable, CurrentHolder, KeepHolder},

	{model.ItemStatusInTransit, model.ItemStatusInUse, CurrentHolder, RecipientHolds},
	{model.ItemStatusInTransit, model.ItemStatusAvailable, CurrentHolder, RecipientOrCurrent},

	{model.ItemStatusInUse, model.ItemStatusAvailable, CurrentHolder, RecipientOrCurrent},
	{model.ItemStatusInUse, model.ItemStatusMaintenance, CurrentHolder, RecipientOrCurrent},

	{model.ItemStatusMaintenance, model.ItemStatusAvailable, CurrentHolder, RecipientOrCurrent},
}

type edgeKey struct {
	from, to model.ItemStatus
}

var table = func() map[edgeKey]Edge {
	m := make(map[edgeKey]Edge, len(edges))
	for _, e := range edges {
		if !e.From.Valid() || !e.To.Valid() || e.From == e.To {
			panic("lifecycle: malformed edge " + string(e.From) + " -> " + string(e.To))
		}
		m[edgeKey{e.From, e.To}] = e
	}
	for _, s := range model.ItemStatuses {
		if len(next(m, s)) == 0 {
			panic("lifecycle: status without exits: " + string(s))
		}
	}
	return m
}()

func next(m map[edgeKey]Edge, from model.ItemStatus) []model.ItemStatus {
	var out []model.ItemStatus
	for _, s := range model.ItemStatuses {
		if _, ok := m[edgeKey{from, s}]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Lookup returns the edge from -> to, if legal.
func Lookup(from, to model.ItemStatus) (Edge, bool) {
	e, ok := table[edgeKey{from, to}]
	return e, ok
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to model.ItemStatus) bool {
	_, ok := Lookup(from, to)
	return ok
}

// Next returns the legal destinations from a status in lifecycle order.
func Next(from model.ItemStatus) []model.ItemStatus {
	return next(table, from)
}

// Moves returns the destinations actorID may move an item to.
func Moves(status model.ItemStatus, holderID, actorID int64) []model.ItemStatus {
	var out []model.ItemStatus
	for _, to := range Next(status) {
		e, _ := Lookup(status, to)
		if e.authorizes(holderID, actorID) {
			out = append(out, to)
		}
	}
	return out
}

// CanMoveItem reports whether actorID may initiate any move of an item in the
// given status held by holderID. Available items may be assigned by anyone,
// an item awaiting pickup may be collected by any party other than its holder,
// and everything else only by the current holder.
func CanMoveItem(status model.ItemStatus, holderID, actorID int64) bool {
	return len(Moves(status, holderID, actorID)) > 0
}

func (e Edge) authorizes(holderID, actorID int64) bool {
	switch e.Authority {
	case AnyActor:
		return true
	case CurrentHolder:
		return actorID == holderID
	case Receiver:
		return actorID != 0 && actorID != holderID
	}
	return false
}

// Transition is a requested custody change.
type Transition struct {
	To      model.ItemStatus
	ActorID int64
	// HolderID names the receiving party for edges that hand the item over.
	// Zero means "not specified".
	HolderID int64
}

// Apply validates tr against the item's current state and returns the item
// with status and holder updated together. The version is left untouched so
// the caller can use it as the expected version of a conditional write.
func Apply(item model.Item, tr Transition) (model.Item, error) {
	if !tr.To.Valid() {
		return item, &model.ValidationError{Field: "status", Reason: "unknown status " + string(tr.To)}
	}

	e, ok := Lookup(item.Status, tr.To)
	if !ok {
		return item, &model.TransitionError{From: item.Status, To: tr.To}
	}
	if !e.authorizes(item.HolderID, tr.ActorID) {
		return item, &model.AuthorizationError{From: item.Status, To: tr.To, ActorID: tr.ActorID}
	}

	holder := item.HolderID
	switch e.Holder {
	case ActorHolds:
		holder = tr.ActorID
	case RecipientHolds:
		if tr.HolderID == 0 {
			return item, &model.ValidationError{Field: "holder_id", Reason: "recipient required for " + string(tr.To)}
		}
		holder = tr.HolderID
	case RecipientOrCurrent:
		if tr.HolderID != 0 {
			holder = tr.HolderID
		}
	}

	out := item
	out.Status = tr.To
	out.HolderID = holder
	return out, nil
}
