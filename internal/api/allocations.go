package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/corrente/internal/allocation"
	"github.com/erazemk/corrente/internal/model"
	"github.com/erazemk/corrente/internal/realtime"
	"github.com/erazemk/corrente/internal/store"
)

// AllocationsHandler triggers and previews allocation runs.
type AllocationsHandler struct {
	DB        *sql.DB
	Allocator *allocation.Allocator
	Hub       *realtime.Hub
}

// matchEvent is the payload of a match.created feed event.
type matchEvent struct {
	Match   *model.Match   `json:"match"`
	Mission *model.Mission `json:"mission"`
}

// PublishAllocation announces the matches of a run on the feed and records
// when it finished.
func PublishAllocation(db *sql.DB, hub *realtime.Hub, res *allocation.Result) {
	for _, b := range res.Matched() {
		hub.Publish(realtime.EventMatchCreated, matchEvent{Match: b.Match, Mission: b.Mission})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.PutSetting(ctx, db, store.SettingLastAllocation, store.Clock().Format(time.RFC3339)); err != nil {
		slog.Error("recording allocation run", "run_id", res.RunID, "error", err)
	}
}

// Run handles POST /api/allocations.
func (h *AllocationsHandler) Run(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	res, err := h.Allocator.Run(r.Context())
	if err != nil {
		slog.Error("allocation run failed", "user", claims.Username, "error", err)
		jsonError(w, http.StatusInternalServerError, "allocation failed")
		return
	}
	if res.Bindings == nil {
		res.Bindings = []allocation.Binding{}
	}

	PublishAllocation(h.DB, h.Hub, res)
	slog.Info("allocation triggered", "user", claims.Username, "run_id", res.RunID, "matched", len(res.Matched()))
	jsonResponse(w, http.StatusOK, res)
}

// Plan handles GET /api/allocations/plan. Nothing is written.
func (h *AllocationsHandler) Plan(w http.ResponseWriter, r *http.Request) {
	category := model.Category(r.URL.Query().Get("category"))
	if category != "" && !category.Valid() {
		jsonError(w, http.StatusBadRequest, "invalid category")
		return
	}

	pending, err := store.ListPendingRequests(r.Context(), h.DB, category)
	if err != nil {
		slog.Error("failed to list pending requests", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to plan allocation")
		return
	}
	available, err := store.ListAvailableItems(r.Context(), h.DB, category)
	if err != nil {
		slog.Error("failed to list available items", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to plan allocation")
		return
	}

	plan := allocation.Plan(pending, available, store.Clock())
	if plan == nil {
		plan = []allocation.Binding{}
	}
	jsonResponse(w, http.StatusOK, plan)
}

// Matches handles GET /api/matches. Requesters only see their own matches.
func (h *AllocationsHandler) Matches(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var f store.MatchFilter
	var err error
	if f.ItemID, err = queryID(r, "item_id"); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item_id")
		return
	}
	if claims.Role == model.RoleRequester {
		f.RequesterID = claims.UserID
	} else if f.RequesterID, err = queryID(r, "requester_id"); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid requester_id")
		return
	}

	matches, err := store.ListMatches(r.Context(), h.DB, f)
	if err != nil {
		slog.Error("failed to list matches", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	if matches == nil {
		matches = []model.Match{}
	}
	jsonResponse(w, http.StatusOK, matches)
}
