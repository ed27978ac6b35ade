package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/corrente/internal/model"
	"github.com/erazemk/corrente/internal/realtime"
	"github.com/erazemk/corrente/internal/store"
)

// InfoHandler serves the catalog, the dashboard counters and the live feed.
type InfoHandler struct {
	DB  *sql.DB
	Hub *realtime.Hub
}

type catalogResponse struct {
	Categories   []model.CatalogEntry `json:"categories"`
	Conditions   []model.CatalogEntry `json:"conditions"`
	ItemStatuses []model.CatalogEntry `json:"item_statuses"`
	Urgency      []model.CatalogEntry `json:"urgency_levels"`
	Roles        []model.CatalogEntry `json:"roles"`
}

// Catalog handles GET /api/catalog.
func (h *InfoHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	resp := catalogResponse{
		Categories: model.CategoryCatalog(),
		Conditions: model.ConditionCatalog(),
	}
	for _, s := range model.ItemStatuses {
		resp.ItemStatuses = append(resp.ItemStatuses, model.CatalogEntry{Value: string(s), Label: s.Label()})
	}
	for level := model.UrgencyLow; level <= model.UrgencyHigh; level++ {
		resp.Urgency = append(resp.Urgency, model.CatalogEntry{Value: strconv.Itoa(level), Label: model.UrgencyLabel(level)})
	}
	for _, role := range model.Roles {
		resp.Roles = append(resp.Roles, model.CatalogEntry{Value: string(role), Label: role.Label()})
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	jsonResponse(w, http.StatusOK, resp)
}

type statsResponse struct {
	*store.Stats
	LastAllocation string `json:"last_allocation,omitempty"`
	FeedClients    int    `json:"feed_clients"`
}

// Stats handles GET /api/stats.
func (h *InfoHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := store.GetStats(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to get stats", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	last, err := store.GetSetting(r.Context(), h.DB, store.SettingLastAllocation)
	if err != nil {
		slog.Error("failed to get last allocation", "error", err)
	}

	resp := statsResponse{Stats: stats, LastAllocation: last}
	if h.Hub != nil {
		resp.FeedClients = h.Hub.Clients()
	}
	jsonResponse(w, http.StatusOK, resp)
}

// Feed handles GET /api/feed, a websocket of realtime events.
func (h *InfoHandler) Feed(w http.ResponseWriter, r *http.Request) {
	if h.Hub == nil {
		jsonError(w, http.StatusServiceUnavailable, "feed disabled")
		return
	}
	claims := GetClaims(r.Context())
	h.Hub.Serve(w, r, claims.UserID)
}
