package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/corrente/internal/auth"
	"github.com/erazemk/corrente/internal/model"
	"github.com/erazemk/corrente/internal/realtime"
	"github.com/erazemk/corrente/internal/store"
)

// MissionsHandler handles delivery mission endpoints.
type MissionsHandler struct {
	DB     *sql.DB
	Policy *auth.Policy
	Hub    *realtime.Hub
}

func (h *MissionsHandler) staff(claims *auth.Claims) bool {
	return h.Policy.Allow(claims.Role, auth.ResRequests, auth.ActRank)
}

// List handles GET /api/missions. Staff see every mission, distributors see
// open missions plus their own, everyone else the missions they are a party to.
func (h *MissionsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	status := model.MissionStatus(r.URL.Query().Get("status"))

	var filters []store.MissionFilter
	switch {
	case h.staff(claims):
		filters = []store.MissionFilter{{Status: status}}
	case claims.Role == model.RoleDistributor:
		if status == "" || status == model.MissionStatusOpen {
			filters = append(filters, store.MissionFilter{Status: model.MissionStatusOpen})
		}
		if status != model.MissionStatusOpen {
			filters = append(filters, store.MissionFilter{Status: status, DistributorID: claims.UserID})
		}
	default:
		filters = []store.MissionFilter{{Status: status, PartyID: claims.UserID}}
	}

	missions := []model.Mission{}
	for _, f := range filters {
		found, err := store.ListMissions(r.Context(), h.DB, f)
		if err != nil {
			slog.Error("failed to list missions", "error", err)
			jsonError(w, http.StatusInternalServerError, "failed to list missions")
			return
		}
		missions = append(missions, found...)
	}
	jsonResponse(w, http.StatusOK, missions)
}

// Accept handles POST /api/missions/{id}/accept.
func (h *MissionsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid mission id")
		return
	}
	claims := GetClaims(r.Context())

	m, err := store.AcceptMission(r.Context(), h.DB, id, claims.UserID)
	if err != nil {
		domainError(w, err, "failed to accept mission")
		return
	}
	h.announce(claims, m)
	jsonResponse(w, http.StatusOK, m)
}

// Start handles POST /api/missions/{id}/start.
func (h *MissionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, model.MissionStatusEnRoute)
}

// Complete handles POST /api/missions/{id}/complete.
func (h *MissionsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, model.MissionStatusCompleted)
}

// Cancel handles POST /api/missions/{id}/cancel.
func (h *MissionsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, model.MissionStatusCancelled)
}

// advance moves a mission on behalf of its distributor. Staff may move any
// mission.
func (h *MissionsHandler) advance(w http.ResponseWriter, r *http.Request, to model.MissionStatus) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid mission id")
		return
	}
	claims := GetClaims(r.Context())

	actorID := claims.UserID
	if h.staff(claims) {
		actorID = 0
	}

	m, err := store.AdvanceMission(r.Context(), h.DB, id, actorID, to)
	if err != nil {
		domainError(w, err, "failed to update mission")
		return
	}
	h.announce(claims, m)
	jsonResponse(w, http.StatusOK, m)
}

func (h *MissionsHandler) announce(claims *auth.Claims, m *model.Mission) {
	h.Hub.Publish(realtime.EventMissionUpdated, m)
	slog.Info("mission updated", "user", claims.Username, "mission_id", m.ID, "status", m.Status)
}
