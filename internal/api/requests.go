package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/corrente/internal/auth"
	"github.com/erazemk/corrente/internal/model"
	"github.com/erazemk/corrente/internal/priority"
	"github.com/erazemk/corrente/internal/realtime"
	"github.com/erazemk/corrente/internal/store"
)

// RequestsHandler handles equipment request endpoints. Requesters only see
// their own requests; staff (anyone allowed to rank) see all of them.
type RequestsHandler struct {
	DB     *sql.DB
	Policy *auth.Policy
	Hub    *realtime.Hub
}

type createRequestRequest struct {
	CategoryNeeded model.Category `json:"category_needed"`
	UrgencyLevel   int            `json:"urgency_level"`
	Notes          string         `json:"notes"`
	// RequesterID lets staff file a request on behalf of a requester.
	RequesterID int64 `json:"requester_id"`
}

type requestResponse struct {
	model.Request
	Queue *priority.Position `json:"queue,omitempty"`
}

func (h *RequestsHandler) staff(claims *auth.Claims) bool {
	return h.Policy.Allow(claims.Role, auth.ResRequests, auth.ActRank)
}

// List handles GET /api/requests.
func (h *RequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	q := r.URL.Query()

	f := store.RequestFilter{
		Status:   model.RequestStatus(q.Get("status")),
		Category: model.Category(q.Get("category")),
	}
	if f.Status != "" && !f.Status.Valid() {
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if h.staff(claims) {
		id, err := queryID(r, "requester_id")
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid requester_id")
			return
		}
		f.RequesterID = id
	} else {
		f.RequesterID = claims.UserID
	}

	requests, err := store.ListRequests(r.Context(), h.DB, f)
	if err != nil {
		slog.Error("failed to list requests", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list requests")
		return
	}
	if requests == nil {
		requests = []model.Request{}
	}
	jsonResponse(w, http.StatusOK, requests)
}

// Create handles POST /api/requests.
func (h *RequestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req createRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	requesterID := claims.UserID
	if req.RequesterID != 0 && req.RequesterID != claims.UserID {
		if !h.staff(claims) {
			jsonError(w, http.StatusForbidden, "cannot file requests for another requester")
			return
		}
		requester, err := store.GetUser(r.Context(), h.DB, req.RequesterID)
		if err != nil || requester == nil || requester.DeletedAt != nil {
			jsonError(w, http.StatusBadRequest, "unknown requester")
			return
		}
		requesterID = requester.ID
	}

	created, err := store.CreateRequest(r.Context(), h.DB, requesterID, req.CategoryNeeded, req.UrgencyLevel, req.Notes)
	if err != nil {
		domainError(w, err, "failed to create request")
		return
	}

	slog.Info("request filed",
		"user", claims.Username,
		"request_id", created.ID,
		"category", created.CategoryNeeded,
		"urgency", created.UrgencyLevel,
	)
	jsonResponse(w, http.StatusCreated, created)
}

// Get handles GET /api/requests/{id}. Pending requests include their place in
// the category queue.
func (h *RequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, ok := h.load(w, r)
	if !ok {
		return
	}

	resp := requestResponse{Request: *req}
	if req.Status == model.RequestStatusPending {
		pending, err := store.ListPendingRequests(r.Context(), h.DB, req.CategoryNeeded)
		if err != nil {
			slog.Error("failed to list pending requests", "error", err)
			jsonError(w, http.StatusInternalServerError, "failed to get request")
			return
		}
		if pos, ok := priority.QueuePosition(pending, req.ID, store.Clock()); ok {
			resp.Queue = &pos
		}
	}
	jsonResponse(w, http.StatusOK, resp)
}

// Cancel handles POST /api/requests/{id}/cancel.
func (h *RequestsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	req, ok := h.load(w, r)
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	cancelled, err := store.CancelRequest(r.Context(), h.DB, req.ID)
	if err != nil {
		domainError(w, err, "failed to cancel request")
		return
	}

	h.Hub.Publish(realtime.EventRequestCancelled, cancelled)
	slog.Info("request cancelled", "user", claims.Username, "request_id", cancelled.ID)
	jsonResponse(w, http.StatusOK, cancelled)
}

// Ranking handles GET /api/requests/ranking. Without ?category every
// category's queue is returned.
func (h *RequestsHandler) Ranking(w http.ResponseWriter, r *http.Request) {
	category := model.Category(r.URL.Query().Get("category"))
	if category != "" && !category.Valid() {
		jsonError(w, http.StatusBadRequest, "invalid category")
		return
	}

	pending, err := store.ListPendingRequests(r.Context(), h.DB, category)
	if err != nil {
		slog.Error("failed to list pending requests", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to rank requests")
		return
	}

	byCategory := make(map[model.Category][]model.Request)
	for _, req := range pending {
		byCategory[req.CategoryNeeded] = append(byCategory[req.CategoryNeeded], req)
	}

	now := store.Clock()
	queues := make(map[model.Category][]priority.Ranked, len(byCategory))
	for c, reqs := range byCategory {
		queues[c] = priority.Rank(reqs, now)
	}
	if category != "" && queues[category] == nil {
		queues[category] = []priority.Ranked{}
	}
	jsonResponse(w, http.StatusOK, queues)
}

// load fetches the {id} request and hides other people's requests from
// non-staff callers.
func (h *RequestsHandler) load(w http.ResponseWriter, r *http.Request) (*model.Request, bool) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return nil, false
	}

	req, err := store.GetRequest(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get request", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get request")
		return nil, false
	}
	claims := GetClaims(r.Context())
	if req == nil || (req.RequesterID != claims.UserID && !h.staff(claims)) {
		jsonError(w, http.StatusNotFound, "request not found")
		return nil, false
	}
	return req, true
}
