package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/corrente/internal/auth"
	"github.com/erazemk/corrente/internal/imaging"
	"github.com/erazemk/corrente/internal/lifecycle"
	"github.com/erazemk/corrente/internal/metrics"
	"github.com/erazemk/corrente/internal/model"
	"github.com/erazemk/corrente/internal/realtime"
	"github.com/erazemk/corrente/internal/store"
)

// ItemsHandler handles donated item endpoints.
type ItemsHandler struct {
	DB      *sql.DB
	Policy  *auth.Policy
	Hub     *realtime.Hub
	Metrics *metrics.Metrics
}

type createItemRequest struct {
	Category    model.Category  `json:"category"`
	Condition   model.Condition `json:"condition"`
	Description string          `json:"description"`
	// DonorID lets staff register an item on behalf of a donor.
	DonorID int64 `json:"donor_id"`
}

type transitionRequest struct {
	To       model.ItemStatus `json:"to"`
	HolderID int64            `json:"holder_id"`
	Notes    string           `json:"notes"`
	// Version, when set, must match the current version of the item.
	Version int64 `json:"version"`
}

type itemResponse struct {
	model.Item
	Moves []model.ItemStatus `json:"moves"`
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ItemFilter{
		Status:   model.ItemStatus(q.Get("status")),
		Category: model.Category(q.Get("category")),
	}
	var err error
	if f.HolderID, err = queryID(r, "holder_id"); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid holder_id")
		return
	}
	if f.DonorID, err = queryID(r, "donor_id"); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid donor_id")
		return
	}

	items, err := store.ListItems(r.Context(), h.DB, f)
	if err != nil {
		slog.Error("failed to list items", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items. The donor is the caller unless staff name
// another one.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	donorID := claims.UserID
	if req.DonorID != 0 && req.DonorID != claims.UserID {
		if !h.Policy.Allow(claims.Role, auth.ResItems, auth.ActUpdate) {
			jsonError(w, http.StatusForbidden, "cannot register items for another donor")
			return
		}
		donor, err := store.GetUser(r.Context(), h.DB, req.DonorID)
		if err != nil || donor == nil || donor.DeletedAt != nil {
			jsonError(w, http.StatusBadRequest, "unknown donor")
			return
		}
		donorID = donor.ID
	}

	item, err := store.CreateItem(r.Context(), h.DB, donorID, req.Category, req.Condition, req.Description)
	if err != nil {
		domainError(w, err, "failed to create item")
		return
	}

	slog.Info("item registered", "user", claims.Username, "item_id", item.ID, "category", item.Category)
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}. The response lists the statuses the caller
// may move the item to.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, ok := h.load(w, r)
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	moves, err := store.ItemMoves(r.Context(), h.DB, *item, claims.UserID)
	if err != nil {
		slog.Error("failed to resolve item moves", "item_id", item.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if moves == nil {
		moves = []model.ItemStatus{}
	}
	jsonResponse(w, http.StatusOK, itemResponse{Item: *item, Moves: moves})
}

// Transition handles POST /api/items/{id}/transition.
func (h *ItemsHandler) Transition(w http.ResponseWriter, r *http.Request) {
	item, ok := h.load(w, r)
	if !ok {
		return
	}
	claims := GetClaims(r.Context())

	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Version != 0 && req.Version != item.Version {
		domainError(w, &model.ConflictError{Entity: "item", ID: item.ID}, "failed to move item")
		return
	}
	if req.HolderID != 0 {
		holder, err := store.GetUser(r.Context(), h.DB, req.HolderID)
		if err != nil || holder == nil || holder.DeletedAt != nil {
			jsonError(w, http.StatusBadRequest, "unknown holder")
			return
		}
	}

	from := item.Status
	updated, err := store.TransitionItem(r.Context(), h.DB, *item, lifecycle.Transition{
		To:       req.To,
		ActorID:  claims.UserID,
		HolderID: req.HolderID,
	}, req.Notes)
	if err != nil {
		domainError(w, err, "failed to move item")
		return
	}

	h.Metrics.IncrementTransition(string(from), string(updated.Status))
	h.Hub.Publish(realtime.EventItemTransitioned, updated)
	slog.Info("item moved",
		"user", claims.Username,
		"item_id", updated.ID,
		"from", from,
		"to", updated.Status,
		"holder_id", updated.HolderID,
	)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	if err := store.DeleteItem(r.Context(), h.DB, id); err != nil {
		domainError(w, err, "failed to delete item")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("item withdrawn", "user", claims.Username, "item_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

// UploadPhoto handles PUT /api/items/{id}/photo. The donor, the current
// holder and staff may replace the photo.
func (h *ItemsHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	item, ok := h.load(w, r)
	if !ok {
		return
	}
	claims := GetClaims(r.Context())
	if claims.UserID != item.DonorID && claims.UserID != item.HolderID &&
		!h.Policy.Allow(claims.Role, auth.ResItems, auth.ActUpdate) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxBytes+1<<20)

	if err := r.ParseMultipartForm(imaging.MaxBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "photo file required")
		return
	}
	defer file.Close()

	photo, err := imaging.PreparePhoto(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetItemPhoto(r.Context(), h.DB, item.ID, photo.Data, photo.MIME); err != nil {
		slog.Error("failed to save photo", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save photo")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "photo uploaded",
		"width":   photo.Width,
		"height":  photo.Height,
	})
}

// GetPhoto handles GET /api/items/{id}/photo. ?size=thumb serves a thumbnail.
func (h *ItemsHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	data, mime, err := store.GetItemPhoto(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get photo", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get photo")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no photo")
		return
	}

	if r.URL.Query().Get("size") == "thumb" {
		thumb, err := imaging.Thumbnail(data)
		if err != nil {
			slog.Error("failed to build thumbnail", "item_id", id, "error", err)
			jsonError(w, http.StatusInternalServerError, "failed to get photo")
			return
		}
		data, mime = thumb.Data, thumb.MIME
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// History handles GET /api/items/{id}/history.
func (h *ItemsHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	history, err := store.GetItemHistory(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get item history", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item history")
		return
	}
	if history == nil {
		history = []model.CustodyEvent{}
	}
	jsonResponse(w, http.StatusOK, history)
}

// load fetches the {id} item, writing a 400 or 404 when it can't.
func (h *ItemsHandler) load(w http.ResponseWriter, r *http.Request) (*model.Item, bool) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return nil, false
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return nil, false
	}
	if item == nil || item.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return nil, false
	}
	return item, true
}
