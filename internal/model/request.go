package model

import "time"

// Request is a standing need for one item of a category.
type Request struct {
	ID             int64         `json:"id"`
	RequesterID    int64         `json:"requester_id"`
	CategoryNeeded Category      `json:"category_needed"`
	UrgencyLevel   int           `json:"urgency_level"`
	Notes          string        `json:"notes,omitempty"`
	Status         RequestStatus `json:"status"`
	MatchedItemID  *int64        `json:"matched_item_id,omitempty"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// RequestStatus is the state of a request.
type RequestStatus string

// Request statuses.
const (
	RequestStatusPending   RequestStatus = "pendente"
	RequestStatusFulfilled RequestStatus = "atendido"
	RequestStatusCancelled RequestStatus = "cancelado"
)

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusFulfilled, RequestStatusCancelled:
		return true
	}
	return false
}

// Urgency bounds.
const (
	UrgencyLow    = 1
	UrgencyMedium = 2
	UrgencyHigh   = 3
)

// UrgencyLabel returns the display name of an urgency level.
func UrgencyLabel(level int) string {
	switch level {
	case UrgencyLow:
		return "Baixa Urgência"
	case UrgencyMedium:
		return "Urgência Média"
	case UrgencyHigh:
		return "Alta Urgência"
	default:
		return "Não especificado"
	}
}

// Match binds one item to one request. Matches are never updated or deleted.
type Match struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"item_id"`
	RequestID int64     `json:"request_id"`
	CreatedAt time.Time `json:"created_at"`

	// Joined fields (not always populated).
	Category    Category `json:"category,omitempty"`
	RequesterID int64    `json:"requester_id,omitempty"`
}
