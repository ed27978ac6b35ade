package model

import "time"

// Item is a single donated unit of equipment (individually tracked).
type Item struct {
	ID          int64      `json:"id"`
	Category    Category   `json:"category"`
	Condition   Condition  `json:"condition"`
	Description string     `json:"description,omitempty"`
	PhotoMime   string     `json:"photo_mime,omitempty"`
	Status      ItemStatus `json:"status"`
	HolderID    int64      `json:"holder_id"`
	DonorID     int64      `json:"donor_id"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	// Joined fields (not always populated).
	HolderName string `json:"holder_name,omitempty"`
}

// ItemStatus is the custody state of an item.
type ItemStatus string

// Item statuses.
const (
	ItemStatusAvailable      ItemStatus = "disponivel"
	ItemStatusAwaitingPickup ItemStatus = "aguardando_coleta"
	ItemStatusInTransit      ItemStatus = "em_transito"
	ItemStatusInUse          ItemStatus = "em_uso"
	ItemStatusMaintenance    ItemStatus = "manutencao"
)

// ItemStatuses lists every item status in lifecycle order.
var ItemStatuses = []ItemStatus{
	ItemStatusAvailable,
	ItemStatusAwaitingPickup,
	ItemStatusInTransit,
	ItemStatusInUse,
	ItemStatusMaintenance,
}

// Valid reports whether s is a known status.
func (s ItemStatus) Valid() bool {
	for _, known := range ItemStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Label returns the display name of the status.
func (s ItemStatus) Label() string {
	switch s {
	case ItemStatusAvailable:
		return "Disponível"
	case ItemStatusAwaitingPickup:
		return "Aguardando Coleta"
	case ItemStatusInTransit:
		return "Em Trânsito"
	case ItemStatusInUse:
		return "Em Uso"
	case ItemStatusMaintenance:
		return "Manutenção"
	default:
		return string(s)
	}
}

// CustodyEvent records one status/holder change of an item.
type CustodyEvent struct {
	ID           int64      `json:"id"`
	ItemID       int64      `json:"item_id"`
	FromStatus   ItemStatus `json:"from_status"`
	ToStatus     ItemStatus `json:"to_status"`
	FromHolderID int64      `json:"from_holder_id"`
	ToHolderID   int64      `json:"to_holder_id"`
	ActorID      int64      `json:"actor_id"`
	Notes        string     `json:"notes,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`

	// Joined fields (not always populated).
	FromHolderName string `json:"from_holder_name,omitempty"`
	ToHolderName   string `json:"to_holder_name,omitempty"`
}
