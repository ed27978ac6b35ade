package model

import "time"

// Mission is a logistics assignment to carry a matched item from origin to destination.
type Mission struct {
	ID            int64         `json:"id"`
	MatchID       int64         `json:"match_id"`
	ItemID        int64         `json:"item_id"`
	OriginID      int64         `json:"origin_id"`
	DestinationID int64         `json:"destination_id"`
	DistributorID *int64        `json:"distributor_id,omitempty"`
	Status        MissionStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// MissionStatus is the state of a mission.
type MissionStatus string

// Mission statuses.
const (
	MissionStatusOpen      MissionStatus = "pendente"
	MissionStatusAccepted  MissionStatus = "aceita"
	MissionStatusEnRoute   MissionStatus = "em_rota"
	MissionStatusCompleted MissionStatus = "concluida"
	MissionStatusCancelled MissionStatus = "cancelada"
)

var missionTransitions = map[MissionStatus][]MissionStatus{
	MissionStatusOpen:     {MissionStatusAccepted, MissionStatusCancelled},
	MissionStatusAccepted: {MissionStatusEnRoute, MissionStatusCancelled},
	MissionStatusEnRoute:  {MissionStatusCompleted, MissionStatusCancelled},
}

// CanAdvance reports whether a mission may move from one status to another.
func (s MissionStatus) CanAdvance(to MissionStatus) bool {
	for _, next := range missionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Active reports whether the mission currently grants its distributor access
// to the full addresses of origin and destination.
func (m Mission) Active() bool {
	return m.Status == MissionStatusAccepted || m.Status == MissionStatusEnRoute
}

// Links reports whether the mission has partyID as origin or destination.
func (m Mission) Links(partyID int64) bool {
	return m.OriginID == partyID || m.DestinationID == partyID
}
