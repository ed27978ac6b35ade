package model

import (
	"fmt"
	"time"
)

// User is a party of the system: donor, requester, volunteer or staff.
// Location fields are stored at full precision; reads go through the privacy filter.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Name         string     `json:"name,omitempty"`
	Location     Location   `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Location holds the address attributes of a party.
type Location struct {
	Address      string   `json:"address,omitempty"`
	Neighborhood string   `json:"neighborhood,omitempty"`
	City         string   `json:"city,omitempty"`
	State        string   `json:"state,omitempty"`
	PostalCode   string   `json:"postal_code,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lng          *float64 `json:"lng,omitempty"`
}

// Role is the capability class of a party.
type Role string

// Roles.
const (
	RoleAdmin       Role = "admin"
	RoleManager     Role = "gestor"
	RoleDonor       Role = "doador"
	RoleRequester   Role = "solicitante"
	RoleDistributor Role = "distribuidor"
	RoleStorage     Role = "armazenador"
)

// Roles lists every role.
var Roles = []Role{RoleAdmin, RoleManager, RoleDonor, RoleRequester, RoleDistributor, RoleStorage}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Label returns the display name of the role.
func (r Role) Label() string {
	switch r {
	case RoleAdmin:
		return "Administrador"
	case RoleManager:
		return "Gestor"
	case RoleDonor:
		return "Doador"
	case RoleRequester:
		return "Solicitante"
	case RoleDistributor:
		return "Distribuidor"
	case RoleStorage:
		return "Armazenador"
	default:
		return string(r)
	}
}

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// ValidatePassword checks password requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	return nil
}
