// Package privacy decides how much of a party's location a viewer may see.
//
// Stored locations are always full precision. Resolve only shapes the value
// returned to one viewer, so the same subject can be shown at different
// precisions to different viewers at the same time.
package privacy

import (
	"fmt"
	"math"

	"github.com/erazemk/corrente/internal/model"
)

// Precision is the resolution at which a location is disclosed.
type Precision string

// Precisions.
const (
	PrecisionFull         Precision = "full"
	PrecisionNeighborhood Precision = "neighborhood"
)

// CoordinateDecimals is the rounding applied to coordinates for restricted
// viewers (about 1.1 km).
const CoordinateDecimals = 2

// Placeholders shown instead of missing or masked values.
const (
	NeighborhoodMissing = "Bairro não informado"
	PostalCodeMissing   = "CEP não informado"
	PostalCodeMask      = "-XXX"
	postalCodeVisible   = 5
)

// Visibility is the rule a role follows when viewing someone else's location.
type Visibility int

const (
	// Restricted viewers only ever see neighborhood and city.
	Restricted Visibility = iota
	// Always sees full precision.
	Always
	// WithActiveMission sees full precision for origins and destinations of
	// its own accepted or en-route missions.
	WithActiveMission
)

// policy is the single visibility table; roles absent from it are Restricted.
var policy = map[model.Role]Visibility{
	model.RoleAdmin:       Always,
	model.RoleManager:     Always,
	model.RoleDistributor: WithActiveMission,
}

// Subject is the party whose location is being shown.
type Subject struct {
	ID       int64
	Location model.Location
}

// Viewer is the party asking to see the location.
type Viewer struct {
	ID   int64
	Role model.Role
}

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// View is what a viewer gets to see.
type View struct {
	Precision   Precision    `json:"precision"`
	Value       string       `json:"value"`
	PostalCode  string       `json:"postal_code"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// CanViewFullAddress evaluates the policy table for viewer against subject.
// missions are the viewer's missions; only active ones linking the subject count.
// Every party sees its own location in full.
func CanViewFullAddress(viewer Viewer, subjectID int64, missions []model.Mission) bool {
	if viewer.ID != 0 && viewer.ID == subjectID {
		return true
	}
	switch policy[viewer.Role] {
	case Always:
		return true
	case WithActiveMission:
		for _, m := range missions {
			if m.DistributorID == nil || *m.DistributorID != viewer.ID {
				continue
			}
			if m.Active() && m.Links(subjectID) {
				return true
			}
		}
	}
	return false
}

// Resolve returns the location of subject as viewer may see it.
func Resolve(subject Subject, viewer Viewer, missions []model.Mission) View {
	loc := subject.Location

	if CanViewFullAddress(viewer, subject.ID, missions) {
		v := View{
			Precision:  PrecisionFull,
			Value:      FullAddress(loc),
			PostalCode: loc.PostalCode,
		}
		if loc.PostalCode == "" {
			v.PostalCode = PostalCodeMissing
		}
		if loc.Lat != nil && loc.Lng != nil {
			v.Coordinates = &Coordinates{Lat: *loc.Lat, Lng: *loc.Lng}
		}
		return v
	}

	v := View{
		Precision:  PrecisionNeighborhood,
		Value:      Neighborhood(loc),
		PostalCode: MaskPostalCode(loc.PostalCode),
	}
	if loc.Lat != nil && loc.Lng != nil {
		lat, lng := Obfuscate(*loc.Lat, *loc.Lng, CoordinateDecimals)
		v.Coordinates = &Coordinates{Lat: lat, Lng: lng}
	}
	return v
}

// FullAddress returns the street address, or "neighborhood, city - state" when
// no street address is stored.
func FullAddress(loc model.Location) string {
	if loc.Address != "" {
		return loc.Address
	}
	return fmt.Sprintf("%s, %s - %s", loc.Neighborhood, loc.City, loc.State)
}

// Neighborhood returns "neighborhood, city" with a placeholder for a missing neighborhood.
func Neighborhood(loc model.Location) string {
	n := loc.Neighborhood
	if n == "" {
		n = NeighborhoodMissing
	}
	return fmt.Sprintf("%s, %s", n, loc.City)
}

// MaskPostalCode keeps the first five characters and masks the rest.
func MaskPostalCode(code string) string {
	if code == "" {
		return PostalCodeMissing
	}
	r := []rune(code)
	if len(r) > postalCodeVisible {
		r = r[:postalCodeVisible]
	}
	return string(r) + PostalCodeMask
}

// Obfuscate rounds a coordinate pair to the given number of decimal places.
func Obfuscate(lat, lng float64, decimals int) (float64, float64) {
	return round(lat, decimals), round(lng, decimals)
}

func round(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
