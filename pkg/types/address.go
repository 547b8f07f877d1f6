package types

import "strings"

// Address is a delivery destination. Coordinates are optional; when absent
// the caller-declared DistanceKM is used for fee quotes.
type Address struct {
	Street     string   `json:"street" validate:"required,min=5"`
	Detail     string   `json:"detail,omitempty"`
	City       string   `json:"city" validate:"required"`
	PostalCode string   `json:"postal_code,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
	DistanceKM *float64 `json:"distance_km,omitempty" validate:"omitempty,gte=0"`
}

// HasCoordinates reports whether both lat and lng were supplied.
func (a Address) HasCoordinates() bool {
	return a.Lat != nil && a.Lng != nil
}

func (a Address) String() string {
	parts := []string{strings.TrimSpace(a.Street)}
	if d := strings.TrimSpace(a.Detail); d != "" {
		parts = append(parts, d)
	}
	if c := strings.TrimSpace(a.City); c != "" {
		parts = append(parts, c)
	}
	return strings.Join(parts, ", ")
}
