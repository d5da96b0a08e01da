package domain

import "context"

// GeocodingResult is the coordinate pair a geocoding provider resolved for
// an address. Found is false when the provider had no match; that is not an
// error.
type GeocodingResult struct {
	Lat   float64
	Lng   float64
	Found bool
}

// Geocoder resolves facility addresses to coordinates so proximity queries
// can find them.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (GeocodingResult, error)
}
