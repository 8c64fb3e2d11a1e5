// Package geo holds validated WGS84 coordinates.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coordinate is an immutable WGS84 position.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func New(lat, lon float64) (Coordinate, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return Coordinate{}, fmt.Errorf("coordinates must be finite numbers")
	}
	if lat < -90 || lat > 90 {
		return Coordinate{}, fmt.Errorf("latitude %v out of range [-90,90]", lat)
	}
	if lon < -180 || lon > 180 {
		return Coordinate{}, fmt.Errorf("longitude %v out of range [-180,180]", lon)
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

// Parse reads latitude and longitude from their text form.
func Parse(lat, lon string) (Coordinate, error) {
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid latitude %q: %w", lat, err)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid longitude %q: %w", lon, err)
	}
	return New(la, lo)
}

func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}
