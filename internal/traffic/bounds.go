package traffic

import (
	"fmt"
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// Bounds is a geographic viewport. MinLon may exceed MaxLon for a viewport
// that crosses the antimeridian.
type Bounds struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Validate checks coordinate ranges.
func (b Bounds) Validate() error {
	switch {
	case math.IsNaN(b.MinLat) || math.IsNaN(b.MinLon) || math.IsNaN(b.MaxLat) || math.IsNaN(b.MaxLon):
		return fmt.Errorf("%w: coordinates must be numbers", ErrInvalidBounds)
	case b.MinLat < -90 || b.MinLat > 90 || b.MaxLat < -90 || b.MaxLat > 90:
		return fmt.Errorf("%w: latitude must be within [-90, 90]", ErrInvalidBounds)
	case b.MinLon < -180 || b.MinLon > 180 || b.MaxLon < -180 || b.MaxLon > 180:
		return fmt.Errorf("%w: longitude must be within [-180, 180]", ErrInvalidBounds)
	case b.MinLat > b.MaxLat:
		return fmt.Errorf("%w: minLat %.6f is greater than maxLat %.6f", ErrInvalidBounds, b.MinLat, b.MaxLat)
	}
	return nil
}

// Rect returns the bounds as an s2 latitude-longitude rectangle.
func (b Bounds) Rect() s2.Rect {
	return s2.Rect{
		Lat: r1.Interval{Lo: degrees(b.MinLat), Hi: degrees(b.MaxLat)},
		Lng: s1.IntervalFromEndpoints(degrees(b.MinLon), degrees(b.MaxLon)),
	}
}

// Contains reports whether the station lies inside the bounds, edges included.
func (b Bounds) Contains(s *Station) bool {
	return b.Rect().ContainsLatLng(s2.LatLngFromDegrees(s.Lat, s.Lon))
}

func degrees(v float64) float64 {
	return (s1.Angle(v) * s1.Degree).Radians()
}
