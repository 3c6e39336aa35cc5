package traffic

import (
	"math"
	"sort"
)

// Range is a closed output interval.
type Range struct {
	Min float64
	Max float64
}

// Marker radius ranges in pixels.
var (
	// AllDayRadiusRange is used when no time filter is active.
	AllDayRadiusRange = Range{Min: 0, Max: 25}

	// FilteredRadiusRange is used when a time filter is active.
	FilteredRadiusRange = Range{Min: 3, Max: 50}
)

// RadiusRange returns the radius range for the given time filter.
func RadiusRange(timeFilter int) Range {
	if timeFilter == NoFilter {
		return AllDayRadiusRange
	}
	return FilteredRadiusRange
}

// RadiusScale maps total traffic in [0, DomainMax] to a marker radius using a
// square-root scale.
type RadiusScale struct {
	DomainMax float64
	Range     Range
}

// NewRadiusScale creates a radius scale for the given maximum traffic.
func NewRadiusScale(maxTraffic int, r Range) RadiusScale {
	return RadiusScale{DomainMax: float64(maxTraffic), Range: r}
}

// Scale returns the radius for totalTraffic. A non-positive domain maximum
// or a negative input maps to Range.Min. Inputs above DomainMax extrapolate.
func (s RadiusScale) Scale(totalTraffic float64) float64 {
	if s.DomainMax <= 0 || totalTraffic <= 0 || math.IsNaN(totalTraffic) {
		return s.Range.Min
	}
	t := math.Sqrt(totalTraffic) / math.Sqrt(s.DomainMax)
	return s.Range.Min + t*(s.Range.Max-s.Range.Min)
}

// Flow buckets.
const (
	FlowMostlyArrivals   = 0.0
	FlowBalanced         = 0.5
	FlowMostlyDepartures = 1.0
)

// FlowRatioScale quantizes a departure ratio in [0, 1] into discrete buckets.
type FlowRatioScale struct {
	buckets    []float64
	thresholds []float64
}

// DefaultFlowRatioScale maps onto {0, 0.5, 1}.
var DefaultFlowRatioScale = NewFlowRatioScale(FlowMostlyArrivals, FlowBalanced, FlowMostlyDepartures)

// NewFlowRatioScale creates a quantize scale over [0, 1] with equal-width
// segments, one per bucket. Panics if no buckets are given.
func NewFlowRatioScale(buckets ...float64) FlowRatioScale {
	if len(buckets) == 0 {
		panic("traffic: flow ratio scale needs at least one bucket")
	}
	n := len(buckets)
	thresholds := make([]float64, n-1)
	for i := range thresholds {
		thresholds[i] = float64(i+1) / float64(n)
	}
	return FlowRatioScale{buckets: append([]float64(nil), buckets...), thresholds: thresholds}
}

// Scale returns the bucket for ratio. A value equal to a threshold goes to the
// higher bucket. NaN falls back to the middle bucket; out-of-domain values clamp.
func (s FlowRatioScale) Scale(ratio float64) float64 {
	if math.IsNaN(ratio) {
		return s.buckets[len(s.buckets)/2]
	}
	i := sort.Search(len(s.thresholds), func(i int) bool { return s.thresholds[i] > ratio })
	return s.buckets[i]
}

// StationBucket returns the bucket for a station's flow ratio.
// Stations without traffic are treated as balanced.
func (s FlowRatioScale) StationBucket(st *Station) float64 {
	ratio, ok := st.FlowRatio()
	if !ok {
		return s.Scale(math.NaN())
	}
	return s.Scale(ratio)
}

// FlowLabel names a flow bucket for display.
func FlowLabel(bucket float64) string {
	switch {
	case bucket < FlowBalanced:
		return "mostly_arrivals"
	case bucket > FlowBalanced:
		return "mostly_departures"
	default:
		return "balanced"
	}
}
