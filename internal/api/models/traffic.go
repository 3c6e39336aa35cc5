package models

// TrafficWindow describes the tolerance window applied to a time filter.
type TrafficWindow struct {
	ToleranceMinutes int    `json:"toleranceMinutes"`
	Basis            string `json:"basis"`
}

// RadiusRange is the pixel range used for marker radii.
type RadiusRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// StationTraffic is one station's traffic with its rendering values.
type StationTraffic struct {
	Code         string   `json:"code"`
	Name         string   `json:"name"`
	Lat          float64  `json:"lat"`
	Lon          float64  `json:"lon"`
	Capacity     int      `json:"capacity,omitempty"`
	Arrivals     int      `json:"arrivals"`
	Departures   int      `json:"departures"`
	TotalTraffic int      `json:"totalTraffic"`
	Radius       float64  `json:"radius"`
	FlowRatio    *float64 `json:"flowRatio"`
	FlowBucket   float64  `json:"flowBucket"`
	FlowLabel    string   `json:"flowLabel"`
}

// TrafficSnapshot is the response for GET /v1/stations/traffic.
type TrafficSnapshot struct {
	// TimeFilter is minutes since midnight, or -1 for any time.
	TimeFilter  int              `json:"timeFilter"`
	TimeLabel   string           `json:"timeLabel,omitempty"`
	Window      TrafficWindow    `json:"window"`
	TripCount   int              `json:"tripCount"`
	MaxTraffic  int              `json:"maxTraffic"`
	RadiusRange RadiusRange      `json:"radiusRange"`
	Bounds      *GeoBox          `json:"bounds,omitempty"`
	Stations    []StationTraffic `json:"stations"`
	Provider    string           `json:"provider"`
	FetchedAt   Timestamp        `json:"fetchedAt"`
}

// StationTrafficResponse is the response for GET /v1/stations/{code}/traffic.
type StationTrafficResponse struct {
	TimeFilter int            `json:"timeFilter"`
	TimeLabel  string         `json:"timeLabel,omitempty"`
	Window     TrafficWindow  `json:"window"`
	Station    StationTraffic `json:"station"`
}

// HourlyTraffic is one hour of a station's hourly profile.
type HourlyTraffic struct {
	Hour       int    `json:"hour"`
	Label      string `json:"label"`
	Departures int    `json:"departures"`
	Arrivals   int    `json:"arrivals"`
}

// HourlyProfile is the response for GET /v1/stations/{code}/hourly.
type HourlyProfile struct {
	Code       string          `json:"code"`
	Departures int             `json:"departures"`
	Arrivals   int             `json:"arrivals"`
	PeakHour   int             `json:"peakHour"`
	Hours      []HourlyTraffic `json:"hours"`
}

// CacheInvalidateRequest is the optional body of POST /v1/admin/cache/invalidate.
type CacheInvalidateRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CacheInvalidateResponse reports a cache invalidation.
type CacheInvalidateResponse struct {
	Invalidated bool      `json:"invalidated"`
	Operator    string    `json:"operator"`
	Time        Timestamp `json:"time"`
}
