package traffic

// ComputeStationTraffic returns a copy of stations with Arrivals, Departures and
// TotalTraffic populated from trips. Order and length of stations are preserved
// and the input slice is not modified.
func ComputeStationTraffic(stations []Station, trips []Trip) []Station {
	departures := make(map[string]int)
	arrivals := make(map[string]int)
	for i := range trips {
		departures[trips[i].StartStationID]++
		arrivals[trips[i].EndStationID]++
	}

	result := make([]Station, len(stations))
	for i, s := range stations {
		s.Arrivals = arrivals[s.Code]
		s.Departures = departures[s.Code]
		s.TotalTraffic = s.Arrivals + s.Departures
		result[i] = s
	}

	return result
}

// MaxTraffic returns the highest TotalTraffic in stations, or 0 if empty.
func MaxTraffic(stations []Station) int {
	highest := 0
	for i := range stations {
		if stations[i].TotalTraffic > highest {
			highest = stations[i].TotalTraffic
		}
	}
	return highest
}

// ComputeHourlyProfile counts departures by start hour and arrivals by end hour
// for the station with the given code.
func ComputeHourlyProfile(code string, trips []Trip) *HourlyProfile {
	profile := &HourlyProfile{Code: code}
	for h := range profile.Hours {
		profile.Hours[h].Hour = h
	}

	for i := range trips {
		t := &trips[i]
		if t.StartStationID == code {
			profile.Hours[t.StartedAt.Hour()].Departures++
			profile.Departures++
		}
		if t.EndStationID == code {
			profile.Hours[t.EndedAt.Hour()].Arrivals++
			profile.Arrivals++
		}
	}

	return profile
}
