package model

// ExposedValue is the live state published for one filter on every poll
// tick. It is built whole from a single snapshot and replaced atomically,
// so consumers never see minutes paired with a mismatched trip.
//
// Minutes is nil when no prediction matched. Failure carries the upstream
// failure kind ("auth", "network", "malformed") so a credential problem
// stays distinguishable from an ordinary "no buses due". Stale flags that
// the attributes come from a previous successful poll kept through a
// failed one.
type ExposedValue struct {
	Slug       string `json:"slug"`
	Minutes    *int   `json:"minutes,omitempty"`
	Headsign   string `json:"headsign,omitempty"`
	Route      string `json:"route,omitempty"`
	Direction  string `json:"direction,omitempty"`
	Expected   string `json:"expected,omitempty"`
	Scheduled  string `json:"scheduled,omitempty"`
	IsRealTime bool   `json:"is_real_time,omitempty"`
	TripID     string `json:"trip_id,omitempty"`
	StopID     string `json:"stop_id"`
	StopName   string `json:"stop_name,omitempty"`
	Stale      bool   `json:"stale,omitempty"`
	Failure    string `json:"failure,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

func (v ExposedValue) Available() bool {
	return v.Minutes != nil
}
