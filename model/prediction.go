package model

import (
	"time"
)

// Prediction is one upstream-reported vehicle arrival at a stop.
// A poll produces a whole new list; records are never mutated in place.
type Prediction struct {
	StopID     string    `json:"stop_id"`
	Headsign   string    `json:"headsign,omitempty"`
	Route      string    `json:"route,omitempty"`
	Direction  string    `json:"direction,omitempty"`
	Expected   time.Time `json:"expected,omitempty"`
	Scheduled  time.Time `json:"scheduled,omitempty"`
	IsRealTime bool      `json:"is_real_time,omitempty"`
	TripID     string    `json:"trip_id,omitempty"`
}

// ArrivalTime returns the time used to rank this prediction: the
// GPS-adjusted expected time when present, the timetable time otherwise.
func (p Prediction) ArrivalTime() (arrivalTime time.Time, isRealTime bool) {
	if !p.Expected.IsZero() {
		return p.Expected, true
	}

	return p.Scheduled, false
}

func (p Prediction) IsExpired(now time.Time) bool {
	arrivalTime, _ := p.ArrivalTime()
	if arrivalTime.IsZero() {
		return true
	}

	return arrivalTime.Before(now)
}

// Snapshot is the cached state for one stop: the most recent prediction
// list and when it was fetched. A failed poll keeps the previous
// predictions and records the failure in FetchErr.
type Snapshot struct {
	StopID      string       `json:"stop_id"`
	FetchedAt   time.Time    `json:"fetched_at"`
	Predictions []Prediction `json:"predictions"`
	FetchErr    error        `json:"-"`
}

// Stop is a physical boarding location as reported by the upstream API.
type Stop struct {
	StopID   string `json:"stop_id"`
	StopName string `json:"stop_name"`
}
