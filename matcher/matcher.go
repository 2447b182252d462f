package matcher

import (
	"strings"
	"time"

	"github.com/mtd-tools/arrivals-service/model"
)

// Select reduces a prediction list to the single most relevant record for
// a filter: survivors must match the filter's route and direction (when
// set) and must not already have arrived as of now; among survivors the
// soonest arrival wins, with the GPS-adjusted time preferred as the
// ranking key whenever present. Ties break on lowest trip id so the
// choice is stable across ticks. Returns nil when nothing qualifies.
//
// "Now" is evaluated at selection time, not fetch time, so a record can
// expire between fetch and read without a new poll.
func Select(now time.Time, predictions []model.Prediction, def model.FilterDefinition) *model.Prediction {
	var best *model.Prediction

	for i := range predictions {
		p := &predictions[i]

		if def.Route != "" && !strings.EqualFold(p.Route, def.Route) {
			continue
		}

		if def.Direction != "" && !strings.EqualFold(p.Direction, def.Direction) {
			continue
		}

		if p.IsExpired(now) {
			continue
		}

		if best == nil || arrivesBefore(*p, *best) {
			best = p
		}
	}

	if best == nil {
		return nil
	}

	selected := *best
	return &selected
}

func arrivesBefore(a, b model.Prediction) bool {
	aTime, _ := a.ArrivalTime()
	bTime, _ := b.ArrivalTime()

	if aTime.Equal(bTime) {
		return a.TripID < b.TripID
	}

	return aTime.Before(bTime)
}

// MinutesUntil returns whole minutes from now until the prediction's
// arrival time, floored, never negative.
func MinutesUntil(now time.Time, p model.Prediction) int {
	arrivalTime, _ := p.ArrivalTime()

	wait := int(arrivalTime.Sub(now).Truncate(time.Minute).Minutes())
	if wait < 0 {
		return 0
	}

	return wait
}
