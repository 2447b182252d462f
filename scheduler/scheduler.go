package scheduler

import (
	"context"
	"sync"
	"time"

	cumtd_client "github.com/mtd-tools/arrivals-service/cumtd-client"
	"github.com/mtd-tools/arrivals-service/dlog"
	"github.com/mtd-tools/arrivals-service/matcher"
	"github.com/mtd-tools/arrivals-service/model"
)

type Cache interface {
	GetOrFetch(ctx context.Context, stopID string, maxAge time.Duration) model.Snapshot
}

// Sink receives the full set of exposed values produced by one tick.
type Sink interface {
	Publish(values []model.ExposedValue) error
}

type SinkFunc func(values []model.ExposedValue) error

func (f SinkFunc) Publish(values []model.ExposedValue) error {
	return f(values)
}

// PollScheduler drives the fixed-interval loop over all resolved
// identities: one cache fetch per distinct stop per tick, one exposed
// value per filter per tick. Ticks run to completion before the next one
// starts, so fetches for a stop never overlap across ticks; missed ticker
// beats coalesce rather than queue.
type PollScheduler struct {
	Logger     *dlog.Logger
	Cache      Cache
	Interval   time.Duration
	Identities []model.Identity
	Sinks      []Sink

	// Now is a clock override for tests; leave nil for time.Now.
	Now func() time.Time
}

func (ps *PollScheduler) Run(ctx context.Context) error {
	ps.Logger.Printf("polling %d filter(s) every %s", len(ps.Identities), ps.Interval)

	ticker := time.NewTicker(ps.Interval)
	defer ticker.Stop()

	ps.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ps.Tick(ctx)
		}
	}
}

// Tick fetches every distinct stop once, matches every filter against its
// stop's snapshot and publishes the resulting values. A failure on one
// stop never blocks the others; its filters publish a stale or
// unavailable value while the rest proceed normally.
func (ps *PollScheduler) Tick(ctx context.Context) []model.ExposedValue {
	ps.Logger.Debug("Tick")

	now := ps.now()
	snapshots := ps.fetchStops(ctx)

	values := make([]model.ExposedValue, 0, len(ps.Identities))
	for _, id := range ps.Identities {
		values = append(values, ps.buildValue(now, id, snapshots[id.Def.StopID]))
	}

	for _, sink := range ps.Sinks {
		if err := sink.Publish(values); err != nil {
			ps.Logger.Printf("cannot publish exposed values: %v", err)
		}
	}

	return values
}

func (ps *PollScheduler) fetchStops(ctx context.Context) map[string]model.Snapshot {
	stopIDs := ps.distinctStopIDs()

	snapshots := make(map[string]model.Snapshot, len(stopIDs))
	mu := sync.Mutex{}
	wg := sync.WaitGroup{}
	wg.Add(len(stopIDs))

	// The freshness window must be shorter than the interval, or a ticker
	// beat lands inside the previous tick's window and gets served from
	// the cache. Half the interval still spans every call within one tick.
	maxAge := ps.Interval / 2

	// Stops are independent and idempotent, so fetching them in parallel
	// only bounds tick latency; per-stop coalescing lives in the cache.
	for _, stopID := range stopIDs {
		go func(stopID string) {
			defer wg.Done()
			snapshot := ps.Cache.GetOrFetch(ctx, stopID, maxAge)
			mu.Lock()
			snapshots[stopID] = snapshot
			mu.Unlock()
		}(stopID)
	}

	wg.Wait()

	for stopID, snapshot := range snapshots {
		if cumtd_client.IsAuth(snapshot.FetchErr) {
			ps.Logger.Printf("upstream rejected the API key while polling stop %s; reconfigure the credential", stopID)
		}
	}

	return snapshots
}

func (ps *PollScheduler) distinctStopIDs() []string {
	seen := map[string]bool{}
	stopIDs := make([]string, 0, len(ps.Identities))
	for _, id := range ps.Identities {
		if seen[id.Def.StopID] {
			continue
		}
		seen[id.Def.StopID] = true
		stopIDs = append(stopIDs, id.Def.StopID)
	}
	return stopIDs
}

func (ps *PollScheduler) buildValue(now time.Time, id model.Identity, snapshot model.Snapshot) model.ExposedValue {
	value := model.ExposedValue{
		Slug:      id.Slug,
		StopID:    id.Def.StopID,
		StopName:  id.Def.StopName,
		UpdatedAt: now.Format(time.RFC3339),
	}

	if snapshot.FetchErr != nil {
		value.Failure = cumtd_client.FailureKind(snapshot.FetchErr)
		value.Stale = len(snapshot.Predictions) > 0
	}

	selected := matcher.Select(now, snapshot.Predictions, id.Def)
	if selected == nil {
		return value
	}

	minutes := matcher.MinutesUntil(now, *selected)
	value.Minutes = &minutes
	value.Headsign = selected.Headsign
	value.Route = selected.Route
	value.Direction = selected.Direction
	value.IsRealTime = selected.IsRealTime
	value.TripID = selected.TripID
	if !selected.Expected.IsZero() {
		value.Expected = selected.Expected.Format(time.RFC3339)
	}
	if !selected.Scheduled.IsZero() {
		value.Scheduled = selected.Scheduled.Format(time.RFC3339)
	}

	return value
}

func (ps *PollScheduler) now() time.Time {
	if ps.Now != nil {
		return ps.Now()
	}
	return time.Now()
}
