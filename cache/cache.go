package cache

import (
	"context"
	"sync"
	"time"

	cumtd_client "github.com/mtd-tools/arrivals-service/cumtd-client"
	"github.com/mtd-tools/arrivals-service/dlog"
	"github.com/mtd-tools/arrivals-service/model"
	"golang.org/x/sync/singleflight"
)

type Fetcher interface {
	FetchDepartures(ctx context.Context, stopID string) ([]model.Prediction, error)
}

// PredictionCache holds the most recent snapshot per stop so that every
// filter watching the same stop within one poll tick shares a single
// upstream call. Freshness is tracked per attempt, not per success: a
// failed fetch also refreshes the window, so an auth failure is not
// silently retried until the window expires.
type PredictionCache struct {
	Logger  *dlog.Logger
	Fetcher Fetcher

	mu      sync.Mutex
	group   singleflight.Group
	entries map[string]*entry
}

type entry struct {
	snapshot  model.Snapshot
	checkedAt time.Time
}

func NewPredictionCache(logger *dlog.Logger, fetcher Fetcher) *PredictionCache {
	return &PredictionCache{
		Logger:  logger,
		Fetcher: fetcher,
		entries: map[string]*entry{},
	}
}

// GetOrFetch returns the cached snapshot for the stop when it is no older
// than maxAge, and otherwise fetches a new one. Concurrent callers for
// the same stop coalesce into one in-flight upstream call and all receive
// the same resulting snapshot.
func (c *PredictionCache) GetOrFetch(ctx context.Context, stopID string, maxAge time.Duration) model.Snapshot {
	c.Logger.Debugf("GetOrFetch for `%s`", stopID)

	if snapshot, ok := c.fresh(stopID, maxAge); ok {
		return snapshot
	}

	result, _, _ := c.group.Do(stopID, func() (interface{}, error) {
		// A caller that queued behind an in-flight fetch must not kick
		// off another one the moment the first returns.
		if snapshot, ok := c.fresh(stopID, maxAge); ok {
			return snapshot, nil
		}

		return c.fetch(ctx, stopID), nil
	})

	return result.(model.Snapshot)
}

func (c *PredictionCache) fresh(stopID string, maxAge time.Duration) (model.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[stopID]
	if !ok || time.Since(e.checkedAt) >= maxAge {
		return model.Snapshot{}, false
	}

	c.Logger.Debugf("cache hit for `%s`", stopID)

	return e.snapshot, true
}

func (c *PredictionCache) fetch(ctx context.Context, stopID string) model.Snapshot {
	c.Logger.Debugf("fetch for `%s`", stopID)

	// The freshness window runs from the start of the attempt, not its
	// completion, so upstream latency cannot stretch the window and delay
	// the next fetch.
	started := time.Now()

	predictions, err := c.Fetcher.FetchDepartures(ctx, stopID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if cumtd_client.IsMalformed(err) {
			c.Logger.Printf("upstream contract violation for stop %s: %v", stopID, err)
		}

		// Stale-but-present data beats none: keep the previous
		// predictions and surface the new failure alongside them.
		snapshot := model.Snapshot{StopID: stopID}
		if previous, ok := c.entries[stopID]; ok {
			snapshot = previous.snapshot
		}
		snapshot.FetchErr = err
		c.entries[stopID] = &entry{snapshot: snapshot, checkedAt: started}

		return snapshot
	}

	snapshot := model.Snapshot{
		StopID:      stopID,
		FetchedAt:   started,
		Predictions: predictions,
	}
	c.entries[stopID] = &entry{snapshot: snapshot, checkedAt: started}

	return snapshot
}
