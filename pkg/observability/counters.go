package observability

import (
	"context"
	"sync/atomic"
	"time"
)

// Counters tallies hook events. It implements ResolverHooks, CacheHooks
// and HTTPHooks so one value can be registered for all three; the CLI
// logs a snapshot at the end of a run.
type Counters struct {
	NoopResolverHooks

	pins        atomic.Int64
	backtracks  atomic.Int64
	fetches     atomic.Int64
	fetchErrors atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	requests    atomic.Int64
	httpErrors  atomic.Int64
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Pins        int64
	Backtracks  int64
	Fetches     int64
	FetchErrors int64
	CacheHits   int64
	CacheMisses int64
	Requests    int64
	HTTPErrors  int64
}

func (c *Counters) OnPin(context.Context, string, string) { c.pins.Add(1) }
func (c *Counters) OnBacktrack(context.Context, string)    { c.backtracks.Add(1) }

func (c *Counters) OnMetadataFetch(_ context.Context, _, _ string, _ time.Duration, err error) {
	c.fetches.Add(1)
	if err != nil {
		c.fetchErrors.Add(1)
	}
}

func (c *Counters) OnCacheHit(context.Context, string)      { c.cacheHits.Add(1) }
func (c *Counters) OnCacheMiss(context.Context, string)     { c.cacheMisses.Add(1) }
func (c *Counters) OnCacheSet(context.Context, string, int) {}

func (c *Counters) OnRequest(context.Context, string, string, string) { c.requests.Add(1) }
func (c *Counters) OnResponse(context.Context, string, string, string, int, time.Duration) {
}
func (c *Counters) OnError(context.Context, string, string, string, error) { c.httpErrors.Add(1) }

// Snapshot returns the current totals.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Pins:        c.pins.Load(),
		Backtracks:  c.backtracks.Load(),
		Fetches:     c.fetches.Load(),
		FetchErrors: c.fetchErrors.Load(),
		CacheHits:   c.cacheHits.Load(),
		CacheMisses: c.cacheMisses.Load(),
		Requests:    c.requests.Load(),
		HTTPErrors:  c.httpErrors.Load(),
	}
}

var (
	_ ResolverHooks = (*Counters)(nil)
	_ CacheHooks    = (*Counters)(nil)
	_ HTTPHooks     = (*Counters)(nil)
)
