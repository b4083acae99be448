package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/calldash/api/metrics"
	"golang.org/x/sync/singleflight"
)

const defaultTTL = 20 * time.Second

var ErrNotReady = errors.New("snapshot cache is not ready")

type Source interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

type CacheConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Source Source
	TTL    time.Duration

	// OnChange is called with the previous and new snapshot after every successful
	// replacement, before the triggering Get returns.
	OnChange func(prev, next *Snapshot)
}

func (cfg *CacheConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Source == nil {
		return errors.New("source is required")
	}

	// Optional with defaults
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	return nil
}

// Cache holds the current snapshot and refetches it once it is older than the TTL
// or has been invalidated. Concurrent misses share one in-flight fetch.
type Cache struct {
	log *slog.Logger
	cfg CacheConfig

	mu        sync.RWMutex
	current   *Snapshot
	fetchedAt time.Time
	invalid   bool
	// gen is bumped by Invalidate so a fetch that started before an invalidation
	// does not mark its result fresh.
	gen uint64

	group singleflight.Group

	readyOnce sync.Once
	readyCh   chan struct{}
}

func NewCache(cfg CacheConfig) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Cache{
		log:     cfg.Logger,
		cfg:     cfg,
		readyCh: make(chan struct{}),
	}, nil
}

// Get returns the current snapshot, fetching a new one when stale.
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	snap, _, err := c.Lookup(ctx)
	return snap, err
}

// Lookup is Get that also reports whether the snapshot was served without a fetch.
func (c *Cache) Lookup(ctx context.Context) (*Snapshot, bool, error) {
	if snap := c.fresh(); snap != nil {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return snap, true, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	snap, err := c.load(ctx, "read")
	return snap, false, err
}

// Refresh invalidates the cache and fetches a new snapshot.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	c.Invalidate()
	return c.load(ctx, "forced")
}

// Invalidate forces the next Get to refetch.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.invalid = true
	c.gen++
	c.mu.Unlock()
}

// Current returns the snapshot currently held, without fetching. It is nil until the first fetch succeeds.
func (c *Cache) Current() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Age is how long ago the current snapshot was installed.
func (c *Cache) Age() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return 0
	}
	return c.cfg.Clock.Since(c.fetchedAt)
}

func (c *Cache) Ready() bool {
	select {
	case <-c.readyCh:
		return true
	default:
		return false
	}
}

func (c *Cache) WaitReady(ctx context.Context) error {
	select {
	case <-c.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
	}
}

func (c *Cache) fresh() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.freshLocked()
}

func (c *Cache) freshLocked() *Snapshot {
	if c.current == nil || c.invalid {
		return nil
	}
	if c.cfg.Clock.Since(c.fetchedAt) >= c.cfg.TTL {
		return nil
	}
	return c.current
}

func (c *Cache) load(ctx context.Context, trigger string) (*Snapshot, error) {
	v, err, _ := c.group.Do("snapshot", func() (any, error) {
		return c.fetch(ctx, trigger)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (c *Cache) fetch(ctx context.Context, trigger string) (*Snapshot, error) {
	c.mu.RLock()
	if snap := c.freshLocked(); snap != nil {
		c.mu.RUnlock()
		return snap, nil
	}
	gen := c.gen
	c.mu.RUnlock()

	// Waiters share this fetch, so it runs to completion even if the first caller goes away.
	ctx = context.WithoutCancel(ctx)

	start := c.cfg.Clock.Now()
	next, err := c.cfg.Source.Fetch(ctx)
	metrics.CacheRefreshDuration.Observe(c.cfg.Clock.Since(start).Seconds())
	if err != nil {
		metrics.CacheRefreshTotal.WithLabelValues(trigger, "error").Inc()
		return nil, err
	}
	metrics.CacheRefreshTotal.WithLabelValues(trigger, "success").Inc()
	metrics.SnapshotRecords.Set(float64(next.Len()))

	c.mu.Lock()
	prev := c.current
	c.current = next
	c.fetchedAt = c.cfg.Clock.Now()
	c.invalid = c.gen != gen
	c.mu.Unlock()

	c.readyOnce.Do(func() { close(c.readyCh) })
	c.log.Debug("leads: snapshot replaced", "trigger", trigger, "records", next.Len())

	if prev != nil && c.cfg.OnChange != nil {
		c.cfg.OnChange(prev, next)
	}
	return next, nil
}
