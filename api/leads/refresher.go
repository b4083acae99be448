package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	defaultRefreshInterval = 30 * time.Second
	refresherStopTimeout   = 5 * time.Second
)

type Refreshable interface {
	Refresh(ctx context.Context) (*Snapshot, error)
}

type RefresherConfig struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Cache    Refreshable
	Interval time.Duration
}

func (cfg *RefresherConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Cache == nil {
		return errors.New("cache is required")
	}

	// Optional with defaults
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultRefreshInterval
	}
	return nil
}

// Refresher forces a cache refresh on a fixed interval so changes surface without reader traffic.
type Refresher struct {
	log *slog.Logger
	cfg RefresherConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRefresher(cfg RefresherConfig) (*Refresher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Refresher{log: cfg.Logger, cfg: cfg}, nil
}

// Start runs an initial refresh and then one per interval until ctx is done or Stop is called.
func (r *Refresher) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.log.Info("leads: starting refresh loop", "interval", r.cfg.Interval)

		r.safeRefresh(ctx)

		ticker := r.cfg.Clock.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				r.safeRefresh(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (r *Refresher) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("leads: refresh loop stopped")
	case <-time.After(refresherStopTimeout):
		r.log.Warn("leads: refresh loop stop timed out, continuing shutdown")
	}
}

// safeRefresh keeps the loop alive across refresh errors and panics.
func (r *Refresher) safeRefresh(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("leads: refresh panicked", "panic", p)
		}
	}()

	if _, err := r.cfg.Cache.Refresh(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.log.Error("leads: refresh failed", "error", err)
	}
}
