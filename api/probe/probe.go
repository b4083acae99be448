package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/malbeclabs/calldash/api/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout = 5 * time.Second

	// Recordings are 8 kHz mono 16-bit PCM WAV.
	wavHeaderBytes = 44
	bytesPerSecond = 8000 * 2
)

type CacheConfig struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
	Timeout    time.Duration
}

func (cfg *CacheConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}

	// Optional with defaults
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return nil
}

// Cache infers recording durations from the Content-Length of a HEAD request.
// Results, including failures as 0, are kept for the life of the process.
type Cache struct {
	log     *slog.Logger
	http    *http.Client
	timeout time.Duration

	mu      sync.RWMutex
	entries map[string]float64

	group singleflight.Group
}

func NewCache(cfg CacheConfig) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Cache{
		log:     cfg.Logger,
		http:    cfg.HTTPClient,
		timeout: cfg.Timeout,
		entries: make(map[string]float64),
	}, nil
}

// Probe returns the duration in seconds of the recording at url.
// Concurrent misses for the same url share a single HEAD request.
func (c *Cache) Probe(ctx context.Context, url string) float64 {
	if url == "" {
		return 0
	}
	if seconds, ok := c.lookup(url); ok {
		metrics.ProbesTotal.WithLabelValues("hit").Inc()
		return seconds
	}

	v, _, _ := c.group.Do(url, func() (any, error) {
		if seconds, ok := c.lookup(url); ok {
			return seconds, nil
		}
		seconds := c.head(ctx, url)
		c.mu.Lock()
		c.entries[url] = seconds
		c.mu.Unlock()
		return seconds, nil
	})
	return v.(float64)
}

// Len reports the number of memoized urls.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(url string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seconds, ok := c.entries[url]
	return seconds, ok
}

func (c *Cache) head(ctx context.Context, url string) float64 {
	// The result is shared by every waiter, so one caller going away must not poison it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		c.log.Debug("probe: invalid recording url", "url", url, "error", err)
		metrics.ProbesTotal.WithLabelValues("error").Inc()
		return 0
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("probe: head request failed", "url", url, "error", err)
		metrics.ProbesTotal.WithLabelValues("error").Inc()
		return 0
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug("probe: head request returned non-success", "url", url, "status", resp.StatusCode)
		metrics.ProbesTotal.WithLabelValues("error").Inc()
		return 0
	}
	if resp.ContentLength < 0 {
		metrics.ProbesTotal.WithLabelValues("no_length").Inc()
		return 0
	}
	metrics.ProbesTotal.WithLabelValues("probed").Inc()
	return SecondsFromLength(resp.ContentLength)
}

// SecondsFromLength converts a WAV payload size to whole seconds.
func SecondsFromLength(contentLength int64) float64 {
	if contentLength <= wavHeaderBytes {
		return 0
	}
	return math.Round(float64(contentLength-wavHeaderBytes) / bytesPerSecond)
}
