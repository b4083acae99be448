package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/calldash/api/crm"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPageSize  = 100
	defaultSortField = FieldLastCallDate
)

type Lister interface {
	ListPage(ctx context.Context, params crm.ListParams) (*crm.Page, error)
}

type Prober interface {
	Probe(ctx context.Context, url string) float64
}

type FetcherConfig struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Lister    Lister
	Prober    Prober
	PageSize  int
	SortField string
	Agents    map[string]string
}

func (cfg *FetcherConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Lister == nil {
		return errors.New("lister is required")
	}
	if cfg.Prober == nil {
		return errors.New("prober is required")
	}

	// Optional with defaults
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.SortField == "" {
		cfg.SortField = defaultSortField
	}
	return nil
}

// Fetcher pages through the record store and builds a fully materialized Snapshot.
type Fetcher struct {
	log *slog.Logger
	cfg FetcherConfig
}

func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Fetcher{log: cfg.Logger, cfg: cfg}, nil
}

// Fetch returns a snapshot of every record, or an error if any page fails.
func (f *Fetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	start := f.cfg.Clock.Now()

	var raw []crm.Record
	offset := ""
	for page := 1; ; page++ {
		resp, err := f.cfg.Lister.ListPage(ctx, crm.ListParams{
			PageSize:      f.cfg.PageSize,
			SortField:     f.cfg.SortField,
			SortDirection: "desc",
			Offset:        offset,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list page %d: %w", page, err)
		}
		raw = append(raw, resp.Records...)
		if resp.Offset == "" {
			break
		}
		if resp.Offset == offset {
			return nil, fmt.Errorf("upstream repeated offset %q on page %d", offset, page)
		}
		offset = resp.Offset
	}

	records := make([]Record, len(raw))
	for i, r := range raw {
		records[i] = Normalize(r, f.cfg.Agents)
	}

	probed := f.probe(ctx, records)

	f.log.Debug("leads: fetched snapshot", "records", len(records), "probed", probed, "duration", f.cfg.Clock.Since(start).String())
	return &Snapshot{
		Records:    records,
		Raw:        raw,
		CapturedAt: f.cfg.Clock.Now(),
	}, nil
}

// probe fills ProbedDuration for records that only have a recording. Each goroutine
// writes its own index so no locking is needed.
func (f *Fetcher) probe(ctx context.Context, records []Record) int {
	var g errgroup.Group
	n := 0
	for i := range records {
		if !records[i].NeedsProbe() {
			continue
		}
		n++
		g.Go(func() error {
			records[i].ProbedDuration = f.cfg.Prober.Probe(ctx, records[i].RecordingURL)
			return nil
		})
	}
	_ = g.Wait()
	return n
}
