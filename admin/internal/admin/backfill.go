package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/malbeclabs/calldash/api/crm"
	"github.com/malbeclabs/calldash/api/leads"
	"golang.org/x/sync/errgroup"
)

const defaultBackfillConcurrency = 4

type Updater interface {
	Update(ctx context.Context, id string, fields map[string]any) (*crm.Record, error)
}

type BackfillDurationsConfig struct {
	MaxConcurrency int
	DryRun         bool
}

type BackfillResult struct {
	Candidates int
	Updated    int
	Failed     int
}

// BackfillDurations writes durations inferred from recordings back to the record
// store for every record that has a recording but no stored duration. Failed
// updates are logged and counted; the run continues.
func BackfillDurations(ctx context.Context, log *slog.Logger, src Source, store Updater, cfg BackfillDurationsConfig) (BackfillResult, error) {
	if store == nil {
		return BackfillResult{}, errors.New("updater is required")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultBackfillConcurrency
	}

	snap, err := src.Fetch(ctx)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("failed to fetch leads: %w", err)
	}

	var candidates []leads.Record
	for _, rec := range snap.Records {
		if rec.NeedsProbe() && rec.ProbedDuration > 0 {
			candidates = append(candidates, rec)
		}
	}
	result := BackfillResult{Candidates: len(candidates)}
	log.Info("admin: backfill durations", "candidates", len(candidates), "total", snap.Len(), "dry_run", cfg.DryRun)

	if cfg.DryRun {
		for _, rec := range candidates {
			log.Info("admin: would update duration", "id", rec.ID, "seconds", math.Round(rec.ProbedDuration))
		}
		return result, nil
	}

	var updated, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrency)
	for _, rec := range candidates {
		g.Go(func() error {
			fields := map[string]any{leads.FieldDuration: math.Round(rec.ProbedDuration)}
			if _, err := store.Update(gctx, rec.ID, fields); err != nil {
				log.Warn("admin: failed to update duration", "id", rec.ID, "error", err)
				failed.Add(1)
				return nil
			}
			updated.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	result.Updated = int(updated.Load())
	result.Failed = int(failed.Load())
	log.Info("admin: backfill complete", "updated", result.Updated, "failed", result.Failed)
	return result, ctx.Err()
}
