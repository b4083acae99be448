package admin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/malbeclabs/calldash/api/analytics"
	"github.com/malbeclabs/calldash/api/export"
	"github.com/malbeclabs/calldash/api/leads"
	"github.com/malbeclabs/calldash/api/view"
)

// Source produces a full snapshot straight from the record store, bypassing any cache.
type Source interface {
	Fetch(ctx context.Context) (*leads.Snapshot, error)
}

type Archiver interface {
	Archive(ctx context.Context, records []leads.Record) (string, error)
}

// ExportCSV writes every record matching q to w, sorted but not paginated.
func ExportCSV(ctx context.Context, log *slog.Logger, src Source, q view.Query, w io.Writer) error {
	snap, err := src.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch leads: %w", err)
	}
	records := view.Filter(snap.Records, q)
	view.Sort(records, q.Sort, q.Desc)

	if err := export.WriteCSV(w, records); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	log.Info("admin: exported leads", "matched", len(records), "total", snap.Len())
	return nil
}

// ArchiveSnapshot uploads the full snapshot. In dry-run mode only the record count is logged.
func ArchiveSnapshot(ctx context.Context, log *slog.Logger, src Source, archiver Archiver, dryRun bool) (string, error) {
	snap, err := src.Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch leads: %w", err)
	}
	if dryRun {
		log.Info("admin: dry run, skipping archive upload", "records", snap.Len())
		return "", nil
	}
	key, err := archiver.Archive(ctx, snap.Records)
	if err != nil {
		return "", err
	}
	log.Info("admin: archived snapshot", "key", key, "records", snap.Len())
	return key, nil
}

// WriteReport writes the analytics report for date (all calls when empty) as indented JSON.
func WriteReport(ctx context.Context, src Source, date string, now time.Time, w io.Writer) error {
	snap, err := src.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch leads: %w", err)
	}
	report := analytics.Analyze(snap.Records, date, now)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
