package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/calldash/admin/internal/admin"
	"github.com/malbeclabs/calldash/api/config"
	"github.com/malbeclabs/calldash/api/crm"
	"github.com/malbeclabs/calldash/api/export"
	"github.com/malbeclabs/calldash/api/leads"
	"github.com/malbeclabs/calldash/api/probe"
	"github.com/malbeclabs/calldash/api/view"
	"github.com/malbeclabs/calldash/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// Commands
	exportCSVFlag := flag.String("export-csv", "", "Write matching leads as CSV to this path (\"-\" for stdout)")
	archiveFlag := flag.Bool("archive", false, "Upload a CSV snapshot of all leads to the export bucket")
	reportFlag := flag.Bool("report", false, "Print the analytics report as JSON")
	backfillDurationsFlag := flag.Bool("backfill-durations", false, "Write durations inferred from recordings back to the record store")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")

	// Export filters, same semantics as the list endpoint
	searchFlag := flag.String("search", "", "Case-insensitive match on name, phone, address or email")
	statusFlag := flag.String("status", "", "Comma-separated statuses to include")
	outcomeFlag := flag.String("outcome", "", "Comma-separated call outcomes to include")
	agentFlag := flag.String("agent", "", "Comma-separated agent names to include")
	dateFromFlag := flag.String("date-from", "", "Earliest last call date (YYYY-MM-DD)")
	dateToFlag := flag.String("date-to", "", "Latest last call date (YYYY-MM-DD)")
	sortFlag := flag.String("sort", view.DefaultSort, "Sort field")
	ascFlag := flag.Bool("asc", false, "Sort ascending")

	// Report options
	dateFlag := flag.String("date", "", "Restrict the report to calls on this day (YYYY-MM-DD, empty = all)")

	// Backfill options
	maxConcurrencyFlag := flag.Int("max-concurrency", 4, "Maximum concurrent record store updates during backfill")

	flag.Parse()

	_ = godotenv.Load()
	log := logger.New(*verboseFlag)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	crmClient, err := crm.NewClient(crm.ClientConfig{
		Logger:          log,
		HTTPClient:      &http.Client{Timeout: 30 * time.Second},
		BaseURL:         cfg.CRM.BaseURL,
		BaseID:          cfg.CRM.BaseID,
		Table:           cfg.CRM.Table,
		Token:           cfg.CRM.Token,
		BreakerFailures: cfg.CRM.BreakerFailures,
		BreakerTimeout:  cfg.CRM.BreakerTimeout,
	})
	if err != nil {
		return err
	}
	prober, err := probe.NewCache(probe.CacheConfig{Logger: log, Timeout: cfg.Probe.Timeout})
	if err != nil {
		return err
	}
	fetcher, err := leads.NewFetcher(leads.FetcherConfig{
		Logger:    log,
		Lister:    crmClient,
		Prober:    prober,
		PageSize:  cfg.CRM.PageSize,
		SortField: cfg.CRM.SortField,
		Agents:    cfg.Agents,
	})
	if err != nil {
		return err
	}

	if *exportCSVFlag != "" {
		params := url.Values{
			"search":   {*searchFlag},
			"status":   {*statusFlag},
			"outcome":  {*outcomeFlag},
			"agent":    {*agentFlag},
			"dateFrom": {*dateFromFlag},
			"dateTo":   {*dateToFlag},
			"sort":     {*sortFlag},
		}
		if *ascFlag {
			params.Set("dir", "asc")
		}

		var w io.Writer = os.Stdout
		if *exportCSVFlag != "-" {
			f, err := os.Create(*exportCSVFlag)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", *exportCSVFlag, err)
			}
			defer f.Close()
			w = f
		}
		return admin.ExportCSV(ctx, log, fetcher, view.ParseQuery(params), w)
	}

	if *archiveFlag {
		if cfg.Export.Bucket == "" {
			return errors.New("EXPORT_S3_BUCKET is required for --archive")
		}
		s3Client, err := export.NewS3Client(ctx, cfg.Export.Region, cfg.Export.EndpointURL)
		if err != nil {
			return err
		}
		archiver, err := export.NewArchiver(export.ArchiverConfig{
			Logger: log,
			Client: s3Client,
			Bucket: cfg.Export.Bucket,
			Prefix: cfg.Export.Prefix,
		})
		if err != nil {
			return err
		}
		key, err := admin.ArchiveSnapshot(ctx, log, fetcher, archiver, *dryRunFlag)
		if err != nil {
			return err
		}
		if key != "" {
			fmt.Println(key)
		}
		return nil
	}

	if *reportFlag {
		if *dateFlag != "" {
			if _, err := time.Parse("2006-01-02", *dateFlag); err != nil {
				return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
			}
		}
		now := time.Now().In(cfg.Dashboard.Location())
		return admin.WriteReport(ctx, fetcher, *dateFlag, now, os.Stdout)
	}

	if *backfillDurationsFlag {
		result, err := admin.BackfillDurations(ctx, log, fetcher, crmClient, admin.BackfillDurationsConfig{
			MaxConcurrency: *maxConcurrencyFlag,
			DryRun:         *dryRunFlag,
		})
		if err != nil {
			return err
		}
		if result.Failed > 0 {
			return fmt.Errorf("%d of %d updates failed", result.Failed, result.Candidates)
		}
		return nil
	}

	flag.Usage()
	return nil
}
