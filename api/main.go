package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/malbeclabs/calldash/api/config"
	"github.com/malbeclabs/calldash/api/crm"
	"github.com/malbeclabs/calldash/api/events"
	"github.com/malbeclabs/calldash/api/export"
	"github.com/malbeclabs/calldash/api/handlers"
	"github.com/malbeclabs/calldash/api/leads"
	"github.com/malbeclabs/calldash/api/metrics"
	"github.com/malbeclabs/calldash/api/narrative"
	"github.com/malbeclabs/calldash/api/probe"
	"github.com/malbeclabs/calldash/utils/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slack-go/slack"
	flag "github.com/spf13/pflag"
	"golang.org/x/time/rate"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultMetricsAddr = "0.0.0.0:0"
)

func main() {
	if err := run(); err != nil {
		slog.Error("calldash-api: fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.BoolP("verbose", "v", false, "Enable debug logging")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics")
	listenAddrFlag := flag.String("listen-addr", "", "Address for the API server (default :$PORT)")
	flag.Parse()

	// godotenv doesn't override existing env vars, so later files don't overwrite earlier ones
	_ = godotenv.Load()
	_ = godotenv.Load("api/.env")

	log := logger.New(*verboseFlag)
	slog.SetDefault(log)
	log.Info("starting calldash-api", "version", version, "commit", commit, "date", date)
	handlers.SetBuildInfo(version, commit, date)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Sentry.DSN != "" {
		release := version
		if commit != "none" {
			release = version + "-" + commit
		}
		tracesSampleRate := 0.1
		if cfg.Sentry.Environment == "development" {
			tracesSampleRate = 1.0
		}
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			Release:          release,
			EnableTracing:    true,
			TracesSampleRate: tracesSampleRate,
		})
		if err != nil {
			log.Warn("sentry initialization failed", "error", err)
		} else {
			log.Info("sentry initialized", "env", cfg.Sentry.Environment, "release", release)
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Cancelled on shutdown so long-lived streams and the refresher stop.
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

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

	broadcaster, err := events.NewBroadcaster(events.BroadcasterConfig{Logger: log})
	if err != nil {
		return err
	}

	cache, err := leads.NewCache(leads.CacheConfig{
		Logger: log,
		Source: fetcher,
		TTL:    cfg.Cache.TTL,
		OnChange: func(prev, next *leads.Snapshot) {
			broadcaster.PublishAll(events.Diff(prev.Records, next.Records))
		},
	})
	if err != nil {
		return err
	}

	var slackSink *events.SlackSink
	if cfg.Slack.Enabled() {
		slackSink, err = events.NewSlackSink(events.SlackSinkConfig{
			Logger:  log,
			Client:  slack.New(cfg.Slack.BotToken),
			Channel: cfg.Slack.Channel,
		})
		if err != nil {
			return err
		}
		if err := broadcaster.Subscribe(slackSink); err != nil {
			return err
		}
		log.Info("slack notifications enabled", "channel", cfg.Slack.Channel)
	}

	serverCfg := handlers.ServerConfig{
		Logger:      log,
		Location:    cfg.Dashboard.Location(),
		Cache:       cache,
		Store:       crmClient,
		Broadcaster: broadcaster,
		Agents:      cfg.Agents,
	}

	if cfg.Anthropic.Enabled() {
		svc, err := narrative.NewService(narrative.ServiceConfig{
			Logger:    log,
			Generator: narrative.NewAnthropicGenerator(cfg.Anthropic.APIKey, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens),
		})
		if err != nil {
			return err
		}
		serverCfg.Narrator = svc
		serverCfg.NarrativeLimiter = handlers.NewRateLimiter(nil, rate.Limit(cfg.Anthropic.RateLimit), cfg.Anthropic.RateBurst)
		log.Info("narrative analysis enabled", "model", cfg.Anthropic.Model)
	}

	if cfg.Export.Bucket != "" {
		s3Client, err := export.NewS3Client(serverCtx, cfg.Export.Region, cfg.Export.EndpointURL)
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
		serverCfg.Archiver = archiver
		log.Info("export archival enabled", "bucket", cfg.Export.Bucket)
	}

	api, err := handlers.NewServer(serverCfg)
	if err != nil {
		return err
	}

	refresher, err := leads.NewRefresher(leads.RefresherConfig{
		Logger:   log,
		Cache:    cache,
		Interval: cfg.Cache.RefreshInterval,
	})
	if err != nil {
		return err
	}
	refresher.Start(serverCtx)

	var metricsServer *http.Server
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		listener, err := net.Listen("tcp", *metricsAddrFlag)
		if err != nil {
			log.Error("failed to start prometheus metrics server listener", "error", err)
		} else {
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			metricsServer = &http.Server{Handler: mux}
			go func() {
				if err := metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server error", "error", err)
				}
			}()
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)

	// Before Recoverer so panics are captured.
	if cfg.Sentry.DSN != "" {
		sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
		r.Use(sentryHandler.Handle)
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if txn := sentry.TransactionFromContext(r.Context()); txn != nil {
					txn.Name = r.Method + " " + r.URL.Path
					if rctx := chi.RouteContext(r.Context()); rctx != nil {
						if pattern := rctx.RoutePattern(); pattern != "" {
							txn.Name = r.Method + " " + pattern
						}
					}
				}
				next.ServeHTTP(w, r)
			})
		})
	}

	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Server.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"X-Cache", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	})

	api.Routes(r)

	if _, err := os.Stat(cfg.Server.WebDistDir); err == nil {
		log.Info("serving static files", "dir", cfg.Server.WebDistDir)
		r.Get("/*", spaHandler(cfg.Server.WebDistDir))
	}

	addr := *listenAddrFlag
	if addr == "" {
		addr = ":" + cfg.Server.Port
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // Disabled for SSE streaming endpoints
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return serverCtx
		},
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("api server listening", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case sig := <-shutdown:
		log.Info("received signal, shutting down gracefully", "signal", sig.String())
	case err := <-serverErr:
		log.Error("api server error", "error", err)
	}

	api.MarkShuttingDown()

	// Request contexts are derived from serverCtx, so this also ends open event streams.
	serverCancel()
	refresher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown error", "error", err)
	} else {
		log.Info("api server stopped gracefully")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error("metrics server shutdown error", "error", err)
		}
	}
	if slackSink != nil {
		slackSink.Wait()
	}
	return nil
}
