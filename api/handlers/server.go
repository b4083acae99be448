package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/calldash/api/crm"
	"github.com/malbeclabs/calldash/api/events"
	"github.com/malbeclabs/calldash/api/leads"
)

const (
	defaultKeepAlive   = 25 * time.Second
	maxRequestBodySize = 1 << 20
)

// SnapshotCache is the read side of the lead cache.
type SnapshotCache interface {
	Get(ctx context.Context) (*leads.Snapshot, error)
	Lookup(ctx context.Context) (*leads.Snapshot, bool, error)
	Refresh(ctx context.Context) (*leads.Snapshot, error)
	Invalidate()
	Ready() bool
}

// RecordStore forwards single-record operations to the upstream CRM.
type RecordStore interface {
	Get(ctx context.Context, id string) (*crm.Record, error)
	Create(ctx context.Context, fields map[string]any) (*crm.Record, error)
	Update(ctx context.Context, id string, fields map[string]any) (*crm.Record, error)
	Delete(ctx context.Context, id string) error
}

type Subscriber interface {
	Subscribe(s events.Sink) error
	Unsubscribe(s events.Sink)
}

type Narrator interface {
	Analyze(ctx context.Context, key, prompt string) (string, bool, error)
}

type Archiver interface {
	Archive(ctx context.Context, records []leads.Record) (string, error)
}

type ServerConfig struct {
	Logger      *slog.Logger
	Clock       clockwork.Clock
	Location    *time.Location
	Cache       SnapshotCache
	Store       RecordStore
	Broadcaster Subscriber
	Agents      map[string]string

	// Optional. Narrative analysis returns 503 when Narrator is nil, and so does
	// archival when Archiver is nil.
	Narrator         Narrator
	NarrativeLimiter *RateLimiter
	Archiver         Archiver

	HTTPClient *http.Client
	KeepAlive  time.Duration
}

func (cfg *ServerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Cache == nil {
		return errors.New("cache is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Broadcaster == nil {
		return errors.New("broadcaster is required")
	}

	// Optional with defaults
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	return nil
}

// Server holds the HTTP handlers and the services they read from.
type Server struct {
	log *slog.Logger
	cfg ServerConfig

	shuttingDown atomic.Bool
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Server{log: cfg.Logger, cfg: cfg}, nil
}

// Routes registers every API route on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.Healthz)
	r.Get("/readyz", s.Readyz)
	r.Get("/api/version", GetVersion)

	r.Get("/api/leads", s.ListLeads)
	r.Post("/api/leads", s.CreateLead)
	r.Get("/api/leads/{id}", s.GetLead)
	r.Patch("/api/leads/{id}", s.UpdateLead)
	r.Delete("/api/leads/{id}", s.DeleteLead)
	r.Post("/api/refresh", s.Refresh)

	r.Get("/api/analytics", s.GetAnalytics)
	r.Get("/api/analytics/day", s.GetDayAnalysis)
	r.Post("/api/analytics/narrative", s.PostNarrative)

	r.Get("/api/events", s.StreamEvents)
	r.Get("/api/ws", s.ServeWebSocket)

	r.Get("/api/export.csv", s.ExportCSV)
	r.Post("/api/export/archive", s.ArchiveExport)

	r.Get("/api/recordings/download", s.DownloadRecording)
}

// MarkShuttingDown makes the readiness probe fail immediately.
func (s *Server) MarkShuttingDown() {
	s.shuttingDown.Store(true)
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz reports ready once the cache holds a snapshot.
func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("shutting down"))
		return
	}
	if !s.cfg.Cache.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("cache not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) now() time.Time {
	return s.cfg.Clock.Now().In(s.cfg.Location)
}

type errorResponse struct {
	Error              string `json:"error"`
	Details            string `json:"details,omitempty"`
	InsufficientCredit bool   `json:"insufficientCredit,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeUpstreamError reports a failed CRM call. Reads always answer 502; mutations
// pass upstream client errors through so callers can see validation failures.
func (s *Server) writeUpstreamError(w http.ResponseWriter, op string, err error, passthrough bool) {
	msg := s.internalError(op, err)

	status := http.StatusBadGateway
	resp := errorResponse{Error: msg}
	var ue *crm.UpstreamError
	if errors.As(err, &ue) {
		if passthrough {
			status = ue.HTTPStatus()
		}
		resp.Details = ue.Body
		if resp.Details == "" {
			resp.Details = SanitizeError(ue)
		}
	}
	writeJSON(w, status, resp)
}
