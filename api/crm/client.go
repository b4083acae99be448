package crm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/malbeclabs/calldash/api/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second

	// Upstream bodies are included in errors; cap them so a large HTML error page stays readable.
	maxErrorBody = 2048
)

type ClientConfig struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
	BaseURL    string
	BaseID     string
	Table      string
	Token      string

	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func (cfg *ClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.BaseURL == "" {
		return errors.New("base url is required")
	}
	if cfg.BaseID == "" {
		return errors.New("base id is required")
	}
	if cfg.Table == "" {
		return errors.New("table is required")
	}
	if cfg.Token == "" {
		return errors.New("token is required")
	}

	// Optional with defaults
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = defaultBreakerTimeout
	}
	return nil
}

// Client talks JSON over HTTP to an Airtable-style record store.
// Calls go through a circuit breaker that only counts transport failures and 5xx responses.
type Client struct {
	log      *slog.Logger
	http     *http.Client
	tableURL string
	token    string
	breaker  *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	c := &Client{
		log:      cfg.Logger,
		http:     cfg.HTTPClient,
		tableURL: strings.TrimSuffix(cfg.BaseURL, "/") + "/" + url.PathEscape(cfg.BaseID) + "/" + url.PathEscape(cfg.Table),
		token:    cfg.Token,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "crm",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			var ue *UpstreamError
			if errors.As(err, &ue) {
				return ue.ClientError()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("crm: circuit breaker state change", "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

// ListPage fetches a single page of records.
func (c *Client) ListPage(ctx context.Context, params ListParams) (*Page, error) {
	q := url.Values{}
	if params.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(params.PageSize))
	}
	if params.SortField != "" {
		dir := params.SortDirection
		if dir != "asc" {
			dir = "desc"
		}
		q.Set("sort[0][field]", params.SortField)
		q.Set("sort[0][direction]", dir)
	}
	if params.Offset != "" {
		q.Set("offset", params.Offset)
	}

	body, err := c.do(ctx, "list", http.MethodGet, c.tableURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &UpstreamError{Op: "list", Err: fmt.Errorf("failed to decode page: %w", err)}
	}
	return &page, nil
}

// Get fetches a single record by id.
func (c *Client) Get(ctx context.Context, id string) (*Record, error) {
	body, err := c.do(ctx, "get", http.MethodGet, c.recordURL(id), nil)
	if err != nil {
		return nil, err
	}
	return decodeRecord("get", body)
}

// Create inserts a record with the given fields.
func (c *Client) Create(ctx context.Context, fields map[string]any) (*Record, error) {
	body, err := c.do(ctx, "create", http.MethodPost, c.tableURL, fieldsBody{Fields: fields})
	if err != nil {
		return nil, err
	}
	return decodeRecord("create", body)
}

// Update patches only the given fields of a record.
func (c *Client) Update(ctx context.Context, id string, fields map[string]any) (*Record, error) {
	body, err := c.do(ctx, "update", http.MethodPatch, c.recordURL(id), fieldsBody{Fields: fields})
	if err != nil {
		return nil, err
	}
	return decodeRecord("update", body)
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, id string) error {
	body, err := c.do(ctx, "delete", http.MethodDelete, c.recordURL(id), nil)
	if err != nil {
		return err
	}
	var resp deleteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return &UpstreamError{Op: "delete", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if !resp.Deleted {
		return &UpstreamError{Op: "delete", Err: fmt.Errorf("record %s was not deleted", id)}
	}
	return nil
}

func (c *Client) recordURL(id string) string {
	return c.tableURL + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, op, method, target string, payload any) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, op, method, target, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &UpstreamError{Op: op, StatusCode: http.StatusServiceUnavailable, Body: "record store circuit open", Err: err}
	}
	return body, err
}

func (c *Client) roundTrip(ctx context.Context, op, method, target string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, &UpstreamError{Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, &UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest(op, 0, time.Since(start))
		return nil, &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	metrics.RecordUpstreamRequest(op, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := strings.TrimSpace(string(body))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		c.log.Debug("crm: upstream error", "op", op, "status", resp.StatusCode, "body", text)
		return nil, &UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: text}
	}
	return body, nil
}

func decodeRecord(op string, body []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, &UpstreamError{Op: op, Err: fmt.Errorf("failed to decode record: %w", err)}
	}
	return &rec, nil
}
