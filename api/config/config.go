package config

import (
	"time"
)

// Config is the root API configuration.
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	CRM       CRMConfig         `yaml:"crm"`
	Cache     CacheConfig       `yaml:"cache"`
	Probe     ProbeConfig       `yaml:"probe"`
	Dashboard DashboardConfig   `yaml:"dashboard"`
	Anthropic AnthropicConfig   `yaml:"anthropic"`
	Slack     SlackConfig       `yaml:"slack"`
	Export    ExportConfig      `yaml:"export"`
	Sentry    SentryConfig      `yaml:"sentry"`
	Agents    map[string]string `yaml:"agents" env:"AGENTS"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `yaml:"port"             env:"PORT"                    env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"5s"`
	CORSOrigins     string        `yaml:"cors_origins"     env:"CORS_ORIGINS"            env-default:"*"`
	WebDistDir      string        `yaml:"web_dist_dir"     env:"WEB_DIST_DIR"            env-default:"./web/dist"`
}

// CRMConfig holds the upstream record store settings.
type CRMConfig struct {
	BaseURL   string `yaml:"base_url"   env:"CRM_BASE_URL"   env-default:"https://api.airtable.com/v0"`
	BaseID    string `yaml:"base_id"    env:"CRM_BASE_ID"`
	Table     string `yaml:"table"      env:"CRM_TABLE"      env-default:"Leads"`
	Token     string `yaml:"token"      env:"CRM_TOKEN"`
	PageSize  int    `yaml:"page_size"  env:"CRM_PAGE_SIZE"  env-default:"100"`
	SortField string `yaml:"sort_field" env:"CRM_SORT_FIELD" env-default:"Last Call Date"`

	// Consecutive failures before the circuit breaker opens.
	BreakerFailures uint32        `yaml:"breaker_failures" env:"CRM_BREAKER_FAILURES" env-default:"5"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"  env:"CRM_BREAKER_TIMEOUT"  env-default:"30s"`
}

// CacheConfig holds snapshot cache timing.
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl"              env:"CACHE_TTL"              env-default:"20s"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"CACHE_REFRESH_INTERVAL" env-default:"30s"`
}

// ProbeConfig holds recording duration probe settings.
type ProbeConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"PROBE_TIMEOUT" env-default:"5s"`
}

// DashboardConfig holds view and analytics settings.
type DashboardConfig struct {
	TimeZone string `yaml:"time_zone" env:"DASHBOARD_TIME_ZONE" env-default:"UTC"`
}

// AnthropicConfig holds narrative analysis settings.
type AnthropicConfig struct {
	APIKey    string  `yaml:"api_key"    env:"ANTHROPIC_API_KEY"`
	Model     string  `yaml:"model"      env:"ANTHROPIC_MODEL"      env-default:"claude-haiku-4-5"`
	MaxTokens int64   `yaml:"max_tokens" env:"ANTHROPIC_MAX_TOKENS" env-default:"2048"`
	RateLimit float64 `yaml:"rate_limit" env:"NARRATIVE_RATE_LIMIT" env-default:"0.1"`
	RateBurst int     `yaml:"rate_burst" env:"NARRATIVE_RATE_BURST" env-default:"3"`
}

// SlackConfig enables booked-appointment notifications when both fields are set.
type SlackConfig struct {
	BotToken string `yaml:"bot_token" env:"SLACK_BOT_TOKEN"`
	Channel  string `yaml:"channel"   env:"SLACK_CHANNEL"`
}

// ExportConfig enables S3 archival of CSV exports when Bucket is set.
type ExportConfig struct {
	Bucket      string `yaml:"bucket"       env:"EXPORT_S3_BUCKET"`
	Region      string `yaml:"region"       env:"EXPORT_S3_REGION"       env-default:"us-east-1"`
	EndpointURL string `yaml:"endpoint_url" env:"EXPORT_S3_ENDPOINT_URL"`
	Prefix      string `yaml:"prefix"       env:"EXPORT_S3_PREFIX"       env-default:"exports/"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string `yaml:"dsn"         env:"SENTRY_DSN"`
	Environment string `yaml:"environment" env:"SENTRY_ENVIRONMENT" env-default:"development"`
}

// Location returns the dashboard time zone, falling back to UTC.
func (c DashboardConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Enabled reports whether Slack notifications are configured.
func (c SlackConfig) Enabled() bool {
	return c.BotToken != "" && c.Channel != ""
}

// Enabled reports whether narrative analysis is configured.
func (c AnthropicConfig) Enabled() bool {
	return c.APIKey != ""
}
