package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate performs business-rule validation on the loaded configuration.
func (c *Config) Validate() error {
	if c.CRM.BaseURL == "" {
		return errors.New("crm.base_url is required")
	}
	if c.CRM.BaseID == "" {
		return errors.New("crm.base_id is required")
	}
	if c.CRM.Token == "" {
		return errors.New("crm.token is required")
	}
	if c.CRM.PageSize <= 0 || c.CRM.PageSize > 100 {
		return fmt.Errorf("crm.page_size must be within [1,100] (got %d)", c.CRM.PageSize)
	}
	if err := positive("cache.ttl", c.Cache.TTL); err != nil {
		return err
	}
	if err := positive("cache.refresh_interval", c.Cache.RefreshInterval); err != nil {
		return err
	}
	if err := positive("probe.timeout", c.Probe.Timeout); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Dashboard.TimeZone); err != nil {
		return fmt.Errorf("dashboard.time_zone: %w", err)
	}
	if c.Anthropic.MaxTokens <= 0 {
		return fmt.Errorf("anthropic.max_tokens must be > 0 (got %d)", c.Anthropic.MaxTokens)
	}
	if c.Anthropic.RateLimit <= 0 || c.Anthropic.RateBurst <= 0 {
		return errors.New("narrative rate limit and burst must be > 0")
	}
	if c.Agents == nil {
		c.Agents = map[string]string{}
	}
	return nil
}

func positive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be > 0 (got %v)", name, d)
	}
	return nil
}
