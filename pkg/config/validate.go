package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateCore checks the settings every portal process needs.
func (c *Config) ValidateCore() error {
	var problems []string

	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, "API_BASE_URL must be an absolute URL")
	}
	if c.Upstream.Timeout <= 0 {
		problems = append(problems, "API_TIMEOUT must be positive")
	}
	if c.Upstream.MaxRetries < 0 {
		problems = append(problems, "API_MAX_RETRIES must not be negative")
	}
	if c.Session.TTL <= 0 {
		problems = append(problems, "SESSION_TTL must be positive")
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		problems = append(problems, "SESSION_COOKIE must not be empty")
	}
	if c.Stats.PageSize <= 0 || c.Stats.MaxPages <= 0 || c.Stats.DisplayPageSize <= 0 {
		problems = append(problems, "STATS_PAGE_SIZE, STATS_MAX_PAGES and DISPLAY_PAGE_SIZE must be positive")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		problems = append(problems, "RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
