package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Pinger is anything with a context-aware connectivity probe. Both the
// session manager and the report archive satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker probes a Pinger-backed dependency.
type PingChecker struct {
	name     string
	target   Pinger
	critical bool
}

func NewPingChecker(name string, target Pinger, critical bool) *PingChecker {
	return &PingChecker{name: name, target: target, critical: critical}
}

func (c *PingChecker) Name() string     { return c.name }
func (c *PingChecker) IsCritical() bool { return c.critical }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.target.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// HTTPChecker probes an HTTP dependency's health endpoint. Used for the
// generation service, whose outage degrades reports to placeholders rather
// than taking the API down.
type HTTPChecker struct {
	name     string
	url      string
	critical bool
	client   *http.Client
}

func NewHTTPChecker(name, url string, critical bool) *HTTPChecker {
	return &HTTPChecker{
		name:     name,
		url:      url,
		critical: critical,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPChecker) Name() string     { return c.name }
func (c *HTTPChecker) IsCritical() bool { return c.critical }

func (c *HTTPChecker) Check(ctx context.Context) CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  fmt.Sprintf("HTTP %d from %s", resp.StatusCode, c.url),
		}
	}
	return CheckResult{Status: StatusHealthy}
}
