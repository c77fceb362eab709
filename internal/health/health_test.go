package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticChecker struct {
	name     string
	status   CheckStatus
	critical bool
}

func (c *staticChecker) Name() string     { return c.name }
func (c *staticChecker) IsCritical() bool { return c.critical }
func (c *staticChecker) Check(_ context.Context) CheckResult {
	res := CheckResult{Status: c.status}
	if c.status != StatusHealthy {
		res.Error = "down"
	}
	return res
}

type fakePinger struct{ err error }

func (p *fakePinger) Ping(_ context.Context) error { return p.err }

func TestOverallAllHealthy(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(&staticChecker{name: "redis", status: StatusHealthy, critical: true})
	m.Register(&staticChecker{name: "generator", status: StatusHealthy})

	status, results := m.Overall(context.Background())
	assert.Equal(t, StatusHealthy, status)
	assert.Len(t, results, 2)
}

func TestOverallCriticalFailureIsUnhealthy(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(&staticChecker{name: "redis", status: StatusUnhealthy, critical: true})
	m.Register(&staticChecker{name: "generator", status: StatusHealthy})

	status, results := m.Overall(context.Background())
	assert.Equal(t, StatusUnhealthy, status)
	assert.True(t, results["redis"].Critical)
}

func TestOverallNonCriticalFailureDegrades(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(&staticChecker{name: "redis", status: StatusHealthy, critical: true})
	m.Register(&staticChecker{name: "generator", status: StatusUnhealthy})

	status, _ := m.Overall(context.Background())
	assert.Equal(t, StatusDegraded, status)
}

func TestReadyzReflectsCriticalHealth(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(&staticChecker{name: "redis", status: StatusUnhealthy, critical: true})

	mux := http.NewServeMux()
	m.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Liveness stays up regardless.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDetailedHealthEndpoint(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(&staticChecker{name: "generator", status: StatusUnhealthy})

	mux := http.NewServeMux()
	m.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code) // non-critical failure only degrades
	assert.Contains(t, rec.Body.String(), `"degraded"`)
	assert.Contains(t, rec.Body.String(), "generator")
}

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker("redis", &fakePinger{}, true)
	res := ok.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)

	bad := NewPingChecker("redis", &fakePinger{err: errors.New("connection refused")}, true)
	res = bad.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Error, "connection refused")
}

func TestHTTPChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	up := NewHTTPChecker("generator", srv.URL+"/health", false)
	assert.Equal(t, StatusHealthy, up.Check(context.Background()).Status)

	down := NewHTTPChecker("generator", srv.URL+"/broken", false)
	res := down.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Error, "HTTP 500")
}
