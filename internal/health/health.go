package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CheckStatus represents the result of a health check.
type CheckStatus int

const (
	StatusHealthy CheckStatus = iota
	StatusDegraded
	StatusUnhealthy
)

func (s CheckStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

func (s CheckStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// CheckResult contains the outcome of one component check.
type CheckResult struct {
	Component string        `json:"component"`
	Status    CheckStatus   `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Critical  bool          `json:"critical"`
}

// Checker is one component health probe.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
	// IsCritical marks checks whose failure makes the whole service unready.
	IsCritical() bool
}

// Manager runs registered checkers and serves probe endpoints.
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
	logger   *zap.Logger
}

// NewManager creates a health manager with a per-check timeout.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		checkers: make(map[string]Checker),
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

// Register adds a checker; a later registration with the same name replaces
// the earlier one.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[c.Name()] = c
}

// Overall runs all checks concurrently and reduces them to one status:
// any critical failure is unhealthy, any non-critical failure is degraded.
func (m *Manager) Overall(ctx context.Context) (CheckStatus, map[string]CheckResult) {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var wg sync.WaitGroup
	var resMu sync.Mutex

	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			start := time.Now()
			res := c.Check(checkCtx)
			res.Component = c.Name()
			res.Duration = time.Since(start)
			res.Critical = c.IsCritical()

			resMu.Lock()
			results[c.Name()] = res
			resMu.Unlock()
		}(c)
	}
	wg.Wait()

	status := StatusHealthy
	for _, res := range results {
		if res.Status == StatusHealthy {
			continue
		}
		if res.Critical {
			status = StatusUnhealthy
			m.logger.Warn("Critical health check failing",
				zap.String("component", res.Component),
				zap.String("error", res.Error),
			)
		} else if status == StatusHealthy {
			status = StatusDegraded
		}
	}
	return status, results
}

// RegisterRoutes installs the probe endpoints:
//
//	GET /healthz  liveness (always 200 while the process runs)
//	GET /readyz   readiness (503 when a critical dependency is down)
//	GET /health   detailed component report
func (m *Manager) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		status, _ := m.Overall(r.Context())
		code := http.StatusOK
		if status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status.String()})
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status, results := m.Overall(r.Context())
		code := http.StatusOK
		if status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     status.String(),
			"components": results,
			"timestamp":  time.Now().UTC(),
		})
	})
}
