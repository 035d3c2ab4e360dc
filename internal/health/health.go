package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the outcome of one health check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckFunc probes one dependency within ctx's deadline.
type CheckFunc func(ctx context.Context) error

// CheckResult is the recorded outcome of a component check.
type CheckResult struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Critical  bool          `json:"critical"`
}

type checker struct {
	name     string
	fn       CheckFunc
	critical bool
}

// Manager runs registered checks on demand and serves the results over
// HTTP. A failing critical check makes the service report unhealthy; a
// failing non-critical one only shows up in the detail view.
type Manager struct {
	mu       sync.Mutex
	checkers []checker
	timeout  time.Duration
	logger   *zap.Logger
}

// NewManager creates a health manager. Each check gets a 3s budget.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{timeout: 3 * time.Second, logger: logger}
}

// Register adds a named check. Critical checks gate readiness.
func (m *Manager) Register(name string, critical bool, fn CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker{name: name, fn: fn, critical: critical})
}

// Check runs all checks and returns per-component results.
func (m *Manager) Check(ctx context.Context) []CheckResult {
	m.mu.Lock()
	checkers := append([]checker(nil), m.checkers...)
	m.mu.Unlock()

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c checker) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			started := time.Now()
			err := c.fn(checkCtx)
			result := CheckResult{
				Component: c.name,
				Status:    StatusHealthy,
				Duration:  time.Since(started),
				Timestamp: time.Now(),
				Critical:  c.critical,
			}
			if err != nil {
				result.Status = StatusUnhealthy
				result.Error = err.Error()
				m.logger.Warn("Health check failed",
					zap.String("component", c.name),
					zap.Error(err))
			}
			results[i] = result
		}(i, c)
	}
	wg.Wait()
	return results
}

// Ready reports whether every critical check passes.
func (m *Manager) Ready(ctx context.Context) bool {
	for _, result := range m.Check(ctx) {
		if result.Critical && result.Status != StatusHealthy {
			return false
		}
	}
	return true
}

type overallResponse struct {
	Status     Status        `json:"status"`
	Components []CheckResult `json:"components,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// RegisterRoutes registers /health, /readiness and /liveness on the mux.
func (m *Manager) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", m.handleHealth)
	mux.HandleFunc("/readiness", m.handleReadiness)
	mux.HandleFunc("/liveness", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, overallResponse{Status: StatusHealthy, Timestamp: time.Now()})
	})
}

func (m *Manager) handleHealth(w http.ResponseWriter, r *http.Request) {
	results := m.Check(r.Context())
	status := StatusHealthy
	code := http.StatusOK
	for _, result := range results {
		if result.Critical && result.Status != StatusHealthy {
			status = StatusUnhealthy
			code = http.StatusServiceUnavailable
			break
		}
	}
	writeStatus(w, code, overallResponse{Status: status, Components: results, Timestamp: time.Now()})
}

func (m *Manager) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if m.Ready(r.Context()) {
		writeStatus(w, http.StatusOK, overallResponse{Status: StatusHealthy, Timestamp: time.Now()})
		return
	}
	writeStatus(w, http.StatusServiceUnavailable, overallResponse{Status: StatusUnhealthy, Timestamp: time.Now()})
}

func writeStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
