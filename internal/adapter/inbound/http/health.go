package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/Sentinel-Gate/docgate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/docgate/internal/domain/audit"
	"github.com/Sentinel-Gate/docgate/internal/service"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"` // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
	// RecentOutcomes counts gate outcomes over the last recentWindow
	// audit records. Counts only: /health is public.
	RecentOutcomes map[string]int `json:"recent_outcomes,omitempty"`
}

const recentWindow = 100

// Probe checks one external dependency. A nil error is healthy.
type Probe func(ctx context.Context) error

// HealthChecker verifies component health.
type HealthChecker struct {
	sessionStore *memory.MemorySessionStore
	rateLimiter  *memory.MemoryRateLimiter
	auditService *service.AuditService
	auditLog     *memory.MemoryAuditStore
	probes       map[string]Probe
	probeTimeout time.Duration
	version      string
}

// NewHealthChecker creates a HealthChecker. Pass nil for components that
// aren't configured (the session store is nil with a remote backend).
func NewHealthChecker(
	sessionStore *memory.MemorySessionStore,
	rateLimiter *memory.MemoryRateLimiter,
	auditService *service.AuditService,
	version string,
) *HealthChecker {
	return &HealthChecker{
		sessionStore: sessionStore,
		rateLimiter:  rateLimiter,
		auditService: auditService,
		probes:       make(map[string]Probe),
		probeTimeout: 2 * time.Second,
		version:      version,
	}
}

// AddProbe registers a dependency check, such as the role database ping.
func (h *HealthChecker) AddProbe(name string, p Probe) {
	h.probes[name] = p
}

// SetAuditLog enables recent gate outcome counts from the audit ring buffer.
func (h *HealthChecker) SetAuditLog(s *memory.MemoryAuditStore) {
	h.auditLog = s
}

func (h *HealthChecker) recentOutcomes() map[string]int {
	if h.auditLog == nil {
		return nil
	}
	counts := make(map[string]int)
	for _, r := range h.auditLog.GetRecent(recentWindow) {
		if r.EventType == audit.EventTypeGate {
			counts[r.Outcome]++
		}
	}
	return counts
}

// Check performs health checks on all components.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.sessionStore != nil {
		checks["session_store"] = fmt.Sprintf("ok: %d sessions", h.sessionStore.Size())
	} else {
		checks["session_store"] = "not configured"
	}

	if h.rateLimiter != nil {
		_ = h.rateLimiter.Size()
		checks["rate_limiter"] = "ok"
	} else {
		checks["rate_limiter"] = "not configured"
	}

	if h.auditService != nil {
		depth := h.auditService.ChannelDepth()
		capacity := h.auditService.ChannelCapacity()
		percentFull := 0
		if capacity > 0 {
			percentFull = depth * 100 / capacity
		}

		// Past 90% the pipeline is under backpressure.
		if percentFull > 90 {
			checks["audit"] = fmt.Sprintf("degraded: %d/%d (%d%%)", depth, capacity, percentFull)
			healthy = false
		} else {
			checks["audit"] = fmt.Sprintf("ok: %d/%d (%d%%)", depth, capacity, percentFull)
		}

		if drops := h.auditService.DroppedRecords(); drops > 0 {
			checks["audit_drops"] = fmt.Sprintf("%d dropped", drops)
		}
	} else {
		checks["audit"] = "not configured"
	}

	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		probeCtx, cancel := context.WithTimeout(ctx, h.probeTimeout)
		err := h.probes[name](probeCtx)
		cancel()
		if err != nil {
			checks[name] = "error: " + err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:         status,
		Checks:         checks,
		Version:        h.version,
		RecentOutcomes: h.recentOutcomes(),
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}

// healthHandler is used when no checker is configured.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}` + "\n"))
	})
}
