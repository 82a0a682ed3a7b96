package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const probeTimeout = 2 * time.Second

// Probe reports whether a single dependency is reachable.
type Probe func(ctx context.Context) error

// HealthReport is the JSON body served on /health.
type HealthReport struct {
	CheckedAt time.Time         `json:"checked_at"`
	Checks    map[string]string `json:"checks"`
	Status    string            `json:"status"`
}

// HealthChecker aggregates liveness probes for the service's dependencies.
// The database probe is built in; further probes (secret backend, gateway
// reachability) are registered by the composition root.
type HealthChecker struct {
	pool   *pgxpool.Pool
	probes map[string]Probe
}

func NewHealthChecker(pool *pgxpool.Pool) *HealthChecker {
	return &HealthChecker{
		pool:   pool,
		probes: make(map[string]Probe),
	}
}

// AddProbe registers a named dependency probe. Not safe to call after the
// health endpoint starts serving.
func (h *HealthChecker) AddProbe(name string, probe Probe) {
	h.probes[name] = probe
}

// Check runs every probe with a bounded timeout and reports the aggregate.
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	report := HealthReport{
		CheckedAt: time.Now().UTC(),
		Checks:    make(map[string]string),
		Status:    "healthy",
	}

	run := func(name string, probe Probe) {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		if err := probe(probeCtx); err != nil {
			report.Checks[name] = "unhealthy: " + err.Error()
			report.Status = "unhealthy"
			return
		}
		report.Checks[name] = "healthy"
	}

	if h.pool != nil {
		run("database", h.pool.Ping)
	}

	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		run(name, h.probes[name])
	}

	return report
}

// HealthHandler serves the aggregate report, 503 when any probe fails.
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if report.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}
