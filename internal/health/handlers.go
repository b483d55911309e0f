package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/backend-klinik/internal/common"
)

var draining atomic.Bool

// SetReady toggles readiness. The API clears it when shutdown starts so the load
// balancer stops routing new bills to the instance.
func SetReady(ready bool) {
	draining.Store(!ready)
}

// Probe is one dependency checked by the readiness endpoint.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// CheckResult is the per-probe entry of the readiness report.
type CheckResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Report is the readiness response body.
type Report struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves /health/live and /health/ready.
type Handler struct {
	Probes []Probe
}

// Live always answers 200 while the process is up.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, Report{Status: "alive"})
}

// Ready runs every probe in parallel and answers 503 when any fails or the
// instance is draining.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, Report{Status: "draining"})
		return
	}
	if len(h.Probes) == 0 {
		common.JSON(w, http.StatusServiceUnavailable, Report{Status: "unconfigured"})
		return
	}

	results := make([]CheckResult, len(h.Probes))
	var wg sync.WaitGroup
	for i, p := range h.Probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = run(r.Context(), p)
		}()
	}
	wg.Wait()

	report := Report{Status: "ready", Checks: make(map[string]CheckResult, len(results))}
	status := http.StatusOK
	for i, res := range results {
		report.Checks[h.Probes[i].Name] = res
		if res.Status != "ok" {
			report.Status = "not_ready"
			status = http.StatusServiceUnavailable
		}
	}
	common.JSON(w, status, report)
}

func run(ctx context.Context, p Probe) CheckResult {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.Check(ctx)
	res := CheckResult{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "fail"
		res.Error = err.Error()
	}
	return res
}
