// Package health exposes liveness and readiness probes for the service.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/myowjaYOY/program-tracker-sub001/internal/common"
)

// Pinger probes a single dependency.
type Pinger func(ctx context.Context) error

// Handler answers liveness and readiness checks. Readiness probes every
// registered dependency concurrently under a shared timeout.
type Handler struct {
	Deps    map[string]Pinger
	Timeout time.Duration
}

// Live always reports ok; it only proves the process is serving requests.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes all dependencies and reports per-dependency status.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		status = make(map[string]string, len(h.Deps))
		ready  = true
	)
	for name, ping := range h.Deps {
		wg.Add(1)
		go func(name string, ping Pinger) {
			defer wg.Done()
			state := "ok"
			if err := ping(ctx); err != nil {
				state = err.Error()
			}
			mu.Lock()
			status[name] = state
			if state != "ok" {
				ready = false
			}
			mu.Unlock()
		}(name, ping)
	}
	wg.Wait()

	code := http.StatusOK
	overall := "ready"
	if !ready {
		code = http.StatusServiceUnavailable
		overall = "degraded"
	}
	common.JSON(w, code, map[string]any{
		"status":       overall,
		"dependencies": status,
	})
}
