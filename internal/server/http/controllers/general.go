package controllers

import (
	"net/http"

	"github.com/aman1205/StreamForge/internal/runtime"
)

// GeneralController handles health and metrics endpoints.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers health and metrics routes with the given mux.
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
	mux.Handle("/metrics", c.rt.Metrics().Handler())
	mux.HandleFunc("/v1/backpressure", c.handleBackpressure)
}

func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleBackpressure lists per-consumer throughput trackers, or returns a
// single recommendation when group/consumer are given.
func (c *GeneralController) handleBackpressure(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	group := q.Get("groupId")
	consumer := q.Get("consumerId")
	if group == "" || consumer == "" {
		writeJSON(w, map[string]any{"consumers": c.rt.Backpressure().Metrics()})
		return
	}
	bp := c.rt.Backpressure()
	writeJSON(w, map[string]any{
		"batchSize":          bp.BatchSize(group, consumer, parseLimit(q.Get("requested"))),
		"shouldThrottle":     bp.ShouldThrottle(group, consumer),
		"recommendedDelayMs": bp.RecommendedDelayMs(group, consumer),
	})
}
