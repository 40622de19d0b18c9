// Package p1server serves the status and metrics of a running
// p1influx process over HTTP.
package p1server

import (
	"encoding/json"
	"net/http"

	"github.com/juju/loggo"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rogpeppe/p1influx/cadence"
	"github.com/rogpeppe/p1influx/sampleworker"
)

var logger = loggo.GetLogger("p1influx.p1server")

type Params struct {
	// Gatherer is used to gather the metrics served on /metrics.
	Gatherer prometheus.Gatherer
	// Plan holds the cadence plan in use.
	Plan cadence.Plan
	// Status returns the current worker status.
	Status func() sampleworker.Status
}

// StatusResponse holds the JSON served on /status.
type StatusResponse struct {
	sampleworker.Status
	FastInterval string `json:"fast_interval"`
	SlowInterval string `json:"slow_interval"`
	SlowEvery    int    `json:"slow_every"`
}

// New returns a handler that serves:
//
//	GET /metrics - Prometheus metrics
//	GET /status - the worker status as JSON
func New(p Params) http.Handler {
	h := &handler{p}
	router := httprouter.New()
	router.Handler("GET", "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	router.GET("/status", h.serveStatus)
	return router
}

type handler struct {
	p Params
}

func (h *handler) serveStatus(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	resp := StatusResponse{
		Status:       h.p.Status(),
		FastInterval: h.p.Plan.Fast.String(),
		SlowInterval: h.p.Plan.Slow.String(),
		SlowEvery:    h.p.Plan.SlowEvery(),
	}
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Errorf("cannot marshal status: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
