// Package adapter connects a gwbridge session to logging, monitoring and
// telemetry backends.
package adapter

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	LivePath    = "/live"
	ReadyPath   = "/ready"
	MetricsPath = "/metrics"
)

// NewHTTPHandler serves the liveness and readiness checks of health and the
// metrics in gatherer. Either may be nil.
func NewHTTPHandler(health healthcheck.Handler, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	if health != nil {
		mux.HandleFunc(LivePath, health.LiveEndpoint)
		mux.HandleFunc(ReadyPath, health.ReadyEndpoint)
	}
	if gatherer != nil {
		mux.Handle(MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}
