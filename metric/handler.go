package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an http.Handler serving the registry's metrics in
// Prometheus exposition format. The operations server mounts this at
// /metrics; there is no standalone metrics listener.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(
		r.prometheusRegistry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	)
}
