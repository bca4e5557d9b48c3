// Package exporters exposes the registered metrics over HTTP.
package exporters

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler returns the Prometheus metrics HTTP handler.
// It serves every promauto-registered series.
func HTTPHandler() http.Handler {
	return promhttp.Handler()
}
