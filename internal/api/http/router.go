package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/partcat/partcat/internal/errors"
	"github.com/partcat/partcat/internal/observability"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Catalog Catalog

	// Gatherer serves /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// FilterStats serves /v1/stats/filters; nil disables the endpoint.
	FilterStats *observability.FilterStats

	Logger logrus.FieldLogger

	// Middleware runs outside the default chain, e.g. shutdown tracking.
	Middleware []func(http.Handler) http.Handler
}

// NewRouter returns the complete API handler: partition routes, /healthz
// and /metrics.
func NewRouter(opts RouterOptions) http.Handler {
	mux := http.NewServeMux()
	NewPartitionHandler(opts.Catalog, opts.Logger).Register(mux)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.FilterStats != nil {
		mux.HandleFunc("GET /v1/stats/filters", filterStatsHandler(opts.FilterStats))
	}

	var handler http.Handler = mux
	handler = DefaultMiddleware(opts.Logger)(handler)
	handler = ChainMiddleware(opts.Middleware...)(handler)

	if opts.Gatherer == nil {
		return handler
	}
	root := http.NewServeMux()
	root.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	root.Handle("/", handler)
	return root
}

const defaultTopKeys = 20

// filterStatsHandler reports the most used partition keys; ?limit=N.
func filterStatsHandler(stats *observability.FilterStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultTopKeys
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, ErrorResponse{
					Error:     fmt.Sprintf("invalid limit %q", v),
					Code:      errors.CodeInvalidRequest,
					Category:  string(errors.ErrCategoryValidation),
					RequestID: GetRequestID(r),
				})
				return
			}
			limit = n
		}
		writeJSON(w, http.StatusOK, stats.GetTopKeys(limit))
	}
}
