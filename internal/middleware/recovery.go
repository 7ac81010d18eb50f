package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoveryMiddleware recovers panics in the metrics server's probe
// handlers so a broken collector (e.g. a gatherer error mid-scrape)
// degrades one /metrics request to a 500 instead of taking down the
// whole dedupstream process — the pipeline run this process is
// otherwise driving keeps going unaffected.
func RecoveryMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.WithFields(logrus.Fields{
						"component": "metrics_server",
						"error":     err,
						"route":     r.URL.Path,
						"stack":     string(debug.Stack()),
					}).Error("panic recovered serving probe route")

					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}