package middleware

import (
	"net/http"
	"time"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
)

// statusCodeWriter remembers the status code written by the wrapped handler
type statusCodeWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusCodeWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Logging logs one line per request once the handler has returned
func Logging(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusCodeWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sw, r)

			keyvals := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.statusCode,
				"duration", time.Since(start),
				"remoteAddr", r.RemoteAddr,
			}

			if sw.statusCode >= http.StatusInternalServerError {
				log.Error("Request failed", keyvals...)
				return
			}
			log.Info("Request processed", keyvals...)
		})
	}
}
