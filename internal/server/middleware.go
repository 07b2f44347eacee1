package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/pkg/shared/logging"
)

// requestLogger logs one line per completed request at Info level (or
// Warn for a 5xx response), carrying the same field set the rest of
// the module's HTTP-facing components log with.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			fields := logging.HTTPFields(r.Method, r.URL.Path, ww.Status()).
				Duration(time.Since(start)).
				RequestID(middleware.GetReqID(r.Context()))

			if ww.Status() >= 500 {
				logger.Warn("request", toZapFields(fields)...)
			} else {
				logger.Info("request", toZapFields(fields)...)
			}
		})
	}
}

func toZapFields(f logging.Fields) []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
