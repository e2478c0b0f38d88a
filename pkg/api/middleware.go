package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// RequestIDExtractor adds chi's request id to every record logged with a
// request context. Register it with logger.WithContextExtractors.
func RequestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	if id := middleware.GetReqID(ctx); id != "" {
		return logger.RequestID(id), true
	}
	return slog.Attr{}, false
}

// requestLogger stores a request-scoped logger in the context and logs the
// outcome of every request.
func requestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			log := base.With(slog.String("method", r.Method), slog.String("path", r.URL.Path))
			ctx := logger.WithContext(r.Context(), log)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.LogAttrs(ctx, levelFor(status), "request completed",
				slog.Int("status", status),
				logger.Duration(time.Since(start)),
			)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}

// Recorder receives operation and webhook outcomes. *metrics.Collector
// satisfies it.
type Recorder interface {
	RecordWebhook(eventType, outcome string)
	RecordOperation(op string, err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordWebhook(string, string)  {}
func (noopRecorder) RecordOperation(string, error) {}
