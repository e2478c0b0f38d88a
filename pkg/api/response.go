package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

type errorBody struct {
	Error   string              `json:"error"`
	Code    string              `json:"code"`
	Details map[string][]string `json:"details,omitempty"`
}

type successBody struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

// writeError logs err with the request-scoped logger and answers with its
// client-facing form. Client errors log at warn, server errors at error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	httpErr := statusFor(err)
	ctx := r.Context()

	level := slog.LevelWarn
	if httpErr.Code >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.FromContext(ctx).Log(ctx, level, "request failed",
		slog.Int("status", httpErr.Code),
		slog.String("code", httpErr.Key),
		logger.Error(err),
	)

	body := errorBody{Error: httpErr.Message, Code: httpErr.Key}
	var verr ValidationError
	if errors.As(err, &verr) {
		body.Details = verr
	}
	writeJSON(w, httpErr.Code, body)
}
