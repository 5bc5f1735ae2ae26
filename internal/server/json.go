package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/civilens/civilens/internal/flow"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFlowError maps a Dispatch error to a response. User errors carry the
// unchanged view; anything else is logged and hidden.
func writeFlowError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v flow.View, err error) {
	var ue *flow.UserError
	if !errors.As(err, &ue) {
		logger.ErrorContext(r.Context(), "flow dispatch failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusUnprocessableEntity
	switch {
	case errors.Is(err, flow.ErrSubmitInFlight):
		status = http.StatusConflict
	case errors.Is(err, flow.ErrNoSession):
		status = http.StatusForbidden
	}
	writeJSON(w, status, FlowErrorResponse{Error: ue.Msg, Code: ue.Code, View: &v})
}
