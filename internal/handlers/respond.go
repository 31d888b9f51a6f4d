package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/teetime/backend/internal/logging"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 16

// decodeJSON reads a JSON body into dst, answering 400 itself when the body
// is malformed.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		logging.FromContext(r.Context()).Warn("invalid request payload", "path", r.URL.Path, "error", err)
		respondJSON(r.Context(), w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Reason: "invalid_body"})
		return false
	}
	return true
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	logger := logging.FromContext(ctx)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("encode response body", "status", status, "error", err)
		return
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}
