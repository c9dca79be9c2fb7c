package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"splitdash/internal/splitwise"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeUpstreamError maps client errors onto the two statuses the API
// distinguishes: a rejected credential and everything else upstream.
func writeUpstreamError(w http.ResponseWriter, err error) {
	if errors.Is(err, splitwise.ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, "upstream rejected credential")
		return
	}
	writeError(w, http.StatusBadGateway, "upstream request failed")
}
