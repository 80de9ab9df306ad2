package httpserver

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the JSON envelope written by RespondError. Code is one of
// the opaque error codes in the error taxonomy (e.g. "ssrf_denied",
// "engine_unavailable", "rate_limited") — never a raw exception string.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Respond writes payload as JSON with the given status code.
func Respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// RespondError writes a JSON error envelope with the given status and code.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	Respond(w, status, errorResponse{Error: code, Message: message})
}
