package httpserver

import (
	"encoding/json"
	"net/http"
)

// Respond writes data as a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; nothing left to do but note it happened.
		_ = err
	}
}

// ErrorResponse is the Algolia-compatible 4xx error body.
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// RespondError writes the Algolia-compatible {"message","status"} error body.
// The code argument is accepted for call-site symmetry with RespondServiceError
// but is not rendered; only status and message appear on the wire.
func RespondError(w http.ResponseWriter, status int, code string, message string) {
	_ = code
	Respond(w, status, ErrorResponse{Message: message, Status: status})
}

// ServiceErrorResponse is the {"error","message"} body used for 503 index-paused
// and other explicit backpressure responses.
type ServiceErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RespondServiceError writes the {"error","message"} envelope.
func RespondServiceError(w http.ResponseWriter, status int, errCode string, message string) {
	Respond(w, status, ServiceErrorResponse{Error: errCode, Message: message})
}
