package httphandler

import (
	"encoding/json"
	"net/http"
)

// apiError is the error payload callers match on. Param is always null for
// errors produced by the relay itself.
type apiError struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Code    string  `json:"code"`
	Param   *string `json:"param"`
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error apiError `json:"error"`
}

// writeJSON marshals v to JSON and writes it with the given status code.
// If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"internal server error","type":"api_error","code":"internal_error","param":null}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeUnauthenticated writes the fixed 401 body.
func writeUnauthenticated(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: apiError{
		Message: "Invalid authentication credentials",
		Type:    "invalid_request_error",
		Code:    "invalid_api_key",
	}})
}

// writeRateLimited writes the fixed 429 body. Callers set the Retry-After
// header first when a concrete cooldown remainder is known.
func writeRateLimited(w http.ResponseWriter) {
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: apiError{
		Message: "Rate limit reached for requests. All API keys have been used too recently.",
		Type:    "requests",
		Code:    "rate_limit_exceeded",
	}})
}

// writeError writes a generic error envelope for conditions outside the
// fixed auth and rate-limit bodies.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: apiError{
		Message: message,
		Type:    "api_error",
		Code:    code,
	}})
}
