// Package httpx holds the JSON transport conventions: RFC7807 problem
// bodies for failures and a bounded request decoder.
package httpx

import (
	"encoding/json"
	"net/http"
)

// maxBodyBytes caps request bodies; the largest legitimate payload is a
// receipt submission of a few hundred lines.
const maxBodyBytes = 1 << 20

// ProblemDetail is the RFC7807 error body every failing endpoint returns.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes data with the given status. Encoding failures are
// swallowed; by then the status line is already on the wire.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem writes an RFC7807 response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON reads the request body into target, rejecting bodies over
// the size cap.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	return dec.Decode(target)
}
