// Package ferr defines the error taxonomy shared across flapjack's request
// handlers, following the {"message","status"} and {"error","message"}
// Algolia-compatible wire envelopes.
package ferr

import "fmt"

// Error is a typed application error carrying the HTTP status it maps to.
type Error struct {
	Kind    string
	Message string
	Status  int
	// ServiceEnvelope selects the {"error","message"} body instead of the
	// default {"message","status"} body (used for 503 index-paused).
	ServiceEnvelope bool
	Code            string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// InvalidQuery is malformed input: missing required field, empty filters,
// filter parse error, etc.
func InvalidQuery(format string, args ...any) *Error {
	return &Error{Kind: "InvalidQuery", Message: fmt.Sprintf(format, args...), Status: 400}
}

// TenantNotFound reports an unknown tenant/index.
func TenantNotFound(name string) *Error {
	return &Error{Kind: "TenantNotFound", Message: fmt.Sprintf("index %q not found", name), Status: 404}
}

// IndexPaused reports a write rejected because the index is paused.
func IndexPaused(name string) *Error {
	return &Error{
		Kind:            "IndexPaused",
		Message:         fmt.Sprintf("index %q is paused for writes", name),
		Status:          503,
		ServiceEnvelope: true,
		Code:            "index_paused",
	}
}

// BatchTooLarge reports a batch request exceeding the configured limit.
func BatchTooLarge(size, max int) *Error {
	return &Error{
		Kind:    "BatchTooLarge",
		Message: fmt.Sprintf("batch size %d exceeds maximum of %d", size, max),
		Status:  400,
	}
}

// MissingField reports an ingest-time validation failure.
func MissingField(field string) *Error {
	return &Error{Kind: "MissingField", Message: fmt.Sprintf("missing required field %q", field), Status: 400}
}

// InvalidDocument reports a malformed document body.
func InvalidDocument(format string, args ...any) *Error {
	return &Error{Kind: "InvalidDocument", Message: fmt.Sprintf(format, args...), Status: 400}
}

// AuthorizationDenied is the Algolia-compatible 403. Only two wire messages
// exist so a caller can never tell which half of the credential was wrong.
func AuthorizationDenied(message string) *Error {
	return &Error{Kind: "AuthorizationDenied", Message: message, Status: 403}
}

var (
	// ErrInvalidCredential is returned when the application-id/API key pair
	// cannot be resolved to a key at all.
	ErrInvalidCredential = "Invalid Application-ID or API key"
	// ErrMethodNotAllowed is returned when the resolved key lacks the ACL
	// required by the route.
	ErrMethodNotAllowed = "Method not allowed with this API key"
)

// EmbedderError wraps an embedder provider failure.
func EmbedderError(format string, args ...any) *Error {
	return &Error{Kind: "EmbedderError", Message: fmt.Sprintf(format, args...), Status: 500}
}
