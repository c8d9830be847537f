package pipeline

import "fmt"

// ValidationError marks malformed input, such as an unusable URL. Fatal: the
// retry budget is never spent on it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError is returned when a run is rejected because another run
// already holds the business's single-flight lock. Callers may retry later.
type ConflictError struct {
	BusinessID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("pipeline already running for business %s", e.BusinessID)
}

// PublisherRejectionError wraps a publisher-side rejection, usually a schema
// or property mismatch that needs human correction. The assembled entity is
// preserved in manual storage; the error is reported, never retried.
type PublisherRejectionError struct {
	BusinessID string
	Reason     string
}

func (e *PublisherRejectionError) Error() string {
	return fmt.Sprintf("publisher rejected entity for business %s: %s", e.BusinessID, e.Reason)
}
