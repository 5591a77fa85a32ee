package ingest

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an ingestion failure.
type Kind int

const (
	// KindValidation is a bad upload or CSRF failure the user can correct.
	KindValidation Kind = iota + 1
	// KindServiceUnavailable is a classifier transport failure.
	KindServiceUnavailable
	// KindServiceError is a classifier answer other than a usable 200.
	KindServiceError
	// KindExtractionIncomplete means amount or due date were not extracted.
	KindExtractionIncomplete
	// KindDatabase is any failure inside the persistence transaction.
	KindDatabase
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindServiceError:
		return "service_error"
	case KindExtractionIncomplete:
		return "extraction_incomplete"
	case KindDatabase:
		return "database"
	default:
		return "unknown"
	}
}

// Error is an ingestion failure. Message is safe to show to the user; Err
// carries the internal cause for logs.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	Missing    []string
	Invalid    []string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ingest: %s: %s", e.Op, e.Kind)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " (missing %s)", strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		fmt.Fprintf(&b, " (invalid %s)", strings.Join(e.Invalid, ", "))
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail is the free-text detail logged with the failure.
func (e *Error) Detail() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// KindOf returns the kind of an ingestion error, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// HTTPStatus maps an error onto the upload endpoint's status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindExtractionIncomplete:
		return http.StatusUnprocessableEntity
	default:
		if err == nil {
			return http.StatusOK
		}
		return http.StatusInternalServerError
	}
}

// UserMessage returns the message shown to the user for err.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Ocorreu um erro inesperado."
}
