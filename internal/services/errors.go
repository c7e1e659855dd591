package services

import (
	"errors"
	"fmt"
	"strings"

	"pixguard/internal/catalog"
)

// Error markers classify failures across pipeline stages and integrations.
// Wrap attaches one of these to an underlying error so callers can branch
// with errors.Is without inspecting strings.
var (
	// ErrInput marks submissions rejected before any work happened:
	// unreadable bytes, unsupported formats, assets that produced no
	// usable fingerprint.
	ErrInput = errors.New("input rejected")
	// ErrProvider marks failures talking to a candidate source or model
	// backend. Usually retryable.
	ErrProvider = errors.New("provider failure")
	// ErrConflict marks a persistence collision with an existing row.
	// Callers treat it as an idempotent success.
	ErrConflict = errors.New("persistence conflict")
	// ErrPersistence marks storage failures other than conflicts.
	ErrPersistence = errors.New("persistence failure")
	// ErrState marks a lifecycle transition rejected because the row is
	// no longer in the expected state.
	ErrState = errors.New("state transition rejected")
	// ErrDelivery marks dossier or notification delivery failures.
	ErrDelivery = errors.New("delivery failure")

	// ErrValidation marks malformed requests and arguments.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing or contradictory configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks lookups that matched nothing.
	ErrNotFound = errors.New("not found")
	// ErrTimeout marks operations that exceeded their deadline.
	ErrTimeout = errors.New("timeout")
	// ErrTransient marks failures expected to succeed on retry.
	ErrTransient = errors.New("transient failure")
)

// Wrap annotates err with a classification marker plus stage, operation,
// and message context. A nil marker falls back to ErrTransient. A nil err
// produces an error carrying only the marker and detail.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &serviceError{
		marker:    marker,
		stage:     stage,
		operation: operation,
		message:   message,
		cause:     err,
	}
}

// ErrorDetails is the structured view of an error produced by Wrap.
type ErrorDetails struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Cause     error
}

// Details extracts structured context from a wrapped error. It returns the
// zero value when err was not produced by Wrap.
func Details(err error) ErrorDetails {
	var svc *serviceError
	if !errors.As(err, &svc) {
		return ErrorDetails{}
	}
	return ErrorDetails{
		Marker:    svc.marker,
		Stage:     svc.stage,
		Operation: svc.operation,
		Message:   svc.message,
		Cause:     svc.cause,
	}
}

// FailureStatus maps an error to the run status recorded when a stage
// fails. Input, validation, configuration, and not-found failures need an
// operator decision and park the run in review; everything else is
// retryable and lands in failed.
func FailureStatus(err error) catalog.Status {
	switch {
	case errors.Is(err, ErrInput),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotFound):
		return catalog.StatusReview
	default:
		return catalog.StatusFailed
	}
}

type serviceError struct {
	marker    error
	stage     string
	operation string
	message   string
	cause     error
}

func (e *serviceError) Error() string {
	detail := buildDetail(e.stage, e.operation, e.message)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.marker.Error(), detail, e.cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.marker.Error(), detail)
}

func (e *serviceError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.marker, e.cause}
	}
	return []error{e.marker}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage != "" {
		parts = append(parts, stage)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
