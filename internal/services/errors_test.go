package services_test

import (
	"errors"
	"strings"
	"testing"

	"pixguard/internal/catalog"
	"pixguard/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrProvider, "fetching", "serpapi", "request failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"fetching", "serpapi", "request failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := services.Wrap(nil, "scoring", "cosine", "", errors.New("io"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestDetailsRoundTrip(t *testing.T) {
	base := errors.New("smtp refused")
	err := services.Wrap(services.ErrDelivery, "delivery", "send", "dossier 7", base)
	details := services.Details(err)
	if !errors.Is(details.Marker, services.ErrDelivery) {
		t.Fatalf("unexpected marker: %v", details.Marker)
	}
	if details.Stage != "delivery" || details.Operation != "send" || details.Message != "dossier 7" {
		t.Fatalf("unexpected details: %+v", details)
	}
	if !errors.Is(details.Cause, base) {
		t.Fatalf("unexpected cause: %v", details.Cause)
	}

	if got := services.Details(errors.New("plain")); got.Marker != nil {
		t.Fatalf("expected zero details for plain error, got %+v", got)
	}
}

func TestFailureStatusMapping(t *testing.T) {
	inputErr := services.Wrap(services.ErrInput, "fingerprinting", "decode", "unreadable image", nil)
	if status := services.FailureStatus(inputErr); status != catalog.StatusReview {
		t.Fatalf("expected review for input error, got %s", status)
	}

	validationErr := services.Wrap(services.ErrValidation, "review", "confirm", "bad id", nil)
	if status := services.FailureStatus(validationErr); status != catalog.StatusReview {
		t.Fatalf("expected review for validation error, got %s", status)
	}

	providerErr := services.Wrap(services.ErrProvider, "fetching", "serpapi", "timeout", errors.New("deadline"))
	if status := services.FailureStatus(providerErr); status != catalog.StatusFailed {
		t.Fatalf("expected failed for provider error, got %s", status)
	}

	if status := services.FailureStatus(nil); status != catalog.StatusFailed {
		t.Fatalf("expected failed for nil error, got %s", status)
	}
}
