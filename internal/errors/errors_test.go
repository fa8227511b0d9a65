package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("title", "must be 2-50 characters")
	want := "validation failed on title: must be 2-50 characters"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestExternalError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewExternalError("openweathermap", 0, inner)

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}
	if err.Error() != "openweathermap error: connection refused" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestExternalError_WithStatus(t *testing.T) {
	err := NewExternalError("places", 404, errors.New("not found"))
	want := "places error (status=404): not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestSentinelWrapping(t *testing.T) {
	wrapped := fmt.Errorf("load group: %w", ErrNotFound)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("wrapped sentinel should match with errors.Is")
	}
	if errors.Is(wrapped, ErrGroupFull) {
		t.Error("wrapped sentinel should not match a different sentinel")
	}
}
