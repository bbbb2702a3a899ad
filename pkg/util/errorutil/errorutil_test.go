package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestToDomainErrorKeepsDomainErrors(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewNotFound("ticket", map[string]any{"ticket_id": "t1"}))
	de := ToDomainError(err)
	if de.Code != "NOT_FOUND" || de.HTTPStatus != http.StatusNotFound {
		t.Fatalf("unexpected mapping: %+v", de)
	}
	if de.Details["ticket_id"] != "t1" {
		t.Errorf("details lost: %v", de.Details)
	}
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	cause := errors.New("connection refused")
	de := ToDomainError(cause)
	if de.Code != "INTERNAL_ERROR" || de.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected mapping: %+v", de)
	}
	if !errors.Is(de, cause) {
		t.Error("cause should stay reachable through Unwrap")
	}
	if ToDomainError(nil) != nil {
		t.Error("nil should map to nil")
	}
}

func TestIsCode(t *testing.T) {
	if !IsCode(NewValidationError("bad", nil), "VALIDATION_FAILED") {
		t.Error("expected validation code")
	}
	if IsCode(errors.New("plain"), "VALIDATION_FAILED") {
		t.Error("plain error must not match")
	}
}
