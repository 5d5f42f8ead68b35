package domain

import (
	"fmt"
	"testing"
)

func TestCodeUnwrapsSentinels(t *testing.T) {
	wrapped := fmt.Errorf("join contest c-1: %w", ErrContestFull)
	if got := Code(wrapped); got != "CONTEST_FULL" {
		t.Fatalf("expected CONTEST_FULL, got %s", got)
	}
	if got := Code(fmt.Errorf("boom")); got != "INTERNAL" {
		t.Fatalf("expected INTERNAL, got %s", got)
	}
	if Code(nil) != "" {
		t.Fatalf("expected empty code for nil error")
	}
}

func TestIsValidation(t *testing.T) {
	if !IsValidation(fmt.Errorf("%w: entry fee", ErrInvalidContestSpec)) {
		t.Fatalf("expected spec error to be a validation error")
	}
	if !IsValidation(ErrInvalidCode) || Code(ErrInvalidCode) != "INVALID_CODE" {
		t.Fatalf("expected a blank join code to be a validation error with its own code")
	}
	if IsValidation(ErrAnswerWindowClosed) {
		t.Fatalf("state errors are not validation errors")
	}
}
