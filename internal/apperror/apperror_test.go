package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ErrorMessagePriority(t *testing.T) {
	base := errors.New("base")
	err := &Error{Kind: KindValidation, Msg: "msg", Err: base}
	if err.Error() != "msg" {
		t.Fatalf("expected msg, got %q", err.Error())
	}
}

func TestError_ErrorFallsBackToWrapped(t *testing.T) {
	base := errors.New("base")
	err := &Error{Kind: KindValidation, Err: base}
	if err.Error() != "base" {
		t.Fatalf("expected base, got %q", err.Error())
	}
}

func TestError_ErrorFallsBackToReasonThenKind(t *testing.T) {
	err := &Error{Kind: KindBusinessRule, Reason: "below_minimum"}
	if err.Error() != "below_minimum" {
		t.Fatalf("expected reason string, got %q", err.Error())
	}
	err = &Error{Kind: KindNotFound}
	if err.Error() != string(KindNotFound) {
		t.Fatalf("expected kind string, got %q", err.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	base := errors.New("base")
	err := &Error{Kind: KindValidation, Err: base}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to be reachable via errors.Is")
	}
}

func TestIs_MatchesWrappedKind(t *testing.T) {
	err := NotFound("x", nil)
	wrapped := fmt.Errorf("wrap: %w", err)
	if !Is(wrapped, KindNotFound) {
		t.Fatalf("expected Is to match wrapped kind")
	}
	if Is(wrapped, KindValidation) {
		t.Fatalf("expected Is to be false for different kind")
	}
}

func TestBusinessRule_CarriesReason(t *testing.T) {
	err := fmt.Errorf("wrap: %w", BusinessRule("usage_limit_exceeded", "Coupon usage limit exceeded"))
	if !Is(err, KindBusinessRule) {
		t.Fatalf("expected business rule kind")
	}
	if got := ReasonOf(err); got != "usage_limit_exceeded" {
		t.Fatalf("unexpected reason %q", got)
	}
	if ReasonOf(errors.New("plain")) != "" {
		t.Fatalf("expected empty reason for plain error")
	}
}
