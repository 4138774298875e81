package apperror

import "errors"

// Kind describes a stable error category that can be mapped to HTTP status codes.
type Kind string

const (
	KindValidation   Kind = "validation_error"
	KindNotFound     Kind = "not_found"
	KindBusinessRule Kind = "business_rule_violation"
	KindConflict     Kind = "conflict"
)

// Error is a typed error with a stable Kind and a human-readable message.
// Msg should be safe to return to clients for every kind declared above.
// Reason is an optional machine-readable code refining the Kind
// (e.g. "usage_limit_exceeded" for a business rule violation).
type Error struct {
	Kind   Kind
	Reason string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Reason != "" {
		return e.Reason
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func NotFound(msg string, err error) error   { return New(KindNotFound, msg, err) }
func Validation(msg string, err error) error { return New(KindValidation, msg, err) }
func Conflict(msg string, err error) error   { return New(KindConflict, msg, err) }

// BusinessRule reports a violated domain rule identified by reason.
func BusinessRule(reason, msg string) error {
	return &Error{Kind: KindBusinessRule, Reason: reason, Msg: msg}
}

// WithReason returns an error of the given kind carrying a reason code.
func WithReason(kind Kind, reason, msg string) error {
	return &Error{Kind: kind, Reason: reason, Msg: msg}
}

func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// ReasonOf returns the reason code of the first *Error in the chain, or "".
func ReasonOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Reason
}
