package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPollNotFound           = errors.New("poll not found")
	ErrUnknownOption          = errors.New("option does not belong to poll")
	ErrPollNotOpen            = errors.New("poll is not open for voting")
	ErrDuplicateVote          = errors.New("voter already cast a ballot for this poll")
	ErrInvalidTransition      = errors.New("illegal poll status transition")
	ErrForbidden              = errors.New("requester is not allowed to perform this action")
	ErrBallotNotFound         = errors.New("ballot not found")
	ErrConflict               = errors.New("poll record conflict")
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	ErrIdempotencyConflict    = errors.New("idempotency key conflict")
)

type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports every violated field of a request at once, so the
// presentation layer can render a precise message per input.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Reason))
	}
	return "invalid poll input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Add(field string, reason string) {
	e.Violations = append(e.Violations, FieldViolation{Field: field, Reason: reason})
}

func (e *ValidationError) HasViolations() bool {
	return len(e.Violations) > 0
}
