package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for lookups and gated operations.
var (
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrSessionNotFound   = errors.New("session not found")
	ErrShareNotPermitted = errors.New("counsellor share is not enabled for this session")
	ErrEmptyMessage      = errors.New("message text is required")
)

// IncompleteResponseError reports a response set that does not answer exactly
// the instrument's questions.
type IncompleteResponseError struct {
	InstrumentID string
	Missing      []int
	Unexpected   []int
}

func (e *IncompleteResponseError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing answers for questions %v", e.Missing))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, fmt.Sprintf("answers for unknown questions %v", e.Unexpected))
	}
	return fmt.Sprintf("incomplete responses for instrument %s: %s", e.InstrumentID, strings.Join(parts, "; "))
}

// InvalidResponseValueError reports a response value outside the 0-3 scale.
type InvalidResponseValueError struct {
	Index int
	Value int
}

func (e *InvalidResponseValueError) Error() string {
	return fmt.Sprintf("invalid response value %d for question %d: must be between %d and %d",
		e.Value, e.Index, MinResponseValue, MaxResponseValue)
}

// ScoreOutOfRangeError reports a score outside [0, MaxScore].
type ScoreOutOfRangeError struct {
	InstrumentID string
	Score        int
	MaxScore     int
}

func (e *ScoreOutOfRangeError) Error() string {
	return fmt.Sprintf("score %d out of range [0, %d] for instrument %s", e.Score, e.MaxScore, e.InstrumentID)
}

// ExternalServiceError wraps a failure of the text-generation or persistence collaborator.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is one of the input-validation errors
// that should be returned to the caller for correction.
func IsValidationError(err error) bool {
	var incomplete *IncompleteResponseError
	var invalid *InvalidResponseValueError
	var outOfRange *ScoreOutOfRangeError
	return errors.As(err, &incomplete) || errors.As(err, &invalid) || errors.As(err, &outOfRange)
}
