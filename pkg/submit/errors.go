package submit

import (
	"errors"
	"fmt"
)

// Category classifies errors surfaced by a session.
type Category string

const (
	CategoryValidation Category = "VALIDATION" // bad input or wrong state
	CategoryAuth       Category = "AUTH"       // wrong password
	CategoryEstimation Category = "ESTIMATION" // fee could not be estimated
	CategorySubmission Category = "SUBMISSION" // extrinsic failed or was not sent
)

// Error is a classified session error.
type Error struct {
	Category Category
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	if e.Op == "" {
		return fmt.Sprintf("[%s] %v", e.Category, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the category sentinels below, so callers can write
// errors.Is(err, submit.AuthError).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Op == "" && t.Category == e.Category
}

// Category sentinels.
var (
	ValidationError = &Error{Category: CategoryValidation}
	AuthError       = &Error{Category: CategoryAuth}
	EstimationError = &Error{Category: CategoryEstimation}
	SubmissionError = &Error{Category: CategorySubmission}
)

var (
	ErrStalePlan    = errors.New("submit: change set changed after estimation")
	ErrInvalidState = errors.New("submit: operation not allowed in current state")
)

func classify(c Category, op string, err error) error {
	return &Error{Category: c, Op: op, Err: err}
}

// CategoryOf returns the category of err, or "" when it is unclassified.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}
