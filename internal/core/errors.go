package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthorized marks a missing or rejected provider credential
	ErrUnauthorized = errors.New("provider credential missing or invalid")
	// ErrEmptyCompletion is returned when a provider answers with no text
	ErrEmptyCompletion = errors.New("provider returned empty completion")
)

// ValidationError reports malformed caller input
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Msg
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Msg)
}

// NotFoundError reports a referenced record that does not exist for the user
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// InvalidStateError reports a review action that is not allowed from the current state
type InvalidStateError struct {
	ID     string
	State  ReviewState
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s message %q in state %s", e.Action, e.ID, e.State)
}

// ProviderError reports a mail or completion provider failure after retries
type ProviderError struct {
	Provider string
	Attempts int
	Err      error
	// Fatal is set when the failure affects every call (bad credential, unreachable host)
	Fatal bool
}

func (e *ProviderError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// RateLimitError is returned before contacting a provider when the local quota is spent
type RateLimitError struct {
	UserID    string
	Operation string
	Limit     int
	Window    time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d calls per %s", e.Operation, e.Limit, e.Window)
}

// IsFatalProviderError reports whether err should abort a batch instead of moving on
func IsFatalProviderError(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Fatal
	}
	var rl *RateLimitError
	return errors.As(err, &rl)
}
