package service

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrLoginLocked        = errors.New("too many failed login attempts")
	ErrTransitionRejected = errors.New("transition rejected")
	ErrStorageDisabled    = errors.New("document storage is not configured")
	ErrAlreadySigned      = errors.New("already signed")
)

// TransitionRejectedError carries the reasons a status change was refused.
// It matches ErrTransitionRejected with errors.Is.
type TransitionRejectedError struct {
	From    string
	To      string
	Reasons []string
}

func (e *TransitionRejectedError) Error() string {
	return fmt.Sprintf("transition %s -> %s rejected: %s", e.From, e.To, strings.Join(e.Reasons, "; "))
}

func (e *TransitionRejectedError) Is(target error) bool {
	return target == ErrTransitionRejected
}

// LoginLockedError reports how long the account stays locked
type LoginLockedError struct {
	RetryAfter time.Duration
}

func (e *LoginLockedError) Error() string {
	return fmt.Sprintf("%s, retry in %d seconds", ErrLoginLocked.Error(), int(e.RetryAfter.Seconds()+0.5))
}

func (e *LoginLockedError) Is(target error) bool {
	return target == ErrLoginLocked
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
