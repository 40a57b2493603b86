package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrDateConflict      = errors.New("dates not available")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyTerminal   = errors.New("booking already in a terminal status")
	ErrFeedFetch         = errors.New("calendar feed fetch failed")
	ErrFeedParse         = errors.New("calendar feed parse failed")
	ErrStorage           = errors.New("storage failure")
)

type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// DateConflictError names the first blocked range that collides with a
// requested stay.
type DateConflictError struct {
	PropertyID string
	Requested  DateRange
	Conflict   DateRange
	Source     BlockSource
}

func (e *DateConflictError) Error() string {
	return fmt.Sprintf("property %s: requested %s conflicts with %s blocked range %s",
		e.PropertyID, e.Requested, e.Source, e.Conflict)
}

func (e *DateConflictError) Is(target error) bool { return target == ErrDateConflict }

type TransitionError struct {
	BookingID string
	From      BookingStatus
	To        BookingStatus
}

func (e *TransitionError) Error() string {
	if e.From.Terminal() && e.To.Terminal() {
		return fmt.Sprintf("booking %s is already %s", e.BookingID, e.From)
	}
	return fmt.Sprintf("booking %s: cannot move from %s to %s", e.BookingID, e.From, e.To)
}

// Is matches ErrAlreadyTerminal when a terminal booking is asked to end
// again and ErrInvalidTransition otherwise.
func (e *TransitionError) Is(target error) bool {
	if e.From.Terminal() && e.To.Terminal() {
		return target == ErrAlreadyTerminal
	}
	return target == ErrInvalidTransition
}

type FeedStage string

const (
	FeedStageFetch FeedStage = "fetch"
	FeedStageParse FeedStage = "parse"
)

type FeedError struct {
	PropertyID string
	Stage      FeedStage
	Err        error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("property %s: feed %s: %v", e.PropertyID, e.Stage, e.Err)
}

func (e *FeedError) Unwrap() error { return e.Err }

func (e *FeedError) Is(target error) bool {
	switch e.Stage {
	case FeedStageFetch:
		return target == ErrFeedFetch
	case FeedStageParse:
		return target == ErrFeedParse
	}
	return false
}

// StorageError wraps a failed database call. Callers get a generic failure
// and decide for themselves whether to retry with fresh validation.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }
