package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks across backends. The typed
// errors below match these so callers can branch without caring which
// backend produced them.
var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
	ErrInvalid  = errors.New("store: invalid input")
)

// NotFoundError reports which entity an operation failed to find.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("store: %s %q not found", e.Entity, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports a rename that would collide with an existing
// tag name.
type ConflictError struct {
	Entity string
	Name   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store: %s %q already exists", e.Entity, e.Name)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// ValidationError reports malformed or missing input. It is raised
// before any storage work happens and is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("store: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }
