package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the core packages, the store and the API.
// All of them are recoverable at the call site.
var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrUnauthorizedTransition = errors.New("unauthorized transition")
	ErrConflict               = errors.New("concurrent allocation conflict")
	ErrNotFound               = errors.New("not found")
	ErrNotPending             = errors.New("request is not pending")
)

// ValidationError describes malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// TransitionError is returned when an item status change is not a legal edge.
type TransitionError struct {
	From ItemStatus
	To   ItemStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// AuthorizationError is returned when the actor may not initiate an edge.
type AuthorizationError struct {
	From    ItemStatus
	To      ItemStatus
	ActorID int64
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %d may not move item %s -> %s", e.ActorID, e.From, e.To)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrUnauthorizedTransition }

// ConflictError reports a lost optimistic write.
type ConflictError struct {
	Entity string
	ID     int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent allocation conflict on %s %d", e.Entity, e.ID)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
