package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrConsumerNotFound     = errors.New("consumer not found")
	ErrConsumerTypeNotFound = errors.New("consumer type not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrOccasionNotFound     = errors.New("occasion not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrNoActiveItem         = errors.New("no active item")
)

// TitleConflictError is returned when a product title is already in use.
// Titles are compared case- and accent-insensitively.
type TitleConflictError struct {
	Title string
}

func (e *TitleConflictError) Error() string {
	return fmt.Sprintf("title %q is already in use", e.Title)
}

// TransitionError is returned when a workflow transition is not legal from
// the current state. Hitting it is an integration bug in the caller, not a
// user-recoverable condition.
type TransitionError struct {
	Transition Transition
	Current    State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %q is not valid from state %q", e.Transition, e.Current)
}

// TransitionRejection is how a before observer vetoes a transition. Code is a
// localization key describing the reason. Action optionally offers the user a
// way out; OnAfterError runs after the rejection has been displayed.
type TransitionRejection struct {
	Code         string
	Action       *FeedbackAction
	OnAfterError func()
}

func (e *TransitionRejection) Error() string { return e.Code }

// Reject builds a plain rejection from a localization key.
func Reject(code string) *TransitionRejection {
	return &TransitionRejection{Code: code}
}
