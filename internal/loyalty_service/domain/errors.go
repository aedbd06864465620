package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("resource not found")
	// ErrInsufficientBalance is returned when a debit would take a balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidStatusTransition is returned when a request is not in a state that allows the action.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	// ErrReferralCycle is returned when assigning a referrer would create a cycle.
	ErrReferralCycle = errors.New("referral assignment would create a cycle")
	// ErrSignatureInvalid is returned when a gateway webhook fails verification.
	ErrSignatureInvalid = errors.New("webhook signature verification failed")
	// ErrAlreadySettled is returned by the settlement store when the key was claimed before.
	ErrAlreadySettled = errors.New("settlement already recorded")
)

// ValidationError reports bad or missing input, keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// Add records another field problem and returns the receiver.
func (e *ValidationError) Add(field, reason string) *ValidationError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = reason
	return e
}

// OrNil returns nil when no field problems were recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ThresholdNotMetError is returned when a withdrawal is requested below the redemption minimum.
type ThresholdNotMetError struct {
	ThresholdPaise int64
	BalancePaise   int64
}

// ShortfallPaise is how much more balance is needed before a request is allowed.
func (e *ThresholdNotMetError) ShortfallPaise() int64 {
	if d := e.ThresholdPaise - e.BalancePaise; d > 0 {
		return d
	}
	return 0
}

func (e *ThresholdNotMetError) Error() string {
	return fmt.Sprintf("minimum redemption threshold not met: need %d more paise", e.ShortfallPaise())
}

// PermissionError is returned when the caller's role or ownership does not allow the action.
type PermissionError struct {
	Action string
}

func (e *PermissionError) Error() string {
	return "permission denied: " + e.Action
}

// ExternalServiceError wraps failures of the payment gateway.
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
