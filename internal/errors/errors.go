// Package errors provides the error taxonomy shared by the decision pipeline,
// the lifecycle monitor and their external adapters.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrDataUnavailable      = errors.New("market data unavailable")
	ErrStaleData            = errors.New("market data too old")
	ErrInsufficientCandles  = errors.New("not enough candles")
	ErrNoActiveTrade        = errors.New("no active trade")
	ErrBridgeDisabled       = errors.New("bridge url not configured")
	ErrNotificationDisabled = errors.New("notifications disabled")
	ErrProviderDown         = errors.New("provider unavailable")
	ErrTimeout              = errors.New("operation timed out")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrDataNotFound         = errors.New("data not found")
	ErrDatabaseError        = errors.New("database error")
	ErrLockNotAcquired      = errors.New("day lock not acquired")
	ErrUnauthorized         = errors.New("unauthorized")
)

// DataUnavailableError means the market data provider raised or returned data
// older than the configured maximum age. The decision is forced to NO_GO.
type DataUnavailableError struct {
	Source  string
	Symbol  string
	Message string
	Err     error
}

func (e *DataUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data unavailable [%s] %s: %s: %v", e.Source, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data unavailable [%s] %s: %s", e.Source, e.Symbol, e.Message)
}

func (e *DataUnavailableError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrDataUnavailable
}

// NewDataUnavailableError creates a new DataUnavailableError.
func NewDataUnavailableError(source, symbol, message string, err error) *DataUnavailableError {
	return &DataUnavailableError{
		Source:  source,
		Symbol:  symbol,
		Message: message,
		Err:     err,
	}
}

// ProviderDegradedError is returned by news/context providers. The decision
// proceeds with a health flag instead of failing.
type ProviderDegradedError struct {
	Provider string
	Fallback bool
	Err      error
}

func (e *ProviderDegradedError) Error() string {
	return fmt.Sprintf("provider degraded [%s] (fallback=%t): %v", e.Provider, e.Fallback, e.Err)
}

func (e *ProviderDegradedError) Unwrap() error {
	return e.Err
}

// NewProviderDegradedError creates a new ProviderDegradedError.
func NewProviderDegradedError(provider string, fallback bool, err error) *ProviderDegradedError {
	return &ProviderDegradedError{
		Provider: provider,
		Fallback: fallback,
		Err:      err,
	}
}

// NotificationError represents a failed message dispatch.
type NotificationError struct {
	Channel string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification error [%s]: %v", e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// NewNotificationError creates a new NotificationError.
func NewNotificationError(channel string, err error) *NotificationError {
	return &NotificationError{
		Channel: channel,
		Err:     err,
	}
}

// BridgeError represents a failed stop-modify or partial-close request.
type BridgeError struct {
	Action  string
	Symbol  string
	Code    string
	Message string
	Err     error
}

func (e *BridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bridge error [%s] %s: %s: %v", e.Action, e.Symbol, e.Message, e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("bridge error [%s] %s: %s (retcode=%s)", e.Action, e.Symbol, e.Message, e.Code)
	}
	return fmt.Sprintf("bridge error [%s] %s: %s", e.Action, e.Symbol, e.Message)
}

func (e *BridgeError) Unwrap() error {
	return e.Err
}

// NewBridgeError creates a new BridgeError.
func NewBridgeError(action, symbol, code, message string, err error) *BridgeError {
	return &BridgeError{
		Action:  action,
		Symbol:  symbol,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// MalformedResponseError is returned when an external payload cannot be
// decoded. Callers fall back to raw or default text.
type MalformedResponseError struct {
	Source string
	Body   string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	body := e.Body
	if len(body) > 120 {
		body = body[:120] + "..."
	}
	return fmt.Sprintf("malformed response from %s: %v (body=%q)", e.Source, e.Err, body)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// NewMalformedResponseError creates a new MalformedResponseError.
func NewMalformedResponseError(source, body string, err error) *MalformedResponseError {
	return &MalformedResponseError{
		Source: source,
		Body:   body,
		Err:    err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsDataUnavailable reports whether err belongs to the DataUnavailable kind.
func IsDataUnavailable(err error) bool {
	var target *DataUnavailableError
	return errors.As(err, &target) || errors.Is(err, ErrDataUnavailable) || errors.Is(err, ErrStaleData)
}

// IsProviderDegraded reports whether err belongs to the ProviderDegraded kind.
func IsProviderDegraded(err error) bool {
	var target *ProviderDegradedError
	return errors.As(err, &target)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
