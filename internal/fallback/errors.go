// internal/fallback/errors.go
package fallback

import (
	"fmt"
	"strings"
)

// ErrorCode categorizes failures inside the fallback chain.
type ErrorCode string

const (
	ErrCodePrimaryFailure            ErrorCode = "PRIMARY_FAILURE"
	ErrCodePayloadTooLarge           ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrCodeEndpointUnhealthy         ErrorCode = "ENDPOINT_UNHEALTHY"
	ErrCodeRetryBudgetExceeded       ErrorCode = "RETRY_BUDGET_EXCEEDED"
	ErrCodeDegradationLevelNotFound  ErrorCode = "DEGRADATION_LEVEL_NOT_FOUND"
	ErrCodeStrategyExhausted         ErrorCode = "STRATEGY_EXHAUSTED"
	ErrCodeNoData                    ErrorCode = "NO_DATA"
	ErrCodeInvalidConfig             ErrorCode = "INVALID_CONFIG"
)

// FallbackError carries an error code alongside the message so per-strategy
// failures can be categorized without string matching.
type FallbackError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *FallbackError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *FallbackError) Unwrap() error {
	return e.Cause
}

// Is matches two fallback errors by code, so sentinel-style checks with
// errors.Is work across wrapping.
func (e *FallbackError) Is(target error) bool {
	if fe, ok := target.(*FallbackError); ok {
		return e.Code == fe.Code
	}
	return false
}

// newError builds a FallbackError with a formatted message.
func newError(code ErrorCode, format string, args ...interface{}) *FallbackError {
	return &FallbackError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// wrapError attaches a code and message to an existing error.
func wrapError(cause error, code ErrorCode, format string, args ...interface{}) *FallbackError {
	return &FallbackError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the error code from err, or ErrCodeNoData when err carries
// no fallback code.
func CodeOf(err error) ErrorCode {
	if fe, ok := err.(*FallbackError); ok {
		return fe.Code
	}
	return ErrCodeNoData
}

// StrategyFailure records why one strategy in the chain produced nothing.
type StrategyFailure struct {
	Kind   StrategyKind `json:"strategy"`
	Code   ErrorCode    `json:"code"`
	Reason string       `json:"reason"`
}

// StrategyExhaustedError is the terminal error returned when the primary
// operation and every configured strategy produced nothing. It aggregates the
// per-strategy failure reasons.
type StrategyExhaustedError struct {
	SourceID string            `json:"source_id"`
	Primary  string            `json:"primary_failure"`
	Failures []StrategyFailure `json:"failures"`
}

// Error implements the error interface.
func (e *StrategyExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Kind, f.Reason))
	}
	return fmt.Sprintf("%s: all fallback strategies exhausted for source %q (primary: %s) [%s]",
		ErrCodeStrategyExhausted, e.SourceID, e.Primary, strings.Join(parts, "; "))
}

// Is reports a match against any FallbackError with the exhausted code.
func (e *StrategyExhaustedError) Is(target error) bool {
	if fe, ok := target.(*FallbackError); ok {
		return fe.Code == ErrCodeStrategyExhausted
	}
	return false
}
