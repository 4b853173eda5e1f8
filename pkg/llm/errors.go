package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies model-call failures for retry decisions.
type ErrorType int8

const (
	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, timeout).
	ErrorTypeTransient
	// ErrorTypeEmptyResponse represents HTTP 200 but no content errors.
	ErrorTypeEmptyResponse
	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents malformed request errors.
	ErrorTypeBadPrompt
	// ErrorTypeUnknown is the default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Retryable reports whether calls failing with this type should be retried.
func (et ErrorType) Retryable() bool {
	switch et {
	case ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeEmptyResponse:
		return true
	case ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeUnknown:
		return false
	default:
		return false
	}
}

// Error is a classified model-call failure.
type Error struct {
	Type    ErrorType
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s error: %s", e.Type, e.Message)
}

// NewError creates a classified error.
func NewError(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Classify maps an arbitrary error onto an ErrorType. Already-classified
// errors pass through; everything else is matched on common API error text.
func Classify(err error) ErrorType {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Type
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate"), strings.Contains(msg, "quota"):
		return ErrorTypeRateLimit
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection"),
		strings.Contains(msg, "temporar"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"):
		return ErrorTypeTransient
	case strings.Contains(msg, "empty response"):
		return ErrorTypeEmptyResponse
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"), strings.Contains(msg, "api key"):
		return ErrorTypeAuth
	case strings.Contains(msg, "400"), strings.Contains(msg, "invalid request"):
		return ErrorTypeBadPrompt
	default:
		return ErrorTypeUnknown
	}
}
