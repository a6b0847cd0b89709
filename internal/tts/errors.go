package tts

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by synthesis and rewrite collaborators
var (
	// ErrEmptyResponse indicates the synthesis call succeeded but carried no audio
	ErrEmptyResponse = errors.New("synthesis response contained no audio data")

	// ErrEmptyResult indicates the rewrite call returned no text
	ErrEmptyResult = errors.New("rewrite returned empty text")

	// ErrNoEngineConfigured indicates no engine has been selected
	ErrNoEngineConfigured = errors.New("no synthesis engine configured - specify --engine gemini or --engine mock")

	// ErrInvalidEngine indicates an unknown engine was specified
	ErrInvalidEngine = errors.New("invalid synthesis engine specified")

	// ErrMissingCredentials indicates the engine needs an API key that was not provided
	ErrMissingCredentials = errors.New("missing API credentials")

	// ErrMissingVoice indicates no voice was chosen
	ErrMissingVoice = errors.New("no voice selected")
)

// ErrorKind classifies a collaborator failure.
// The converter branches on the kind, never on message text.
type ErrorKind string

const (
	KindUnknown        ErrorKind = "UNKNOWN"
	KindContentBlocked ErrorKind = "CONTENT_BLOCKED"
	KindEmptyResponse  ErrorKind = "EMPTY_RESPONSE"
	KindTransport      ErrorKind = "TRANSPORT"
	KindEmptyResult    ErrorKind = "EMPTY_RESULT"
	KindCanceled       ErrorKind = "CANCELED"
)

// ContentBlockedError is returned when the synthesis service refuses the
// input text on moderation grounds.
type ContentBlockedError struct {
	Reason  string
	Details string
}

// Error implements the error interface
func (e *ContentBlockedError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("content blocked: %s: %s", e.Reason, e.Details)
	}
	return fmt.Sprintf("content blocked: %s", e.Reason)
}

// TransportError wraps network, quota and other service-side failures.
type TransportError struct {
	// Op names the call that failed, e.g. "synthesize" or "rewrite"
	Op string

	// StatusCode is the HTTP status when one was received, 0 otherwise
	StatusCode int

	Message string
	Cause   error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	msg := e.Op + ": transport error"
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError creates a transport error for the given operation
func NewTransportError(op string, status int, message string, cause error) *TransportError {
	return &TransportError{
		Op:         op,
		StatusCode: status,
		Message:    message,
		Cause:      cause,
	}
}

// KindOf classifies err by its type.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var blocked *ContentBlockedError
	var transport *TransportError

	switch {
	case errors.As(err, &blocked):
		return KindContentBlocked
	case errors.Is(err, ErrEmptyResponse):
		return KindEmptyResponse
	case errors.Is(err, ErrEmptyResult):
		return KindEmptyResult
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.As(err, &transport):
		return KindTransport
	default:
		return KindUnknown
	}
}

// IsContentBlocked reports whether err is a moderation rejection.
func IsContentBlocked(err error) bool {
	return KindOf(err) == KindContentBlocked
}
