package bridge

import (
	"errors"
	"fmt"

	"github.com/roach88/nbridge/internal/wire"
)

// BridgeError is returned (or delivered to a receiver) when a call cannot
// produce a native result.
type BridgeError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Domain is the domain of the affected call, if any.
	Domain string

	// CorrelationID identifies the affected call, if any.
	CorrelationID wire.CorrelationID

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes bridge errors.
type ErrorCode string

const (
	// ErrCodeAlreadyInitialized indicates InitializeClass ran twice without Reset.
	ErrCodeAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"

	// ErrCodeNativeUnavailable indicates no adapter exists for the platform
	// or its native handle could not be created.
	ErrCodeNativeUnavailable ErrorCode = "NATIVE_UNAVAILABLE"

	// ErrCodeInvalidPayload indicates a message failed validation before dispatch.
	ErrCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"

	// ErrCodeChannelBusy indicates a sync call found the channel held and
	// the busy policy forbids queuing.
	ErrCodeChannelBusy ErrorCode = "CHANNEL_BUSY"

	// ErrCodeTimeout indicates a sync call exceeded its timeout.
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeNativeError indicates the native side reported a failure.
	ErrCodeNativeError ErrorCode = "NATIVE_ERROR"

	// ErrCodeUnmatchedCallback indicates a callback arrived for an unknown
	// or already resolved correlation id. It is logged, never surfaced to
	// callers.
	ErrCodeUnmatchedCallback ErrorCode = "UNMATCHED_CALLBACK"
)

// Error implements the error interface.
func (e *BridgeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Domain != "" && e.CorrelationID != 0:
		msg = fmt.Sprintf("%s (domain=%s, id=%d)", msg, e.Domain, e.CorrelationID)
	case e.Domain != "":
		msg = fmt.Sprintf("%s (domain=%s)", msg, e.Domain)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first BridgeError in err's chain, or ""
// when there is none.
func CodeOf(err error) ErrorCode {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

func hasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsAlreadyInitialized reports whether err is an AlreadyInitialized error.
func IsAlreadyInitialized(err error) bool { return hasCode(err, ErrCodeAlreadyInitialized) }

// IsNativeUnavailable reports whether err is a NativeUnavailable error.
func IsNativeUnavailable(err error) bool { return hasCode(err, ErrCodeNativeUnavailable) }

// IsInvalidPayload reports whether err is an InvalidPayload error.
func IsInvalidPayload(err error) bool { return hasCode(err, ErrCodeInvalidPayload) }

// IsChannelBusy reports whether err is a ChannelBusy error.
func IsChannelBusy(err error) bool { return hasCode(err, ErrCodeChannelBusy) }

// IsTimeout reports whether err is a Timeout error.
func IsTimeout(err error) bool { return hasCode(err, ErrCodeTimeout) }

// IsNativeError reports whether err is a NativeError.
func IsNativeError(err error) bool { return hasCode(err, ErrCodeNativeError) }

// IsUnmatchedCallback reports whether err is an UnmatchedCallback error.
func IsUnmatchedCallback(err error) bool { return hasCode(err, ErrCodeUnmatchedCallback) }

// NewAlreadyInitializedError creates a BridgeError for a repeated InitializeClass.
func NewAlreadyInitializedError(className string) *BridgeError {
	return &BridgeError{
		Code:    ErrCodeAlreadyInitialized,
		Message: fmt.Sprintf("native class already initialized (requested %q)", className),
	}
}

// NewNativeUnavailableError creates a BridgeError for a missing adapter or handle.
func NewNativeUnavailableError(domain string, cause error) *BridgeError {
	return &BridgeError{
		Code:    ErrCodeNativeUnavailable,
		Message: "no native adapter available",
		Domain:  domain,
		Err:     cause,
	}
}

// NewInvalidPayloadError creates a BridgeError for a message that failed validation.
func NewInvalidPayloadError(domain string, cause error) *BridgeError {
	return &BridgeError{
		Code:    ErrCodeInvalidPayload,
		Message: "message rejected before dispatch",
		Domain:  domain,
		Err:     cause,
	}
}

// NewChannelBusyError creates a BridgeError for a held native channel.
func NewChannelBusyError(domain string) *BridgeError {
	return &BridgeError{
		Code:    ErrCodeChannelBusy,
		Message: "native channel is busy",
		Domain:  domain,
	}
}

// NewTimeoutError creates a BridgeError for a sync call that ran out of time.
func NewTimeoutError(domain string, id wire.CorrelationID, cause error) *BridgeError {
	return &BridgeError{
		Code:          ErrCodeTimeout,
		Message:       "native call timed out",
		Domain:        domain,
		CorrelationID: id,
		Err:           cause,
	}
}

// NewNativeError creates a BridgeError for a failure reported by native code.
func NewNativeError(domain string, id wire.CorrelationID, cause error) *BridgeError {
	return &BridgeError{
		Code:          ErrCodeNativeError,
		Message:       "native call failed",
		Domain:        domain,
		CorrelationID: id,
		Err:           cause,
	}
}

// NewUnmatchedCallbackError creates a BridgeError describing a dropped callback.
func NewUnmatchedCallbackError(domain string, id wire.CorrelationID) *BridgeError {
	return &BridgeError{
		Code:          ErrCodeUnmatchedCallback,
		Message:       "callback has no pending call",
		Domain:        domain,
		CorrelationID: id,
	}
}
