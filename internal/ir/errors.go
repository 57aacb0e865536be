package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes receiver errors. Every code is a named,
// non-retriable failure surfaced to the caller.
type ErrorCode string

const (
	// ErrCodeInvalidPeer indicates the sender is not the trusted peer for its source chain.
	ErrCodeInvalidPeer ErrorCode = "INVALID_PEER"

	// ErrCodeInvalidPayload indicates an empty or structurally malformed body.
	ErrCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"

	// ErrCodeInvalidMessageType indicates a body that matches no known message type.
	ErrCodeInvalidMessageType ErrorCode = "INVALID_MESSAGE_TYPE"

	// ErrCodeInvalidLength indicates a body shorter than its format's fixed header.
	ErrCodeInvalidLength ErrorCode = "INVALID_LENGTH"

	// ErrCodeBodyTooShort indicates a declared length beyond the remaining bytes.
	ErrCodeBodyTooShort ErrorCode = "BODY_TOO_SHORT"

	// ErrCodeInvalidUTF8 indicates a text body that is not valid UTF-8.
	ErrCodeInvalidUTF8 ErrorCode = "INVALID_UTF8"

	// ErrCodeOverflow indicates checked arithmetic would have wrapped.
	ErrCodeOverflow ErrorCode = "OVERFLOW"

	// ErrCodeInvalidAccount indicates the supplied resource list disagrees
	// with the configuration record.
	ErrCodeInvalidAccount ErrorCode = "INVALID_ACCOUNT"

	// ErrCodeSlotConsumed indicates the sequence slot was already consumed.
	ErrCodeSlotConsumed ErrorCode = "SLOT_CONSUMED"

	// ErrCodeResourceMismatch indicates the environment rejected a resource
	// list that differs from the one its primitive requires.
	ErrCodeResourceMismatch ErrorCode = "RESOURCE_MISMATCH"

	// ErrCodePayloadHashMismatch indicates the message does not match the
	// payload hash verified for its slot.
	ErrCodePayloadHashMismatch ErrorCode = "PAYLOAD_HASH_MISMATCH"

	// ErrCodeSignerMismatch indicates signer seeds that do not derive the
	// signing account of an external call.
	ErrCodeSignerMismatch ErrorCode = "SIGNER_MISMATCH"

	// ErrCodeNotConfigured indicates the configuration record is missing.
	ErrCodeNotConfigured ErrorCode = "NOT_CONFIGURED"
)

// Sentinels for errors.Is comparisons. Matching is by code only.
var (
	ErrInvalidPeer         = &Error{Code: ErrCodeInvalidPeer}
	ErrInvalidPayload      = &Error{Code: ErrCodeInvalidPayload}
	ErrInvalidMessageType  = &Error{Code: ErrCodeInvalidMessageType}
	ErrInvalidLength       = &Error{Code: ErrCodeInvalidLength}
	ErrBodyTooShort        = &Error{Code: ErrCodeBodyTooShort}
	ErrInvalidUTF8         = &Error{Code: ErrCodeInvalidUTF8}
	ErrOverflow            = &Error{Code: ErrCodeOverflow}
	ErrInvalidAccount      = &Error{Code: ErrCodeInvalidAccount}
	ErrSlotConsumed        = &Error{Code: ErrCodeSlotConsumed}
	ErrResourceMismatch    = &Error{Code: ErrCodeResourceMismatch}
	ErrPayloadHashMismatch = &Error{Code: ErrCodePayloadHashMismatch}
	ErrSignerMismatch      = &Error{Code: ErrCodeSignerMismatch}
	ErrNotConfigured       = &Error{Code: ErrCodeNotConfigured}
)

// Error is a coded receiver error with optional diagnostic details.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context (field names, expected values).
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a coded error. kv is an optional list of detail
// key/value pairs; a trailing odd key is ignored.
func NewError(code ErrorCode, message string, kv ...string) *Error {
	e := &Error{Code: code, Message: message}
	if len(kv) >= 2 {
		e.Details = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Details[kv[i]] = kv[i+1]
		}
	}
	return e
}

// Errorf creates a coded error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code from err, unwrapping as needed.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsCode reports whether err carries the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
