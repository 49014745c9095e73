package api

import (
	"errors"
	"fmt"
	"time"
)

// Stable machine codes carried by [Error]. Backend-originated codes pass
// through verbatim; the client synthesizes the transport-level ones.
const (
	CodeTimeout             = "TIMEOUT_ERROR"
	CodeNetwork             = "NETWORK_ERROR"
	CodeSessionRevoked      = "SESSION_REVOKED"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeNonJSON             = "NON_JSON_RESPONSE"
	CodeRequestFailed       = "REQUEST_FAILED"
)

// Error is the single failure type returned by [Client]. Status is the HTTP
// status code, 0 for transport failures. Details carries the raw payload for
// errors whose body does not follow the standard envelope, notably
// INSUFFICIENT_CREDITS responses which include plan and usage information.
type Error struct {
	Message   string
	Code      string
	Status    int
	Timestamp time.Time
	Details   map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %s (code=%s, status=%d)", e.Message, e.Code, e.Status)
}

// IsCode reports whether err is an *[Error] with the given code.
func IsCode(err error, code string) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// AsError unwraps err into an *[Error] when possible.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
