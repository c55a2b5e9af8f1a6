// Package liberrors contains errors returned by the library.
package liberrors

import (
	"fmt"
)

// ErrOutOfRange is returned when a bit field read or write
// goes beyond the end of the underlying buffer.
type ErrOutOfRange struct {
	Requested int
	Remaining int
}

// Error implements the error interface.
func (e ErrOutOfRange) Error() string {
	return fmt.Sprintf("out of range: requested %d bits, %d remaining", e.Requested, e.Remaining)
}

// ErrMalformedAUHeader is returned when the AU-header section of a packet is invalid.
// The packet must be dropped entirely.
type ErrMalformedAUHeader struct {
	Err error
}

// Error implements the error interface.
func (e ErrMalformedAUHeader) Error() string {
	return fmt.Sprintf("malformed AU header: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e ErrMalformedAUHeader) Unwrap() error {
	return e.Err
}

// ErrPayloadTooLarge is returned when an access unit can't fit into a single RTP payload.
type ErrPayloadTooLarge struct {
	Size    int
	MaxSize int
}

// Error implements the error interface.
func (e ErrPayloadTooLarge) Error() string {
	return fmt.Sprintf("access unit size (%d) is too big, maximum is %d", e.Size, e.MaxSize)
}

// ErrIncompleteFmtp is returned when a required fmtp parameter is missing.
type ErrIncompleteFmtp struct {
	Key string
}

// Error implements the error interface.
func (e ErrIncompleteFmtp) Error() string {
	return fmt.Sprintf("fmtp parameter '%s' is missing", e.Key)
}

// ErrNoCompatibleFormat is returned when negotiation can't find a common format.
type ErrNoCompatibleFormat struct {
	Reason string
}

// Error implements the error interface.
func (e ErrNoCompatibleFormat) Error() string {
	if e.Reason == "" {
		return "no compatible format"
	}
	return "no compatible format: " + e.Reason
}

// ErrDecode wraps an error returned by an AAC decoder.
type ErrDecode struct {
	Err error
}

// Error implements the error interface.
func (e ErrDecode) Error() string {
	return fmt.Sprintf("unable to decode access unit: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e ErrDecode) Unwrap() error {
	return e.Err
}

// ErrEncode wraps an error returned by an AAC encoder.
type ErrEncode struct {
	Err error
}

// Error implements the error interface.
func (e ErrEncode) Error() string {
	return fmt.Sprintf("unable to encode frame: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e ErrEncode) Unwrap() error {
	return e.Err
}

// ErrSessionClosed is returned when using a session that has been closed.
type ErrSessionClosed struct{}

// Error implements the error interface.
func (e ErrSessionClosed) Error() string {
	return "session is closed"
}

// ErrSessionWrongDirection is returned when calling a receive method
// on a send session or vice versa.
type ErrSessionWrongDirection struct {
	Direction fmt.Stringer
}

// Error implements the error interface.
func (e ErrSessionWrongDirection) Error() string {
	return fmt.Sprintf("operation not allowed on a %v session", e.Direction)
}
