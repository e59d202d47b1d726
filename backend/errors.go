package backend

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the backend package.
var (
	// ErrRejected indicates the backend answered but declined the request.
	ErrRejected = errors.New("backend: request rejected")

	// ErrTransport indicates the request could not complete.
	ErrTransport = errors.New("backend: transport failure")
)

// RejectionError describes a Rejected outcome as an error.
// It wraps ErrRejected so that errors.Is(err, ErrRejected) still works.
type RejectionError struct {
	Op     string
	Detail string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrRejected.Error(), e.Op, e.Detail)
}

func (e *RejectionError) Unwrap() error {
	return ErrRejected
}

// TransportError is returned when a request fails below the application
// protocol: the connection failed, the status was not 2xx, or the body was
// not understood.
type TransportError struct {
	// Op is the backend operation, "prepare" or "run".
	Op string
	// StatusCode is the HTTP status, or 0 when no response arrived.
	StatusCode int
	// Detail is the best human-readable description: the body's detail
	// field, else the serialized body, else the underlying error text.
	Detail string
	// Err is the underlying error, if any.
	Err error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: HTTP %d: %s", ErrTransport.Error(), e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", ErrTransport.Error(), e.Op, e.Detail)
}

// Is reports ErrTransport as well as the wrapped error.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Detail returns the text a caller should surface for err: the Detail of a
// TransportError or RejectionError, or err.Error() otherwise.
func Detail(err error) string {
	var transport *TransportError
	if errors.As(err, &transport) {
		return transport.Detail
	}
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection.Detail
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
