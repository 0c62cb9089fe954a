package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Domain errors represent registry-level failure conditions. They are
// matched with errors.Is through the richer error types below.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrMountUnsupported  = errors.New("registry did not mount blob")
	ErrDigestMismatch    = errors.New("digest mismatch")
	ErrInvalidDigest     = errors.New("invalid digest")
	ErrInvalidCoordinate = errors.New("invalid image coordinate")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// TransportError is returned for a non-2xx response or a failed round trip.
// Status and body are carried unmodified.
type TransportError struct {
	Op         string
	Method     string
	URL        string
	StatusCode int
	Body       string
	// Codes holds the registry error codes decoded from the body, if any.
	Codes []string
	Err   error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %s", e.Op, e.Method, e.URL)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if len(e.Codes) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Codes, ", "))
	}
	if e.Body != "" && len(e.Codes) == 0 {
		fmt.Fprintf(&b, ": %q", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is maps HTTP status codes onto the domain sentinels.
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// MalformedResponseError is returned when a response cannot be decoded or
// lacks a required field.
type MalformedResponseError struct {
	What string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	if e.Err == nil {
		return "malformed " + e.What
	}
	return fmt.Sprintf("malformed %s: %v", e.What, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err designates a missing manifest, blob or repository.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
