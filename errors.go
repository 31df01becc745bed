package gateway

import (
	"fmt"
	"net/http"
)

// Error kinds form the gateway's closed error taxonomy. Every failure a
// request can hit maps to exactly one of these; the kind is what clients
// branch on and the description is the human-readable detail.
const (
	// ErrorKindValidation covers missing or malformed required parameters
	// and disallowed redirect targets.
	ErrorKindValidation = "invalid_request"

	// ErrorKindStateMalformed covers state tokens that are not structurally
	// valid.
	ErrorKindStateMalformed = "state_malformed"

	// ErrorKindStateTampered covers state tokens that failed the integrity
	// check (wrong key or modified ciphertext, indistinguishable).
	ErrorKindStateTampered = "state_tampered"

	// ErrorKindStateExpired covers state tokens past their embedded expiry.
	ErrorKindStateExpired = "state_expired"

	// ErrorKindUpstream covers failed provider calls (exchange,
	// installation check, refresh).
	ErrorKindUpstream = "upstream_error"

	// ErrorKindProxyTarget covers proxy targets that fail to parse as an
	// absolute URL.
	ErrorKindProxyTarget = "proxy_target_invalid"

	// ErrorKindProxyNetwork covers transport failures while forwarding.
	ErrorKindProxyNetwork = "proxy_network_error"
)

// Error is a structured gateway error carried to the HTTP layer. Descriptions
// are secret-free by construction: nothing below the HTTP layer ever puts the
// client secret or a raw credential into an error.
type Error struct {
	Kind        string // taxonomy kind (e.g., "invalid_request")
	Description string // human-readable detail
	Status      int    // HTTP status code
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

// NewError creates a new gateway error.
func NewError(kind, description string, status int) *Error {
	return &Error{
		Kind:        kind,
		Description: description,
		Status:      status,
	}
}

// Constructors for each kind of the taxonomy.
var (
	// ErrValidation indicates a missing or malformed required parameter,
	// or a disallowed redirect target.
	ErrValidation = func(desc string) *Error {
		return NewError(ErrorKindValidation, desc, http.StatusBadRequest)
	}

	// ErrStateMalformed indicates a structurally invalid state token.
	ErrStateMalformed = func(desc string) *Error {
		return NewError(ErrorKindStateMalformed, desc, http.StatusBadRequest)
	}

	// ErrStateTampered indicates a state token that failed its integrity check.
	ErrStateTampered = func(desc string) *Error {
		return NewError(ErrorKindStateTampered, desc, http.StatusBadRequest)
	}

	// ErrStateExpired indicates a state token past its embedded expiry.
	ErrStateExpired = func(desc string) *Error {
		return NewError(ErrorKindStateExpired, desc, http.StatusBadRequest)
	}

	// ErrUpstream indicates a failed provider call.
	ErrUpstream = func(desc string) *Error {
		return NewError(ErrorKindUpstream, desc, http.StatusBadGateway)
	}

	// ErrProxyTarget indicates an unusable proxy target URL.
	ErrProxyTarget = func(desc string) *Error {
		return NewError(ErrorKindProxyTarget, desc, http.StatusBadRequest)
	}

	// ErrProxyNetwork indicates a transport failure while forwarding.
	ErrProxyNetwork = func(desc string) *Error {
		return NewError(ErrorKindProxyNetwork, desc, http.StatusBadGateway)
	}
)
