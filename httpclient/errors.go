// httpclient/errors.go
package httpclient

import (
	"errors"

	"github.com/deploymenttheory/go-api-session-client/response"
)

var (
	// ErrTerminalAuthFailure marks an authorization failure the client gave up on: the route was
	// rejected again after a refresh, or the refresh itself failed. The session should be treated
	// as logged out.
	ErrTerminalAuthFailure = errors.New("terminal authorization failure")

	// ErrTransientAuthFailure marks an authorization failure that could not be recovered because
	// the caller's context ended while the token was being refreshed.
	ErrTransientAuthFailure = errors.New("transient authorization failure")

	// ErrTransportFailure wraps network level errors. They never trigger a token refresh.
	ErrTransportFailure = errors.New("transport failure")
)

// ErrorKind classifies an error returned by the client.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTransientAuth
	KindTerminalAuth
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransientAuth:
		return "transient_auth"
	case KindTerminalAuth:
		return "terminal_auth"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Classify maps an error returned by Request or DoRequest onto the client's error taxonomy.
// Non-authorization error statuses, returned as *response.APIError, classify as KindTransport.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, ErrTerminalAuthFailure):
		return KindTerminalAuth
	case errors.Is(err, ErrTransientAuthFailure):
		return KindTransientAuth
	case errors.Is(err, ErrTransportFailure):
		return KindTransport
	}
	return KindTransport
}

// StatusCode returns the HTTP status carried by err, or 0 when err has no response attached.
func StatusCode(err error) int {
	var apiErr *response.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
