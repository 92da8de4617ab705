package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Error Classes
// ============================================================================

var (
	// ErrInvalidCredentials is returned when the backend rejects a login attempt.
	ErrInvalidCredentials = errors.New("authsdk: invalid credentials")

	// ErrSessionExpired is returned when an authenticated call answers 401.
	ErrSessionExpired = errors.New("authsdk: session expired")

	// ErrOptionsFetch is returned when login options or the OAuth descriptor cannot be
	// loaded.
	ErrOptionsFetch = errors.New("authsdk: login options unavailable")

	// ErrUnexpectedStatus is returned for any other non-success response.
	ErrUnexpectedStatus = errors.New("authsdk: unexpected response status")

	// ErrTransport is matched by every *TransportError.
	ErrTransport = errors.New("authsdk: transport failure")
)

// ============================================================================
// APIError - non-success response from the backend
// ============================================================================

// APIError is a non-success response. It unwraps to one of the error class sentinels.
type APIError struct {
	// StatusCode is the HTTP status code of the response
	StatusCode int

	// Code is the platform error code (e.g., "security/Unauthorized")
	Code string

	// Message is the human readable message from the payload, empty if there was none
	Message string

	// Info is a documentation link from the payload, if any
	Info string

	class error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.class, e.StatusCode, msg)
}

// Unwrap returns the error class sentinel.
func (e *APIError) Unwrap() error { return e.class }

// ============================================================================
// TransportError - the request never produced a response
// ============================================================================

// TransportError wraps a network-level failure.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("authsdk: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying network error.
func (e *TransportError) Unwrap() error { return e.Err }

// Is reports true for ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ============================================================================
// Classification
// ============================================================================

// classifier maps a failed status code to an error class.
type classifier func(status int) error

func classifyLogin(status int) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return ErrInvalidCredentials
	}
	return ErrUnexpectedStatus
}

func classifySession(status int) error {
	if status == http.StatusUnauthorized {
		return ErrSessionExpired
	}
	return ErrUnexpectedStatus
}

func classifyOptions(int) error {
	return ErrOptionsFetch
}

// parseErrorResponse builds an *APIError from a failed response, pulling the message
// out of the platform error payload when the body has one.
func parseErrorResponse(resp *http.Response, body []byte, classify classifier) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		class:      classify(resp.StatusCode),
	}

	var payload ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Code = payload.Error
		apiErr.Message = payload.Message
		apiErr.Info = payload.Info
	}

	return apiErr
}

// ErrorMessage returns the payload message of err when err is an *APIError carrying
// one from the backend, and "" otherwise.
func ErrorMessage(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return ""
	}
	return apiErr.Message
}
