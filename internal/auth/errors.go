// Package auth holds the error taxonomy shared by the authorization subsystem: the
// outcome reasons reported by the orchestrator and the provider error classes it
// branches on.
package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Provider error classes. Every *ProviderError matches exactly one of them via errors.Is.
var (
	// ErrNoResponse means the identity provider could not be reached or did not answer in time.
	ErrNoResponse = errors.New("identity provider did not respond")
	// ErrRejected means the identity provider answered and refused the code or token.
	ErrRejected = errors.New("identity provider rejected credentials")
)

// ProviderError describes a failed call to the identity provider.
type ProviderError struct {
	// Op names the call, for example "exchange" or "identity".
	Op string
	// Kind is ErrNoResponse or ErrRejected.
	Kind error
	// StatusCode is the HTTP status, when a response was received.
	StatusCode int
	// Code is the OAuth error code from the response body, if any.
	Code string
	// Description is the OAuth error description, if any.
	Description string
	// Cause is the underlying transport or decoding error.
	Cause error
}

// Error returns a string representation of the provider error.
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		msg += ": " + e.Code
		if e.Description != "" {
			msg += ": " + e.Description
		}
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

// Unwrap exposes both the error class and the underlying cause.
func (e *ProviderError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// NoResponse builds a ProviderError for a call that produced no usable response.
func NoResponse(op string, cause error) *ProviderError {
	return &ProviderError{Op: op, Kind: ErrNoResponse, Cause: cause}
}

// Rejected builds a ProviderError for a call the provider refused.
func Rejected(op string, status int, code, description string) *ProviderError {
	return &ProviderError{Op: op, Kind: ErrRejected, StatusCode: status, Code: code, Description: description}
}

// AuthenticationError represents the reason an authorization attempt did not succeed.
type AuthenticationError struct {
	// Type is the type of authentication error.
	Type string `json:"type"`
	// Message is a human-readable message describing the error.
	Message string `json:"message"`
	// Code is the HTTP-style status associated with the error.
	Code int `json:"code"`
	// Cause is the underlying error that caused this authentication error.
	Cause error `json:"-"`
}

// Error returns a string representation of the authentication error.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AuthenticationError) Unwrap() error { return e.Cause }

// Is matches on Type so callers can compare against the base values below.
func (e *AuthenticationError) Is(target error) bool {
	t, ok := target.(*AuthenticationError)
	return ok && t.Type == e.Type
}

// Common authentication error types.
var (
	// ErrSetupFailed means the callback listener could not be bound.
	ErrSetupFailed = &AuthenticationError{
		Type:    "setup_failed",
		Message: "authentication setup failed",
		Code:    http.StatusInternalServerError,
	}

	// ErrPortTimeout means the callback port was never published.
	ErrPortTimeout = &AuthenticationError{
		Type:    "port_timeout",
		Message: "authentication setup failed: callback port was never published",
		Code:    http.StatusGatewayTimeout,
	}

	// ErrInvalidState represents an error for invalid OAuth state parameter.
	ErrInvalidState = &AuthenticationError{
		Type:    "invalid_state",
		Message: "OAuth state parameter is invalid",
		Code:    http.StatusBadRequest,
	}

	// ErrCodeMissing means neither the callback nor the manual prompt produced a code.
	ErrCodeMissing = &AuthenticationError{
		Type:    "code_missing",
		Message: "no authorization code was provided",
		Code:    http.StatusBadRequest,
	}

	// ErrCodeExchangeFailed represents an error when exchanging the authorization code for a token fails.
	ErrCodeExchangeFailed = &AuthenticationError{
		Type:    "code_exchange_failed",
		Message: "failed to exchange authorization code for a token",
		Code:    http.StatusBadGateway,
	}

	// ErrIdentityUnresolved means a token was obtained but the account it belongs to could not be looked up.
	ErrIdentityUnresolved = &AuthenticationError{
		Type:    "identity_unresolved",
		Message: "token obtained but the account identity could not be resolved",
		Code:    http.StatusBadGateway,
	}

	// ErrCancelled means the user interrupted the attempt.
	ErrCancelled = &AuthenticationError{
		Type:    "cancelled",
		Message: "authorization cancelled by user",
		Code:    499,
	}
)

// NewAuthenticationError creates a new authentication error with a cause based on a base error.
func NewAuthenticationError(baseErr *AuthenticationError, cause error) *AuthenticationError {
	return &AuthenticationError{
		Type:    baseErr.Type,
		Message: baseErr.Message,
		Code:    baseErr.Code,
		Cause:   cause,
	}
}

// IsAuthenticationError checks if an error is an authentication error.
func IsAuthenticationError(err error) bool {
	_, ok := errors.AsType[*AuthenticationError](err)
	return ok
}

// IsProviderError checks if an error came from the identity provider client.
func IsProviderError(err error) bool {
	_, ok := errors.AsType[*ProviderError](err)
	return ok
}

// GetUserFriendlyMessage returns a user-friendly error message based on the error type.
func GetUserFriendlyMessage(err error) string {
	if authErr, ok := errors.AsType[*AuthenticationError](err); ok {
		switch authErr.Type {
		case ErrSetupFailed.Type, ErrPortTimeout.Type:
			return "Authentication setup failed: the local callback server could not start. Check that the callback port is free and try again."
		case ErrInvalidState.Type:
			return "The authorization response did not match this login attempt. Please try again."
		case ErrCodeMissing.Type:
			return "No authorization code was received. Please try again."
		case ErrCodeExchangeFailed.Type:
			if errors.Is(err, ErrNoResponse) {
				return "GitHub could not be reached to complete the login. Check your network and try again."
			}
			return "GitHub rejected the authorization code. Please try again."
		case ErrIdentityUnresolved.Type:
			return "Logged in, but your GitHub account could not be looked up. Run the login again once GitHub is reachable."
		case ErrCancelled.Type:
			return "Login cancelled."
		default:
			return "Authentication failed. Please try again."
		}
	}
	if provErr, ok := errors.AsType[*ProviderError](err); ok {
		switch {
		case provErr.Code == "access_denied":
			return "Authentication was cancelled or denied."
		case errors.Is(provErr, ErrNoResponse):
			return "GitHub could not be reached. Please try again later."
		default:
			return fmt.Sprintf("GitHub rejected the request: %s", provErr.Error())
		}
	}
	return "An unexpected error occurred. Please try again."
}
