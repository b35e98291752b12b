package service

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/DrJLabs/forgetful-auth/internal/domain/oauth"
	"github.com/DrJLabs/forgetful-auth/internal/repository"
)

// OAuthError standardizes OAuth compliant errors. Only the fixed taxonomy
// ever reaches a client; internal detail stays in logs.
type OAuthError struct {
	Code        string
	Description string
	Status      int
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newOAuthError(code, desc string, status int) *OAuthError {
	return &OAuthError{Code: code, Description: desc, Status: status}
}

// Error codes of the OAuth surface.
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidGrant            = "invalid_grant"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeAccessDenied            = "access_denied"
	CodeUpstreamError           = "upstream_error"
	CodeInvalidToken            = "invalid_token"
	CodeServerError             = "server_error"
)

// AsOAuthError maps any error to the wire taxonomy. Unknown errors collapse
// to server_error so stack detail never leaks.
func AsOAuthError(err error) *OAuthError {
	var oe *OAuthError
	if errors.As(err, &oe) {
		return oe
	}
	switch {
	case errors.Is(err, oauth.ErrInvalidRequest):
		return newOAuthError(CodeInvalidRequest, "Invalid request.", http.StatusBadRequest)
	case errors.Is(err, oauth.ErrInvalidGrant):
		return newOAuthError(CodeInvalidGrant, "Invalid grant.", http.StatusBadRequest)
	case errors.Is(err, oauth.ErrUnsupportedResponseType):
		return newOAuthError(CodeUnsupportedResponseType, "Unsupported response type.", http.StatusBadRequest)
	case errors.Is(err, oauth.ErrUnsupportedGrantType):
		return newOAuthError(CodeUnsupportedGrantType, "Unsupported grant type.", http.StatusBadRequest)
	case errors.Is(err, oauth.ErrAccessDenied):
		return newOAuthError(CodeAccessDenied, "Access denied.", http.StatusForbidden)
	case errors.Is(err, oauth.ErrUpstream):
		return newOAuthError(CodeUpstreamError, "Upstream identity provider error.", http.StatusBadGateway)
	case errors.Is(err, oauth.ErrTokenInvalid):
		return newOAuthError(CodeInvalidToken, "Invalid access token.", http.StatusUnauthorized)
	case errors.Is(err, repository.ErrClientNotFound):
		return newOAuthError(CodeInvalidRequest, "Unknown client.", http.StatusBadRequest)
	default:
		return newOAuthError(CodeServerError, "Internal server error.", http.StatusInternalServerError)
	}
}
