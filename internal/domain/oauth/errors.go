package oauth

import "errors"

var (
	// ErrInvalidRequest indicates malformed or missing request parameters.
	ErrInvalidRequest = errors.New("oauth: invalid request")
	// ErrInvalidGrant indicates a bad, expired, consumed, or mismatched code.
	ErrInvalidGrant = errors.New("oauth: invalid grant")
	// ErrUnsupportedResponseType indicates a response_type other than "code".
	ErrUnsupportedResponseType = errors.New("oauth: unsupported response type")
	// ErrUnsupportedGrantType indicates a grant_type other than authorization_code.
	ErrUnsupportedGrantType = errors.New("oauth: unsupported grant type")
	// ErrAccessDenied indicates an upstream rejection or CSRF mismatch.
	ErrAccessDenied = errors.New("oauth: access denied")
	// ErrUpstream indicates the upstream IdP was unreachable or returned an error.
	ErrUpstream = errors.New("oauth: upstream error")
	// ErrClientNotFound signals an unregistered client_id.
	ErrClientNotFound = errors.New("oauth: client not found")
	// ErrTokenInvalid indicates malformed or unverifiable access tokens.
	ErrTokenInvalid = errors.New("oauth: token invalid")
)
