// Package store defines the TTL-bounded state stores backing the
// authorization flow: pending authorization requests and single-use codes.
package store

import (
	"context"

	"github.com/DrJLabs/forgetful-auth/internal/domain/oauth"
)

// PendingRequestStore maps session IDs to in-flight authorization requests.
// Only the authorize endpoint inserts; the callback handler reads and deletes.
type PendingRequestStore interface {
	// SaveRequest stores the request until its ExpiresAt.
	SaveRequest(ctx context.Context, req oauth.AuthorizationRequest) error
	// GetRequest returns the request, or nil when absent or expired.
	GetRequest(ctx context.Context, sessionID string) (*oauth.AuthorizationRequest, error)
	// DeleteRequest removes the request. Deleting an absent key is not an error.
	DeleteRequest(ctx context.Context, sessionID string) error
}

// CodeStore maps opaque authorization codes to their authorization context.
// Only the callback handler inserts; the token endpoint consumes.
type CodeStore interface {
	// SaveCode stores the code until its ExpiresAt.
	SaveCode(ctx context.Context, code oauth.AuthorizationCode) error
	// GetCode returns the code without consuming it, or nil when absent,
	// expired, or already consumed.
	GetCode(ctx context.Context, code string) (*oauth.AuthorizationCode, error)
	// ConsumeCode atomically marks the code consumed and returns it. At most
	// one caller ever receives a non-nil result for a given code; every other
	// caller gets nil.
	ConsumeCode(ctx context.Context, code string) (*oauth.AuthorizationCode, error)
}
