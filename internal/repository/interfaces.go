package repository

import (
	"context"
	"errors"

	"github.com/DrJLabs/forgetful-auth/internal/domain"
)

// ErrClientNotFound signals an unregistered client_id.
var ErrClientNotFound = errors.New("repository: client not found")

// ClientRepository resolves registered OAuth clients and their redirect URIs.
type ClientRepository interface {
	GetClient(ctx context.Context, clientID string) (domain.Client, error)
}
