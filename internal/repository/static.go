package repository

import (
	"context"

	"github.com/DrJLabs/forgetful-auth/internal/config"
	"github.com/DrJLabs/forgetful-auth/internal/domain"
)

// StaticClientRepo serves clients straight from configuration. It is the
// default registry when no database is configured.
type StaticClientRepo struct {
	clients map[string]domain.Client
}

var _ ClientRepository = (*StaticClientRepo)(nil)

// NewStaticClientRepo builds the registry from CLIENTS config entries.
func NewStaticClientRepo(configs []config.ClientConfig) *StaticClientRepo {
	clients := make(map[string]domain.Client, len(configs))
	for _, c := range configs {
		clients[c.ID] = domain.Client{
			ID:           c.ID,
			Name:         c.ID,
			RedirectURIs: append([]string(nil), c.RedirectURIs...),
		}
	}
	return &StaticClientRepo{clients: clients}
}

// GetClient returns the registered client or ErrClientNotFound.
func (r *StaticClientRepo) GetClient(ctx context.Context, clientID string) (domain.Client, error) {
	client, ok := r.clients[clientID]
	if !ok {
		return domain.Client{}, ErrClientNotFound
	}
	return client, nil
}
