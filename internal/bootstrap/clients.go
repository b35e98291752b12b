package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/DrJLabs/forgetful-auth/internal/config"
	"github.com/DrJLabs/forgetful-auth/internal/domain"
	"github.com/DrJLabs/forgetful-auth/internal/repository"
)

// EnsureClients creates the client table and seeds the configured clients
// when the registry is backed by Postgres. Static registries need no seeding.
func EnsureClients(lc fx.Lifecycle, cfg config.Config, clients repository.ClientRepository, logger *zap.Logger) {
	repo, ok := clients.(*repository.PostgresClientRepo)
	if !ok {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureClients(ctx, cfg, repo, logger)
		},
	})
}

func ensureClients(ctx context.Context, cfg config.Config, repo *repository.PostgresClientRepo, logger *zap.Logger) error {
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("bootstrap client schema: %w", err)
	}

	for _, cc := range cfg.Clients {
		client := domain.Client{
			ID:           cc.ID,
			Name:         cc.ID,
			RedirectURIs: cc.RedirectURIs,
		}
		if err := repo.UpsertClient(ctx, client); err != nil {
			return fmt.Errorf("bootstrap upsert client %s: %w", cc.ID, err)
		}
		if logger != nil {
			logger.Info("bootstrap client registered",
				zap.String("client_id", cc.ID),
				zap.Int("redirect_uris", len(cc.RedirectURIs)),
			)
		}
	}
	return nil
}
