package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DrJLabs/forgetful-auth/internal/domain"
)

// PostgresClientRepo implements ClientRepository over pgx. It is used when
// DATABASE_URL is set, so client registrations survive restarts and can be
// managed out-of-band.
type PostgresClientRepo struct {
	pool *pgxpool.Pool
}

var _ ClientRepository = (*PostgresClientRepo)(nil)

// NewPostgresClientRepo constructs the repository.
func NewPostgresClientRepo(pool *pgxpool.Pool) *PostgresClientRepo {
	return &PostgresClientRepo{pool: pool}
}

const createClientsTableSQL = `CREATE TABLE IF NOT EXISTS oauth_clients (
	client_id     TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	redirect_uris TEXT[] NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the oauth_clients table when it does not exist yet.
func (r *PostgresClientRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createClientsTableSQL); err != nil {
		return fmt.Errorf("ensure oauth_clients schema: %w", err)
	}
	return nil
}

// GetClient returns the registered client or ErrClientNotFound.
func (r *PostgresClientRepo) GetClient(ctx context.Context, clientID string) (domain.Client, error) {
	const query = `SELECT client_id, name, redirect_uris FROM oauth_clients WHERE client_id = $1`
	var client domain.Client
	err := r.pool.QueryRow(ctx, query, clientID).Scan(&client.ID, &client.Name, &client.RedirectURIs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Client{}, ErrClientNotFound
		}
		return domain.Client{}, fmt.Errorf("get client: %w", err)
	}
	return client, nil
}

// UpsertClient registers or updates a client.
func (r *PostgresClientRepo) UpsertClient(ctx context.Context, client domain.Client) error {
	const query = `INSERT INTO oauth_clients (client_id, name, redirect_uris)
VALUES ($1, $2, $3)
ON CONFLICT (client_id) DO UPDATE SET name = EXCLUDED.name, redirect_uris = EXCLUDED.redirect_uris, updated_at = now()`
	if _, err := r.pool.Exec(ctx, query, client.ID, client.Name, client.RedirectURIs); err != nil {
		return fmt.Errorf("upsert client: %w", err)
	}
	return nil
}
