// Package cache provides the Redis-backed state stores used when the server
// runs with more than one replica. Single-process memory cannot guarantee
// single-use semantics across replicas; Redis GETDEL can.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DrJLabs/forgetful-auth/internal/domain/oauth"
	"github.com/DrJLabs/forgetful-auth/internal/store"
)

const (
	requestPrefix = "oauth:request:"
	codePrefix    = "oauth:code:"
)

// RedisStore implements PendingRequestStore and CodeStore backed by Redis.
type RedisStore struct {
	client redis.UniversalClient
}

var (
	_ store.PendingRequestStore = (*RedisStore)(nil)
	_ store.CodeStore           = (*RedisStore)(nil)
)

// NewRedisStore constructs a Redis-backed store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// SaveRequest stores the encoded request with a TTL derived from ExpiresAt.
func (s *RedisStore) SaveRequest(ctx context.Context, req oauth.AuthorizationRequest) error {
	return s.save(ctx, requestPrefix+req.SessionID, req, req.ExpiresAt)
}

// GetRequest loads and decodes the pending request.
func (s *RedisStore) GetRequest(ctx context.Context, sessionID string) (*oauth.AuthorizationRequest, error) {
	var req oauth.AuthorizationRequest
	ok, err := s.load(ctx, requestPrefix+sessionID, &req)
	if err != nil || !ok {
		return nil, err
	}
	if req.Expired(time.Now()) {
		return nil, nil
	}
	return &req, nil
}

// DeleteRequest removes the persisted request key.
func (s *RedisStore) DeleteRequest(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, requestPrefix+sessionID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete request: %w", err)
	}
	return nil
}

// SaveCode stores the encoded authorization code.
func (s *RedisStore) SaveCode(ctx context.Context, code oauth.AuthorizationCode) error {
	return s.save(ctx, codePrefix+code.Code, code, code.ExpiresAt)
}

// GetCode loads the code without consuming it.
func (s *RedisStore) GetCode(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	var rec oauth.AuthorizationCode
	ok, err := s.load(ctx, codePrefix+code, &rec)
	if err != nil || !ok {
		return nil, err
	}
	if rec.Expired(time.Now()) || rec.Consumed {
		return nil, nil
	}
	return &rec, nil
}

// ConsumeCode removes the key with GETDEL. Redis serializes the operation, so
// when two redemption attempts race only one receives the payload.
func (s *RedisStore) ConsumeCode(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	payload, err := s.client.GetDel(ctx, codePrefix+code).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("consume code: %w", err)
	}
	var rec oauth.AuthorizationCode
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode code: %w", err)
	}
	if rec.Expired(time.Now()) || rec.Consumed {
		return nil, nil
	}
	rec.Consumed = true
	return &rec, nil
}

func (s *RedisStore) save(ctx context.Context, key string, value any, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("persist %s: already expired", key)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, key string, out any) (bool, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
