package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore remembers token IDs that must no longer be accepted.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

const defaultRevocationPrefix = "auth:revoked:"

// RedisRevocationStore keeps revoked token IDs in Redis until they expire.
type RedisRevocationStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevocationStore wires Redis storage for the denylist.
func NewRedisRevocationStore(client *redis.Client, prefix string) *RedisRevocationStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}
	return &RedisRevocationStore{client: client, prefix: prefix, now: time.Now}
}

// Revoke stores jti until the token would have expired anyway.
func (s *RedisRevocationStore) Revoke(ctx context.Context, jti string, until time.Time) error {
	if jti == "" {
		return nil
	}
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("auth: revoke %s: %w", jti, err)
	}
	return nil
}

// IsRevoked reports whether jti was revoked.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("auth: revocation lookup: %w", err)
	}
	return n > 0, nil
}

var _ RevocationStore = (*RedisRevocationStore)(nil)
