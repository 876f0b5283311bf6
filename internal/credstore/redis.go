package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps credentials under <namespace>:token and <namespace>:user.
type RedisStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisStore constructs a RedisStore. A zero ttl keeps keys until cleared.
func NewRedisStore(client *redis.Client, namespace string, ttl time.Duration) *RedisStore {
	if namespace == "" {
		namespace = "console:default"
	}
	return &RedisStore{client: client, namespace: namespace, ttl: ttl}
}

func (r *RedisStore) key(name string) string {
	return r.namespace + ":" + name
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (Credentials, error) {
	values, err := r.client.MGet(ctx, r.key(KeyToken), r.key(KeyUser)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Credentials{}, fmt.Errorf("credstore: redis load: %w", err)
	}
	var creds Credentials
	if len(values) == 2 {
		if s, ok := values[0].(string); ok {
			creds.Token = s
		}
		if s, ok := values[1].(string); ok {
			creds.User = decodeUser([]byte(s))
		}
	}
	return creds, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, creds Credentials) error {
	user, err := encodeUser(creds.User)
	if err != nil {
		return fmt.Errorf("credstore: encode user: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(KeyToken), creds.Token, r.ttl)
		if user == nil {
			pipe.Del(ctx, r.key(KeyUser))
		} else {
			pipe.Set(ctx, r.key(KeyUser), user, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("credstore: redis save: %w", err)
	}
	return nil
}

// Clear implements Store.
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key(KeyToken), r.key(KeyUser)).Err(); err != nil {
		return fmt.Errorf("credstore: redis clear: %w", err)
	}
	return nil
}
