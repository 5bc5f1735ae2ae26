package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/civilens/civilens/internal/civilens"
)

// RedisStore keeps each record as a JSON string under civilens:<device>:user.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) For(deviceID string) Repository {
	return &redisRepo{client: s.client, key: "civilens:" + deviceID + ":" + Key}
}

type redisRepo struct {
	client *redis.Client
	key    string
}

func (r *redisRepo) Load(ctx context.Context) (civilens.Session, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return civilens.Session{}, ErrNotFound
	}
	if err != nil {
		return civilens.Session{}, fmt.Errorf("loading session: %w", err)
	}

	var s civilens.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return civilens.Session{}, fmt.Errorf("decoding session: %w", err)
	}
	return s, nil
}

func (r *redisRepo) Save(ctx context.Context, s civilens.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}
