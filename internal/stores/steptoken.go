package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StepTokenStore persists the server side of an elder-signup verification
// token. The signed token a client carries only names an id; the Redis entry
// holding the phone it was issued for is the use-once authority. Consume
// removes the entry atomically, so a token spends exactly once no matter how
// many times it is presented.
type StepTokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStepTokenStore creates a [StepTokenStore] with the given key prefix.
func NewStepTokenStore(redisClient redis.UniversalClient, prefix string) *StepTokenStore {
	if prefix == "" {
		prefix = "es"
	}
	return &StepTokenStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *StepTokenStore) key(id string) string {
	return s.prefix + ":" + id
}

// Save records the token id with the phone it was issued for.
func (s *StepTokenStore) Save(ctx context.Context, id, phone string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(id), phone, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Consume redeems the token and returns the phone it was bound to. The entry
// is gone afterwards; a replay finds [ErrStepTokenNotFound].
func (s *StepTokenStore) Consume(ctx context.Context, id string) (string, error) {
	phone, err := s.redis.GetDel(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrStepTokenNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return phone, nil
}
