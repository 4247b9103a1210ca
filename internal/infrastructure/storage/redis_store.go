package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/ports"
)

const redisUpdateAttempts = 5

// RedisStore keeps the tracking document as one JSON value under key.
// Updates use WATCH/MULTI so a concurrent writer forces a retry; fn may run more than once.
type RedisStore struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

var _ ports.TrackingStore = (*RedisStore)(nil)

// NewRedisStore wraps a connected client.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "adobedigest:tracking"
	}
	return &RedisStore{client: client, key: key, now: time.Now}
}

// Load reads the document; a missing key is an empty state.
func (s *RedisStore) Load(ctx context.Context) (domain.TrackingState, error) {
	return decodeRedisState(s.client.Get(ctx, s.key))
}

// Update applies fn inside an optimistic transaction.
func (s *RedisStore) Update(ctx context.Context, fn func(*domain.TrackingState) error) error {
	txf := func(tx *redis.Tx) error {
		state, err := decodeRedisState(tx.Get(ctx, s.key))
		if err != nil {
			return err
		}
		if err := fn(&state); err != nil {
			return err
		}
		state.LastUpdated = s.now().UTC()

		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("marshal tracking state: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, data, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < redisUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, s.key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("update tracking key %s: %w", s.key, err)
	}
	return fmt.Errorf("update tracking key %s: too much contention", s.key)
}

func decodeRedisState(cmd *redis.StringCmd) (domain.TrackingState, error) {
	var state domain.TrackingState

	raw, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return state, nil
		}
		return state, fmt.Errorf("get tracking key: %w", err)
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return state, fmt.Errorf("parse tracking key: %w", err)
	}
	return state, nil
}
