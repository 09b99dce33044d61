package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/checkout"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "storefront:checkout:"

// SelectionStore keeps checkout sessions in Redis with SET ... EX, so expiry is enforced by
// the server and shared across instances.
type SelectionStore struct {
	rdb redis.Cmdable
}

func NewSelectionStore(rdb redis.Cmdable) *SelectionStore {
	return &SelectionStore{rdb: rdb}
}

// NewClient builds a client from address settings and verifies it answers.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

func (s *SelectionStore) Get(ctx context.Context, userID int64) (*checkout.Session, error) {
	raw, err := s.rdb.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, checkout.ErrNoSelection
	}
	if err != nil {
		return nil, fmt.Errorf("redis get selection: %w", err)
	}
	var session checkout.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode selection: %w", err)
	}
	return &session, nil
}

func (s *SelectionStore) Put(ctx context.Context, session *checkout.Session, ttl time.Duration) error {
	if session == nil || session.UserID == 0 {
		return fmt.Errorf("redis selection: user id is required")
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}
	if err := s.rdb.Set(ctx, key(session.UserID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set selection: %w", err)
	}
	return nil
}

func (s *SelectionStore) Delete(ctx context.Context, userID int64) error {
	if err := s.rdb.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del selection: %w", err)
	}
	return nil
}
