// Package redisstore keeps session state and session locks in redis so several
// checkout processes can share carts.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultSessionTTL = 24 * time.Hour

// SessionStore keeps one hash per session; every write refreshes the hash TTL.
type SessionStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewSessionStore(rdb redis.UniversalClient, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func (s *SessionStore) Get(ctx context.Context, sessionID, key string) ([]byte, bool, error) {
	val, err := s.rdb.HGet(ctx, sessionKey(sessionID), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis session get: %w", err)
	}
	return val, true, nil
}

func (s *SessionStore) Set(ctx context.Context, sessionID, key string, value []byte) error {
	hkey := sessionKey(sessionID)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, hkey, key, value)
		p.Expire(ctx, hkey, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis session set: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID, key string) error {
	if err := s.rdb.HDel(ctx, sessionKey(sessionID), key).Err(); err != nil {
		return fmt.Errorf("redis session delete: %w", err)
	}
	return nil
}
