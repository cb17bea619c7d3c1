// Package cache adds read-aside caching on top of a TokenStore.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tripwise-app/go-ride-notifier/pkg/dispatch"
	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
)

// CacheClient is the subset of Redis commands we need.
type CacheClient interface {
	// Get loads the value into dest, returning an error on a miss.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedTokenStore is a decorator that adds read-aside caching to any
// TokenStore. Every write path invalidates, including the engine's
// prune: a token deleted for being dead must not resurface from cache.
type CachedTokenStore struct {
	realStore dispatch.TokenStore
	cache     CacheClient
	ttl       time.Duration
}

func NewCachedTokenStore(realStore dispatch.TokenStore, cache CacheClient, ttl time.Duration) *CachedTokenStore {
	return &CachedTokenStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATH ---

func (s *CachedTokenStore) Fetch(ctx context.Context, userID string) (*notification.Devices, error) {
	key := s.cacheKey(userID)

	var cached notification.Devices
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	fresh, err := s.realStore.Fetch(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization, not a transaction: if Redis is down we
	// just keep serving from Firestore.
	_ = s.cache.Set(ctx, key, fresh, s.ttl)

	return fresh, nil
}

// --- WRITE PATHS (invalidate-on-write) ---

func (s *CachedTokenStore) RegisterToken(ctx context.Context, userID, token string, platform notification.Platform) error {
	if err := s.realStore.RegisterToken(ctx, userID, token, platform); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

func (s *CachedTokenStore) RegisterWeb(ctx context.Context, userID string, sub notification.WebPushSubscription) error {
	if err := s.realStore.RegisterWeb(ctx, userID, sub); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

func (s *CachedTokenStore) UnregisterWeb(ctx context.Context, userID, endpoint string) error {
	if err := s.realStore.UnregisterWeb(ctx, userID, endpoint); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

func (s *CachedTokenStore) DeleteTokens(ctx context.Context, userID string, tokens []string) error {
	// Invalidate even when the batch partially failed; the next Fetch
	// must see whatever state Firestore actually holds.
	err := s.realStore.DeleteTokens(ctx, userID, tokens)
	if invErr := s.invalidate(ctx, userID); err == nil {
		err = invErr
	}
	return err
}

// --- Helpers ---

func (s *CachedTokenStore) invalidate(ctx context.Context, userID string) error {
	return s.cache.Del(ctx, s.cacheKey(userID))
}

func (s *CachedTokenStore) cacheKey(userID string) string {
	return fmt.Sprintf("notify:devices:%s", userID)
}
