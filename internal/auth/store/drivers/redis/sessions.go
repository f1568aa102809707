package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelworks/gatekeeper/internal/auth/store"
	"github.com/sentinelworks/gatekeeper/pkg/jwtx"
)

type sessionsRepo struct {
	rdb *redis.Client
}

func sessionKey(userID, deviceID string) string {
	return "session:" + userID + ":" + deviceID
}

// Store writes the refresh claims under session:{userID}:{deviceID}. A plain
// SET overwrites any previous session for the device, which is exactly the
// at-most-one-session-per-device rule.
func (r *sessionsRepo) Store(
	ctx context.Context,
	userID, deviceID string,
	claims jwtx.Claims,
	ttl time.Duration,
) error {
	payload, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("marshal session claims: %w", err)
	}
	return r.rdb.Set(ctx, sessionKey(userID, deviceID), payload, ttl).Err()
}

func (r *sessionsRepo) Retrieve(ctx context.Context, userID, deviceID string) (jwtx.Claims, error) {
	payload, err := r.rdb.Get(ctx, sessionKey(userID, deviceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return jwtx.Claims{}, store.ErrNotFound
		}
		return jwtx.Claims{}, err
	}

	var claims jwtx.Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return jwtx.Claims{}, fmt.Errorf("unmarshal session claims: %w", err)
	}
	return claims, nil
}

func (r *sessionsRepo) Delete(ctx context.Context, userID, deviceID string) error {
	return r.rdb.Del(ctx, sessionKey(userID, deviceID)).Err()
}

// DeleteAll walks session:{userID}:* with SCAN rather than KEYS so a user
// with many devices cannot stall the server.
func (r *sessionsRepo) DeleteAll(ctx context.Context, userID string) error {
	iter := r.rdb.Scan(ctx, 0, sessionKey(userID, "*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := r.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
