package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type revocationsRepo struct {
	rdb *redis.Client
}

func revocationKey(jti string) string {
	return "revoked:" + jti
}

// Revoke marks a jti revoked for the token's remaining natural lifetime.
// After that the token is expired anyway, so the entry can lapse.
func (r *revocationsRepo) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already past expiry; nothing to blacklist.
		return nil
	}
	return r.rdb.Set(ctx, revocationKey(jti), "1", ttl).Err()
}

func (r *revocationsRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revocationKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
