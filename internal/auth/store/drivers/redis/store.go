package redis

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelworks/gatekeeper/internal/auth/store"
)

// Config holds Redis connection parameters.
type Config struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// Store exposes the session and revocation repositories backed by a shared
// Redis client.
type Store struct {
	rdb *redis.Client
}

func NewStore(cfg Config) (*Store, error) {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return &Store{rdb: rdb}, nil
}

func (s *Store) Sessions() store.Sessions       { return &sessionsRepo{rdb: s.rdb} }
func (s *Store) Revocations() store.Revocations { return &revocationsRepo{rdb: s.rdb} }

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error { return s.rdb.Close() }
