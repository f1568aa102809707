package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/sentinelworks/gatekeeper/internal/auth/domain"
)

// ResilienceConfig tunes the decorator around a directory backend.
type ResilienceConfig struct {
	// Timeout bounds every single call to the backend.
	Timeout time.Duration

	// MaxRetries applies to idempotent lookups only. Authenticate is never
	// retried; a second bind with the same password can trip directory
	// lockout policies.
	MaxRetries    uint64
	RetryInterval time.Duration

	// FailureThreshold consecutive transient failures open the breaker,
	// which then fails fast for OpenDuration.
	FailureThreshold uint32
	OpenDuration     time.Duration
}

func (c *ResilienceConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 100 * time.Millisecond
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.OpenDuration <= 0 {
		c.OpenDuration = 30 * time.Second
	}
}

// Resilient decorates a backend with a per-call timeout, a circuit breaker
// and retries for lookups. Only transport faults count against the breaker;
// a rejected password is a healthy directory doing its job.
type Resilient struct {
	inner   Service
	cfg     ResilienceConfig
	breaker *gobreaker.CircuitBreaker[domain.AuthenticatedUser]
}

var _ Service = (*Resilient)(nil)

func NewResilient(inner Service, cfg ResilienceConfig, logger *slog.Logger) *Resilient {
	cfg.applyDefaults()

	breaker := gobreaker.NewCircuitBreaker[domain.AuthenticatedUser](gobreaker.Settings{
		Name:        "directory",
		MaxRequests: 1,
		Timeout:     cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("directory breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Resilient{inner: inner, cfg: cfg, breaker: breaker}
}

// Unwrap exposes the decorated backend for capability probes.
func (r *Resilient) Unwrap() Service { return r.inner }

func (r *Resilient) Authenticate(ctx context.Context, creds domain.Credentials) (domain.AuthenticatedUser, error) {
	return r.execute(ctx, func(ctx context.Context) (domain.AuthenticatedUser, error) {
		return r.inner.Authenticate(ctx, creds)
	})
}

func (r *Resilient) FindByUsername(ctx context.Context, username string) (domain.AuthenticatedUser, error) {
	return r.executeWithRetry(ctx, func(ctx context.Context) (domain.AuthenticatedUser, error) {
		return r.inner.FindByUsername(ctx, username)
	})
}

func (r *Resilient) FindByEmail(ctx context.Context, email string) (domain.AuthenticatedUser, error) {
	return r.executeWithRetry(ctx, func(ctx context.Context) (domain.AuthenticatedUser, error) {
		return r.inner.FindByEmail(ctx, email)
	})
}

func (r *Resilient) IsAvailable(ctx context.Context) bool {
	if r.breaker.State() == gobreaker.StateOpen {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return r.inner.IsAvailable(ctx)
}

// execute runs one guarded call. Credential verdicts bypass the breaker's
// failure counting by riding out through businessErr.
func (r *Resilient) execute(ctx context.Context, fn func(context.Context) (domain.AuthenticatedUser, error)) (domain.AuthenticatedUser, error) {
	var businessErr error

	user, err := r.breaker.Execute(func() (domain.AuthenticatedUser, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()

		u, err := fn(callCtx)
		if err != nil && !isTransient(err) {
			businessErr = err
			return domain.AuthenticatedUser{}, nil
		}
		return u, err
	})

	if businessErr != nil {
		return domain.AuthenticatedUser{}, businessErr
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.AuthenticatedUser{}, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		return domain.AuthenticatedUser{}, err
	}
	return user, nil
}

func (r *Resilient) executeWithRetry(ctx context.Context, fn func(context.Context) (domain.AuthenticatedUser, error)) (domain.AuthenticatedUser, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.RetryInterval

	var user domain.AuthenticatedUser
	operation := func() error {
		u, err := r.execute(ctx, fn)
		if err != nil {
			if !isTransient(err) || r.breaker.State() == gobreaker.StateOpen {
				return backoff.Permanent(err)
			}
			return err
		}
		user = u
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, r.cfg.MaxRetries), ctx))
	if err != nil {
		return domain.AuthenticatedUser{}, err
	}
	return user, nil
}

func isTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
