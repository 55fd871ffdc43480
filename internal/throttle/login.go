// Package throttle limits repeated failed logins per account using redis counters.
package throttle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	failuresPrefix = "login:failures:"
	lockPrefix     = "login:lock:"
)

// Settings control when an account gets locked
type Settings struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

func DefaultSettings() Settings {
	return Settings{MaxAttempts: 5, Window: 15 * time.Minute, Lockout: 15 * time.Minute}
}

// LoginLimiter counts failed logins per email. A nil limiter allows everything.
type LoginLimiter struct {
	client   redis.UniversalClient
	settings Settings
}

// NewLoginLimiter returns nil when client is nil so callers can run without redis
func NewLoginLimiter(client redis.UniversalClient, settings Settings) *LoginLimiter {
	if client == nil {
		return nil
	}
	def := DefaultSettings()
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = def.MaxAttempts
	}
	if settings.Window <= 0 {
		settings.Window = def.Window
	}
	if settings.Lockout <= 0 {
		settings.Lockout = def.Lockout
	}
	return &LoginLimiter{client: client, settings: settings}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Check reports how long the account stays locked. Zero means login may proceed.
func (l *LoginLimiter) Check(ctx context.Context, email string) (time.Duration, error) {
	if l == nil {
		return 0, nil
	}
	ttl, err := l.client.PTTL(ctx, lockPrefix+normalize(email)).Result()
	if err != nil {
		return 0, fmt.Errorf("read login lock: %w", err)
	}
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// RegisterFailure records a failed attempt and locks the account once the limit is reached.
// It returns the lockout duration when this failure triggered a lock.
func (l *LoginLimiter) RegisterFailure(ctx context.Context, email string) (time.Duration, error) {
	if l == nil {
		return 0, nil
	}
	email = normalize(email)
	key := failuresPrefix + email

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("count login failure: %w", err)
	}
	// the window starts at the first failure
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.settings.Window).Err(); err != nil {
			return 0, fmt.Errorf("set login failure window: %w", err)
		}
	}

	if count < int64(l.settings.MaxAttempts) {
		return 0, nil
	}

	pipe := l.client.TxPipeline()
	pipe.Set(ctx, lockPrefix+email, "1", l.settings.Lockout)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("lock login: %w", err)
	}
	return l.settings.Lockout, nil
}

// Reset clears failures after a successful login
func (l *LoginLimiter) Reset(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	email = normalize(email)
	if err := l.client.Del(ctx, failuresPrefix+email, lockPrefix+email).Err(); err != nil {
		return fmt.Errorf("reset login failures: %w", err)
	}
	return nil
}
