package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	resendKeyPrefix   = "otp:resend:"
	attemptsKeyPrefix = "otp:attempts:"
)

// OTPThrottle limits how often a code can be requested for an email and how
// many wrong codes can be submitted for it.
type OTPThrottle struct {
	client         *redis.Client
	resendCooldown time.Duration
	maxAttempts    int
	attemptWindow  time.Duration
}

// NewOTPThrottle creates a Redis-backed throttle.
func NewOTPThrottle(client *redis.Client, resendCooldown time.Duration, maxAttempts int, attemptWindow time.Duration) *OTPThrottle {
	return &OTPThrottle{
		client:         client,
		resendCooldown: resendCooldown,
		maxAttempts:    maxAttempts,
		attemptWindow:  attemptWindow,
	}
}

// ReserveResend claims the resend slot for email with SET NX, so concurrent
// callers cannot both send. It returns zero when the slot was claimed and the
// remaining cooldown otherwise.
func (t *OTPThrottle) ReserveResend(ctx context.Context, email string) (time.Duration, error) {
	if t.resendCooldown <= 0 {
		return 0, nil
	}

	key := resendKeyPrefix + email
	ok, err := t.client.SetNX(ctx, key, 1, t.resendCooldown).Result()
	if err != nil {
		return 0, fmt.Errorf("redis setnx resend: %w", err)
	}
	if ok {
		return 0, nil
	}

	ttl, err := t.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis pttl resend: %w", err)
	}
	// The key expired between SETNX and PTTL (-2) or lost its expiry (-1).
	// Report a full cooldown rather than letting a second sender through.
	if ttl <= 0 {
		return t.resendCooldown, nil
	}
	return ttl, nil
}

// ReleaseResend gives the slot back after a send that did not happen.
func (t *OTPThrottle) ReleaseResend(ctx context.Context, email string) error {
	if t.resendCooldown <= 0 {
		return nil
	}
	if err := t.client.Del(ctx, resendKeyPrefix+email).Err(); err != nil {
		return fmt.Errorf("redis del resend: %w", err)
	}
	return nil
}

// CheckAttempts reports whether email still has verification attempts left.
func (t *OTPThrottle) CheckAttempts(ctx context.Context, email string) (bool, error) {
	n, err := t.client.Get(ctx, attemptsKeyPrefix+email).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return true, nil
		}
		return false, fmt.Errorf("redis get attempts: %w", err)
	}
	return n < t.maxAttempts, nil
}

// RecordFailure counts a failed verification. The counter window starts at
// the first failure; INCR and EXPIRE NX run in one MULTI so the counter
// can never be left without a TTL.
func (t *OTPThrottle) RecordFailure(ctx context.Context, email string) error {
	key := attemptsKeyPrefix + email

	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, t.attemptWindow)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record attempt: %w", err)
	}
	return nil
}

// Reset clears the failure counter for email.
func (t *OTPThrottle) Reset(ctx context.Context, email string) error {
	if err := t.client.Del(ctx, attemptsKeyPrefix+email).Err(); err != nil {
		return fmt.Errorf("redis del attempts: %w", err)
	}
	return nil
}
