package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimited   = errors.New("login rate limit exceeded")
	ErrAccountLocked = errors.New("account temporarily locked")
)

// LoginThrottle 按 IP+登录名限制每小时尝试次数，并在连续失败后临时锁定登录名。
type LoginThrottle struct {
	client        redis.UniversalClient
	perHour       int
	lockThreshold int
	lockTTL       time.Duration
	now           func() time.Time
}

func NewLoginThrottle(client redis.UniversalClient, perHour, lockThreshold int, lockTTL time.Duration) *LoginThrottle {
	if lockTTL <= 0 {
		lockTTL = 15 * time.Minute
	}
	return &LoginThrottle{
		client:        client,
		perHour:       perHour,
		lockThreshold: lockThreshold,
		lockTTL:       lockTTL,
		now:           time.Now,
	}
}

// Allow 计入一次尝试。Redis 不可用时放行，只有明确超限才拒绝。
func (t *LoginThrottle) Allow(ctx context.Context, ip, login string) error {
	login = normalizeLogin(login)

	if t.perHour > 0 {
		bucket := t.now().UTC().Format("2006010215")
		key := "auth:login:rate:" + ip + ":" + login + ":" + bucket
		if count, err := incrWithTTL(ctx, t.client, key, time.Hour); err == nil && count > int64(t.perHour) {
			return ErrRateLimited
		}
	}

	if ttl, err := t.client.TTL(ctx, lockKey(login)).Result(); err == nil && ttl > 0 {
		return ErrAccountLocked
	}
	return nil
}

// RecordFailure 累计失败次数，达到阈值后锁定。
func (t *LoginThrottle) RecordFailure(ctx context.Context, login string) error {
	if t.lockThreshold <= 0 {
		return nil
	}
	login = normalizeLogin(login)
	count, err := incrWithTTL(ctx, t.client, failKey(login), t.lockTTL)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	if count >= int64(t.lockThreshold) {
		if err := t.client.Set(ctx, lockKey(login), count, t.lockTTL).Err(); err != nil {
			return fmt.Errorf("lock login: %w", err)
		}
	}
	return nil
}

// Reset 在登录成功后清除失败计数。
func (t *LoginThrottle) Reset(ctx context.Context, login string) error {
	return t.client.Del(ctx, failKey(normalizeLogin(login))).Err()
}

func normalizeLogin(login string) string { return strings.ToLower(strings.TrimSpace(login)) }
func failKey(login string) string        { return "auth:login:fail:" + login }
func lockKey(login string) string        { return "auth:login:lock:" + login }

// incrWithTTL 计数加一，首次计数时设置过期时间。
func incrWithTTL(ctx context.Context, client redis.UniversalClient, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}
