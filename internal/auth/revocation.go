package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedRefreshPrefix = "auth:refresh:revoked:"

// RevocationList 记录已吊销的刷新令牌 jti，条目随令牌过期自动清除。
type RevocationList struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRevocationList(client redis.UniversalClient) *RevocationList {
	return &RevocationList{client: client, now: time.Now}
}

// Revoke 吊销刷新令牌。已过期的令牌也记录一秒，避免竞态下被再次使用。
func (r *RevocationList) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" {
		return fmt.Errorf("%w: missing jti", ErrInvalidToken)
	}
	ttl := time.Second
	if claims.ExpiresAt != nil {
		if remaining := claims.ExpiresAt.Sub(r.now()); remaining > ttl {
			ttl = remaining
		}
	}
	if err := r.client.Set(ctx, revokedRefreshPrefix+claims.ID, claims.UserID, ttl).Err(); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (r *RevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := r.client.Get(ctx, revokedRefreshPrefix+jti).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("lookup revoked refresh token: %w", err)
	}
}
