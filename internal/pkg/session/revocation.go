// internal/pkg/session/revocation.go
package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Revocations tracks tokens revoked before their expiry. The identity service
// writes the same keys when a merchant logs out or uninstalls the app.
type Revocations struct {
	client redis.Cmdable
}

func NewRevocations(client redis.Cmdable) *Revocations {
	return &Revocations{client: client}
}

// IsTokenBlacklisted checks if a token is blacklisted
func (r *Revocations) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	exists, err := r.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists > 0, nil
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}
