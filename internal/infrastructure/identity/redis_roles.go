package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexuscrm/workflow/internal/domain/ports"
)

const roleKeyPrefix = "wf:roles:"

// CachedRoleResolver caches another RoleResolver's answers in Redis.
// Redis failures degrade to the backing resolver; they never fail a lookup.
type CachedRoleResolver struct {
	client redis.Cmdable
	next   ports.RoleResolver
	ttl    time.Duration
}

var _ ports.RoleResolver = (*CachedRoleResolver)(nil)

// NewCachedRoleResolver wraps next with a Redis cache. The caller owns the
// client lifecycle.
func NewCachedRoleResolver(client redis.Cmdable, next ports.RoleResolver, ttl time.Duration) *CachedRoleResolver {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedRoleResolver{client: client, next: next, ttl: ttl}
}

func roleKey(userID string) string {
	return roleKeyPrefix + userID
}

// ResolveRoles returns the cached role list or loads and caches it.
func (c *CachedRoleResolver) ResolveRoles(ctx context.Context, userID string) ([]string, error) {
	raw, err := c.client.Get(ctx, roleKey(userID)).Result()
	switch {
	case err == nil:
		var roles []string
		if jsonErr := json.Unmarshal([]byte(raw), &roles); jsonErr == nil {
			return roles, nil
		}
		log.Printf("⚠️ Role cache: corrupt entry for %s, reloading", userID)
	case !errors.Is(err, redis.Nil):
		log.Printf("⚠️ Role cache: get %s: %v", userID, err)
	}

	roles, err := c.next.ResolveRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roles for %s: %w", userID, err)
	}
	if roles == nil {
		roles = []string{}
	}

	payload, _ := json.Marshal(roles)
	if err := c.client.Set(ctx, roleKey(userID), payload, c.ttl).Err(); err != nil {
		log.Printf("⚠️ Role cache: set %s: %v", userID, err)
	}
	return roles, nil
}

// Invalidate drops the cached roles of userID so the next lookup reloads them.
func (c *CachedRoleResolver) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, roleKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate roles for %s: %w", userID, err)
	}
	return nil
}

// Ping verifies the Redis connection is alive.
func (c *CachedRoleResolver) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
