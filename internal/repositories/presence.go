package repositories

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// PresenceRepository tracks which members currently hold a live subscription
// to a group room. Entries carry a TTL so a crashed connection ages out even
// if the broker never got to unsubscribe it.
type PresenceRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPresenceRepository(rdb *redis.Client, ttl time.Duration) *PresenceRepository {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &PresenceRepository{rdb: rdb, ttl: ttl}
}

func presenceKey(groupID, userID uint) string {
	return fmt.Sprintf("group:%d:online:%d", groupID, userID)
}

func (p *PresenceRepository) SetOnline(ctx context.Context, groupID, userID uint) error {
	err := p.rdb.Set(ctx, presenceKey(groupID, userID), "1", p.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set user %d online in group %d: %w", userID, groupID, err)
	}
	return nil
}

// Refresh extends the TTL of an existing presence entry; it is called from
// the websocket pong handler.
func (p *PresenceRepository) Refresh(ctx context.Context, groupID, userID uint) error {
	err := p.rdb.Expire(ctx, presenceKey(groupID, userID), p.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to refresh presence for user %d in group %d: %w", userID, groupID, err)
	}
	return nil
}

func (p *PresenceRepository) SetOffline(ctx context.Context, groupID, userID uint) error {
	err := p.rdb.Del(ctx, presenceKey(groupID, userID)).Err()
	if err != nil {
		return fmt.Errorf("failed to set user %d offline in group %d: %w", userID, groupID, err)
	}
	return nil
}

func (p *PresenceRepository) IsOnline(ctx context.Context, groupID, userID uint) (bool, error) {
	n, err := p.rdb.Exists(ctx, presenceKey(groupID, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence for user %d in group %d: %w", userID, groupID, err)
	}
	return n > 0, nil
}
