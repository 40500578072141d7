package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceMarker advertises which channels currently host a live session.
// Purely advisory: other instances (and dashboards) can see the key, but
// the in-process registry stays authoritative, so every write here is
// best-effort with a TTL safety net against orphaned keys.
type PresenceMarker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresenceMarker(client *redis.Client, ttl time.Duration) *PresenceMarker {
	return &PresenceMarker{client: client, ttl: ttl}
}

func (m *PresenceMarker) MarkActive(ctx context.Context, channelID, sessionID string) {
	_ = m.client.Set(ctx, m.key(channelID), sessionID, m.ttl).Err()
}

func (m *PresenceMarker) ClearActive(ctx context.Context, channelID string) {
	_ = m.client.Del(ctx, m.key(channelID)).Err()
}

func (m *PresenceMarker) key(channelID string) string {
	return "trivia:channel:" + channelID
}
