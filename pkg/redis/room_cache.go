package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trackvote/pkg/models"
)

const roomCacheTTL = 24 * time.Hour

// RoomCache is a best-effort cache-aside layer for room lookups. Misses
// and failures fall through to the registry; nothing here is
// authoritative.
type RoomCache struct {
	client *redis.Client
}

func NewRoomCache(client *redis.Client) *RoomCache {
	return &RoomCache{client: client}
}

func (c *RoomCache) Put(ctx context.Context, room *models.Room) error {
	roomJSON, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	key := fmt.Sprintf("room:%s", room.ID)
	if err := c.client.Set(ctx, key, roomJSON, roomCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache room: %w", err)
	}
	return nil
}

func (c *RoomCache) Get(ctx context.Context, roomID string) (*models.Room, error) {
	key := fmt.Sprintf("room:%s", roomID)
	roomJSON, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("room not cached")
		}
		return nil, fmt.Errorf("failed to get cached room: %w", err)
	}

	var room models.Room
	if err := json.Unmarshal(roomJSON, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached room: %w", err)
	}
	return &room, nil
}

func (c *RoomCache) Delete(ctx context.Context, roomID string) error {
	key := fmt.Sprintf("room:%s", roomID)
	return c.client.Del(ctx, key).Err()
}
