package server

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Presence mirrors room membership to an external store so other services
// can see who is in a huddle.
type Presence interface {
	Join(ctx context.Context, roomID, userID string) error
	Leave(ctx context.Context, roomID, userID string) error
}

type NopPresence struct{}

func (NopPresence) Join(context.Context, string, string) error  { return nil }
func (NopPresence) Leave(context.Context, string, string) error { return nil }

// MembersKey is the Redis set holding a room's members.
func MembersKey(roomID string) string {
	return "huddle:room:" + roomID + ":members"
}

// RedisPresence keeps one Redis set per room.
type RedisPresence struct {
	rdb *redis.Client
}

// ConnectRedis opens and pings a Redis client.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func NewRedisPresence(rdb *redis.Client) *RedisPresence {
	return &RedisPresence{rdb: rdb}
}

func (p *RedisPresence) Join(ctx context.Context, roomID, userID string) error {
	return p.rdb.SAdd(ctx, MembersKey(roomID), userID).Err()
}

func (p *RedisPresence) Leave(ctx context.Context, roomID, userID string) error {
	return p.rdb.SRem(ctx, MembersKey(roomID), userID).Err()
}
