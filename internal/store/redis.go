package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists moderation state in redis so that bans hold across
// server restarts and are shared between instances behind one balancer.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

func bannedKey(roomID string) string { return "room:" + roomID + ":banned" }

func notificationKey(roomID, uuid string) string {
	return "room:" + roomID + ":notify:" + uuid
}

func (s *RedisStore) BanPeer(ctx context.Context, roomID, peerUUID string) error {
	return s.client.SAdd(ctx, bannedKey(roomID), peerUUID).Err()
}

func (s *RedisStore) IsBanned(ctx context.Context, roomID, peerUUID string) (bool, error) {
	return s.client.SIsMember(ctx, bannedKey(roomID), peerUUID).Result()
}

func (s *RedisStore) ClearBans(ctx context.Context, roomID string) error {
	return s.client.Del(ctx, bannedKey(roomID)).Err()
}

func (s *RedisStore) SetNotification(ctx context.Context, roomID, peerUUID string, enabled bool) error {
	val := "0"
	if enabled {
		val = "1"
	}
	return s.client.Set(ctx, notificationKey(roomID, peerUUID), val, 0).Err()
}

func (s *RedisStore) GetNotification(ctx context.Context, roomID, peerUUID string) (bool, error) {
	val, err := s.client.Get(ctx, notificationKey(roomID, peerUUID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "1", nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
