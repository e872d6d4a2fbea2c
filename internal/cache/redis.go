// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Rdb is the global Redis client. Connect it once at application startup;
// while it stays nil (Redis down or unconfigured) action logging is a no-op.
var Rdb *redis.Client

// DefaultQueueName is the Redis list (queue) name for room action logs.
var DefaultQueueName = "room_actions"

// RoomActionRecord is one committed room or game action, queued for an
// out-of-process historian.
type RoomActionRecord struct {
	RoomID      uuid.UUID              `json:"room_id"`
	ActionIndex int                    `json:"action_index"`
	ActorUserID uuid.UUID              `json:"actor_user_id"`
	ActionType  string                 `json:"action_type"`
	Payload     map[string]interface{} `json:"payload"`
	Timestamp   int64                  `json:"timestamp"`
}

// ConnectRedis initializes the global Redis client and pings it.
func ConnectRedis(addr string, db int) error {
	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		Rdb = nil
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// PublishRoomAction serializes the record to JSON and pushes it onto the
// action queue. Callers treat failures as log-and-continue.
func PublishRoomAction(ctx context.Context, record RoomActionRecord) error {
	if Rdb == nil {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal RoomActionRecord: %w", err)
	}
	if err := Rdb.RPush(ctx, DefaultQueueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list %q: %w", DefaultQueueName, err)
	}
	return nil
}
