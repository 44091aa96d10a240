package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyActiveSession holds the id of the most recently started session
const KeyActiveSession = "session:active"

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Client manages Redis connections and operations
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client. addr is host:port or a redis:// URL.
func New(addr string) (*Client, error) {
	opts := &redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	}
	if strings.Contains(addr, "://") {
		var err error
		if opts, err = redis.ParseURL(addr); err != nil {
			return nil, fmt.Errorf("invalid Redis URL: %w", err)
		}
	}
	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// SnapshotKey returns the key a session snapshot is mirrored under
func SnapshotKey(sessionID string) string {
	return fmt.Sprintf("session:%s:snapshot", sessionID)
}

// StoreSnapshot mirrors a session snapshot as JSON with the given TTL
func (c *Client) StoreSnapshot(ctx context.Context, sessionID string, snapshot interface{}, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return c.client.Set(ctx, SnapshotKey(sessionID), data, ttl).Err()
}

// getData retrieves data from Redis and unmarshals it into the target
func (c *Client) getData(ctx context.Context, key string, target interface{}, dataType string) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil // Data not found
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s data: %w", dataType, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s data: %w", dataType, err)
	}

	return true, nil
}

// GetSnapshot loads a mirrored snapshot into target. found is false when
// the key is missing or expired.
func (c *Client) GetSnapshot(ctx context.Context, sessionID string, target interface{}) (found bool, err error) {
	return c.getData(ctx, SnapshotKey(sessionID), target, "snapshot")
}

// DeleteSnapshot removes a mirrored snapshot
func (c *Client) DeleteSnapshot(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, SnapshotKey(sessionID)).Err()
}

// SetActiveSession records the id of the running session
func (c *Client) SetActiveSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	return c.client.Set(ctx, KeyActiveSession, sessionID, ttl).Err()
}

// GetActiveSession returns the id of the running session, or "" if none
func (c *Client) GetActiveSession(ctx context.Context) (string, error) {
	val, err := c.client.Get(ctx, KeyActiveSession).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active session: %w", err)
	}
	return val, nil
}
