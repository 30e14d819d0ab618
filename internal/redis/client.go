package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

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

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
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
	return c.client.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func overridesKey(namespace string) string {
	return fmt.Sprintf("overrides:%s", namespace)
}

// getData retrieves data from Redis and unmarshals it into the target
func (c *Client) getData(ctx context.Context, key string, target interface{}, dataType string) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil // Data not found
	}
	if err != nil {
		return fmt.Errorf("failed to get %s data: %w", dataType, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal %s data: %w", dataType, err)
	}

	return nil
}

// StoreOverrides replaces the override set for a namespace. Overrides never expire.
func (c *Client) StoreOverrides(ctx context.Context, namespace string, ov types.Overrides) error {
	data, err := json.Marshal(ov)
	if err != nil {
		return fmt.Errorf("failed to marshal overrides: %w", err)
	}
	return c.client.Set(ctx, overridesKey(namespace), data, 0).Err()
}

// GetOverrides retrieves the override set for a namespace. A missing key is an empty set.
func (c *Client) GetOverrides(ctx context.Context, namespace string) (types.Overrides, error) {
	ov := types.Overrides{}
	if err := c.getData(ctx, overridesKey(namespace), &ov, "overrides"); err != nil {
		return nil, err
	}
	if ov == nil {
		ov = types.Overrides{}
	}
	return ov, nil
}

// DeleteOverrides removes the override set for a namespace
func (c *Client) DeleteOverrides(ctx context.Context, namespace string) error {
	return c.client.Del(ctx, overridesKey(namespace)).Err()
}

// OverrideStore adapts the client to overrides.Store
type OverrideStore struct {
	client    *Client
	namespace string
}

// NewOverrideStore returns a store bound to one namespace
func (c *Client) NewOverrideStore(namespace string) *OverrideStore {
	if namespace == "" {
		namespace = "default"
	}
	return &OverrideStore{client: c, namespace: namespace}
}

// Load implements overrides.Store
func (s *OverrideStore) Load(ctx context.Context) (types.Overrides, error) {
	return s.client.GetOverrides(ctx, s.namespace)
}

// Save implements overrides.Store. An empty set drops the key.
func (s *OverrideStore) Save(ctx context.Context, ov types.Overrides) error {
	if len(ov) == 0 {
		return s.client.DeleteOverrides(ctx, s.namespace)
	}
	return s.client.StoreOverrides(ctx, s.namespace, ov)
}
