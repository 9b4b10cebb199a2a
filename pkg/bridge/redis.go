// Package bridge wires the accessory protocol engine to the rest of the
// librescoot fleet over Redis, the same integration point
// pkg/redis and pkg/service held for the teacher's nRF52 link: hash writes
// for state, pub/sub for change notification, and a command list for
// host-to-accessory requests.
package bridge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is a thin wrapper over go-redis exposing the handful of
// operations the bridge needs, in the same shape as the teacher's
// pkg/redis.Client.
type RedisClient struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisClient dials addr and verifies connectivity with a PING before
// returning, so startup fails fast rather than surfacing the error on the
// first attribute access.
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &RedisClient{client: client, ctx: ctx}, nil
}

func (c *RedisClient) Close() error {
	return c.client.Close()
}

func (c *RedisClient) WriteString(key, field, value string) error {
	return c.client.HSet(c.ctx, key, field, value).Err()
}

func (c *RedisClient) WriteAndPublishString(key, field, value string) error {
	pipe := c.client.Pipeline()
	pipe.HSet(c.ctx, key, field, value)
	pipe.Publish(c.ctx, key, field)
	_, err := pipe.Exec(c.ctx)
	return err
}

func (c *RedisClient) WriteInt(key, field string, value int) error {
	return c.client.HSet(c.ctx, key, field, value).Err()
}

func (c *RedisClient) GetString(key, field string) (string, error) {
	val, err := c.client.HGet(c.ctx, key, field).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("key %s field %s not found", key, field)
	}
	return val, err
}

func (c *RedisClient) GetInt(key, field string) (int, error) {
	val, err := c.GetString(key, field)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

// Subscribe returns a channel of messages on channel and a function to stop
// the subscription.
func (c *RedisClient) Subscribe(channel string) (<-chan *redis.Message, func()) {
	pubsub := c.client.Subscribe(c.ctx, channel)
	ch := pubsub.Channel()
	return ch, func() { pubsub.Close() }
}

func (c *RedisClient) Publish(channel, message string) error {
	return c.client.Publish(c.ctx, channel, message).Err()
}

func (c *RedisClient) LPush(key, value string) error {
	return c.client.LPush(c.ctx, key, value).Err()
}

// BRPop blocks up to timeout (0 means forever) waiting for a value on key.
// A timeout is reported as a nil slice with a nil error, matching the
// teacher's convention of treating it as "nothing happened" rather than a
// failure.
func (c *RedisClient) BRPop(timeout time.Duration, key string) ([]string, error) {
	result, err := c.client.BRPop(c.ctx, timeout, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("brpop %s: %w", key, err)
	}
	return result, nil
}
