package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// SessionChannel carries session status changes for one tenant to every
// relay instance.
func SessionChannel(tenantID string) string {
	return fmt.Sprintf("sessions:%s", tenantID)
}

// BridgeEventsChannel is where the messaging bridge publishes lifecycle
// events for one tenant's client.
func BridgeEventsChannel(tenantID string) string {
	return fmt.Sprintf("bridge:events:%s", tenantID)
}
