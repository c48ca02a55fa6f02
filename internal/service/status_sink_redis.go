package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"memory-filter/internal/domain"
)

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisStatusPublisher publica los eventos de estado en un canal por
// conversación para que la UI del host pueda suscribirse.
type RedisStatusPublisher struct {
	client redisPublisher
	prefix string
}

func NewRedisStatusPublisher(client *redis.Client) *RedisStatusPublisher {
	if client == nil {
		return nil
	}
	return &RedisStatusPublisher{
		client: client,
		prefix: "memory:status:",
	}
}

// Sink devuelve el sink para una conversación. Sin chatID los eventos van al
// canal "memory:status:global".
func (p *RedisStatusPublisher) Sink(chatID string) StatusSink {
	if p == nil || p.client == nil {
		return NopStatusSink{}
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		chatID = "global"
	}
	return &redisStatusSink{client: p.client, channel: p.prefix + chatID}
}

type redisStatusSink struct {
	client  redisPublisher
	channel string
}

func (s *redisStatusSink) Emit(ctx context.Context, event domain.StatusEvent) error {
	payload, err := json.Marshal(event.Envelope())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.Publish(ctx, s.channel, payload).Err()
}
