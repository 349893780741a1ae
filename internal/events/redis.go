package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"docspace/internal/document/model"
	"docspace/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	Channel        = "docspace:events"
	publishTimeout = 2 * time.Second
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// ConnectRedis opens a client and pings it with exponential backoff until
// ctx expires.
func ConnectRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	wait := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err := client.Ping(ctx).Err()
		if err == nil {
			logger.Log.Info("connected to redis", zap.String("addr", opts.Addr), zap.Int("attempts", attempt))
			return client, nil
		}
		logger.Log.Warn("redis connection failed, retrying",
			zap.String("addr", opts.Addr), zap.Int("attempt", attempt), zap.Duration("next_retry_in", wait), zap.Error(err))

		select {
		case <-ctx.Done():
			client.Close()
			return nil, fmt.Errorf("redis unavailable at %s after %d attempts: %w", opts.Addr, attempt, err)
		case <-time.After(wait):
		}
		if wait *= 2; wait > 5*time.Second {
			wait = 5 * time.Second
		}
	}
}

// RedisBus shares change events between instances over Redis pub/sub.
// Events carry the publishing instance's origin id so Relay can drop its
// own echoes.
type RedisBus struct {
	client  *redis.Client
	origin  string
	channel string
}

func NewRedisBus(client *redis.Client, origin string) *RedisBus {
	return &RedisBus{client: client, origin: origin, channel: Channel}
}

func (b *RedisBus) Publish(ctx context.Context, ev model.Event) {
	ev.Origin = b.origin
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling event for redis: %v", err)
		return
	}

	// The request may already be finished; the event should still go out.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := b.client.Publish(pubCtx, b.channel, payload).Err(); err != nil {
		logger.Log.Error("failed to publish event", zap.String("type", ev.Type), zap.String("document_id", ev.DocumentID), zap.Error(err))
	}
}

// Relay forwards events published by other instances into sink until ctx
// is cancelled.
func (b *RedisBus) Relay(ctx context.Context, sink Sink) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(ctx, msg.Payload, sink)
		}
	}
}

func (b *RedisBus) handle(ctx context.Context, payload string, sink Sink) {
	var ev model.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		logger.Sugar.Warnf("Dropping malformed event from redis: %v", err)
		return
	}
	if ev.Origin == b.origin {
		return
	}
	sink.Publish(ctx, ev)
}
