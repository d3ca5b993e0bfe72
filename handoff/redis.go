package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStaging keeps staged recoveries in redis so any instance can resume them.
type RedisStaging struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStaging creates a redis-backed staging area.
func NewRedisStaging(client *redis.Client, prefix string, ttl time.Duration) *RedisStaging {
	if prefix == "" {
		prefix = "taxhub:handoff:"
	}
	if ttl <= 0 {
		ttl = DefaultStagingTTL
	}
	return &RedisStaging{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStaging) Stage(ctx context.Context, sessionID string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode staged message: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+sessionID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("stage conversation: %w", err)
	}
	return nil
}

func (s *RedisStaging) Take(ctx context.Context, sessionID string) (Message, bool, error) {
	data, err := s.client.GetDel(ctx, s.prefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("take staged conversation: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, false, fmt.Errorf("decode staged message: %w", err)
	}
	return msg, true, nil
}

type bridgeEnvelope struct {
	Origin  string  `json:"origin"`
	Message Message `json:"message"`
}

// bridgeBuffer is the number of local messages queued for redis before new
// ones are dropped.
const bridgeBuffer = 64

// RedisBridge relays bus messages between server instances over redis pub/sub.
type RedisBridge struct {
	bus     *Bus
	client  *redis.Client
	channel string
	origin  string
	out     chan Message
	logger  *slog.Logger
}

// NewRedisBridge creates a bridge for bus on channel.
func NewRedisBridge(bus *Bus, client *redis.Client, channel string, logger *slog.Logger) *RedisBridge {
	if channel == "" {
		channel = "taxhub:handoff"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBridge{
		bus:     bus,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		out:     make(chan Message, bridgeBuffer),
		logger:  logger,
	}
}

// enqueue is the bus listener; it hands local messages to Run without
// blocking the publisher.
func (b *RedisBridge) enqueue(msg Message) {
	if msg.remote {
		return
	}
	select {
	case b.out <- msg:
	default:
		b.logger.Warn("hand-off bridge queue full, dropping message", "type", msg.Type)
	}
}

func (b *RedisBridge) publish(ctx context.Context, msg Message) {
	data, err := json.Marshal(bridgeEnvelope{Origin: b.origin, Message: msg})
	if err != nil {
		b.logger.Error("encode bridged message", "error", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := b.client.Publish(pubCtx, b.channel, data).Err(); err != nil {
		b.logger.Warn("publish bridged message", "error", err, "type", msg.Type)
	}
}

// Run bridges until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	unsubscribe := b.bus.Subscribe(b.enqueue)
	defer unsubscribe()

	b.logger.Info("hand-off bridge started", "channel", b.channel, "origin", b.origin)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-b.out:
			b.publish(ctx, msg)
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var env bridgeEnvelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				b.logger.Warn("invalid bridged message", "error", err)
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			msg := env.Message
			msg.remote = true
			b.bus.Publish(msg)
		}
	}
}
