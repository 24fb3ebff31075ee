package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"soundwork/pkg/ledger"
)

const DefaultChannel = "soundwork:events"

// Envelope is the wire form of a relayed event. Origin identifies the
// publishing instance so it can ignore its own messages.
type Envelope struct {
	Origin string       `json:"origin"`
	Event  ledger.Event `json:"event"`
}

func Encode(origin string, ev ledger.Event) ([]byte, error) {
	return json.Marshal(Envelope{Origin: origin, Event: ev})
}

func Decode(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Origin == "" {
		return Envelope{}, errors.New("decode envelope: missing origin")
	}
	return env, nil
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisPublisher pushes committed events onto a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	origin  string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel, origin: uuid.NewString()}
}

// Origin is the instance id stamped on every envelope.
func (p *RedisPublisher) Origin() string { return p.origin }

func (p *RedisPublisher) Publish(ctx context.Context, ev ledger.Event) error {
	payload, err := Encode(p.origin, ev)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Sink receives relayed events. feed.Hub satisfies it.
type Sink interface {
	Publish(ctx context.Context, ev ledger.Event) error
}

// Relay forwards events published by other instances into a local sink.
type Relay struct {
	client  *redis.Client
	channel string
	origin  string
	sink    Sink
	log     *zap.Logger
}

func NewRelay(client *redis.Client, channel, origin string, sink Sink, log *zap.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{client: client, channel: channel, origin: origin, sink: sink, log: log}
}

// Run subscribes and blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, []byte(msg.Payload))
		}
	}
}

func (r *Relay) handle(ctx context.Context, payload []byte) {
	env, err := Decode(payload)
	if err != nil {
		r.log.Warn("dropping relay message", zap.Error(err))
		return
	}
	if env.Origin == r.origin {
		return
	}
	if err := r.sink.Publish(ctx, env.Event); err != nil {
		r.log.Warn("relay sink failed", zap.Int64("seq", env.Event.Seq), zap.Error(err))
	}
}
