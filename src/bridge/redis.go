package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/relaychat/server/src/types"
	"github.com/rs/zerolog"
)

// relayEnvelope wraps an outbound frame with the originating instance ID
// so that a node can skip frames it published itself.
type relayEnvelope struct {
	InstanceID string        `json:"instance_id"`
	Frame      types.Message `json:"frame"`
}

// RedisBridge relays outbound chat frames between server instances over
// Redis pub/sub. Each chat channel gets its own relay topic; frames
// addressed to every connected client (directory updates) travel on a
// shared topic. Channel and session state never cross the bridge — every
// instance stays authoritative for its own connections.
type RedisBridge struct {
	client     *redis.Client
	prefix     string
	instanceID string
	hub        BroadcastTarget
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisBridge creates a bridge that relays broadcast frames over Redis
// pub/sub.
func NewRedisBridge(cfg *RedisConfig, hub BroadcastTarget, logger zerolog.Logger) *RedisBridge {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBridge{
		client:     client,
		prefix:     cfg.Prefix,
		instanceID: uuid.New().String(),
		hub:        hub,
		logger:     logger.With().Str("component", "redis-bridge").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// allTopic carries frames addressed to every connected client.
func (b *RedisBridge) allTopic() string {
	return b.prefix + "all"
}

// channelTopic carries broadcasts for one chat channel.
func (b *RedisBridge) channelTopic(channelID string) string {
	return b.prefix + "channel:" + channelID
}

// topicFor maps a frame's broadcast-group tag to its relay topic.
func (b *RedisBridge) topicFor(msg types.Message) string {
	if msg.Channel == "" {
		return b.allTopic()
	}
	return b.channelTopic(msg.Channel)
}

// Start subscribes to the relay topics and begins forwarding frames.
func (b *RedisBridge) Start() error {
	if err := b.client.Ping(b.ctx).Err(); err != nil {
		return err
	}

	// One pattern per topic family: every channel topic, plus the shared
	// all-clients topic (patterns without wildcards match literally).
	sub := b.client.PSubscribe(b.ctx, b.channelTopic("*"), b.allTopic())

	// Wait for subscription confirmation.
	if _, err := sub.Receive(b.ctx); err != nil {
		return err
	}

	b.mu.Lock()
	b.active = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.listen(sub)

	b.logger.Info().
		Str("instance_id", b.instanceID).
		Str("channel_topics", b.channelTopic("*")).
		Str("all_topic", b.allTopic()).
		Msg("redis bridge started")
	return nil
}

// Publish sends a frame to all other instances on the topic matching its
// broadcast group.
func (b *RedisBridge) Publish(msg types.Message) error {
	env := relayEnvelope{
		InstanceID: b.instanceID,
		Frame:      msg,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.client.Publish(b.ctx, b.topicFor(msg), data).Err()
}

// Stop unsubscribes and closes the Redis connection.
func (b *RedisBridge) Stop() error {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

// Available reports whether the bridge is connected.
func (b *RedisBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// listen reads frames from the Redis subscription and forwards them to the
// local hub.
func (b *RedisBridge) listen(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handleRelayFrame(msg)
		case <-b.ctx.Done():
			return
		}
	}
}

// handleRelayFrame decodes an envelope and forwards non-self frames to the
// hub for local delivery only.
func (b *RedisBridge) handleRelayFrame(msg *redis.Message) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		b.logger.Error().Err(err).Str("topic", msg.Channel).Msg("failed to decode relay frame")
		return
	}

	// Skip frames that originated from this instance.
	if env.InstanceID == b.instanceID {
		return
	}

	b.logger.Debug().
		Str("from_instance", env.InstanceID).
		Str("topic", msg.Channel).
		Str("channel", env.Frame.Channel).
		Msg("relaying frame from redis")

	b.hub.BroadcastToLocal(env.Frame)
}
