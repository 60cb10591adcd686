package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/mwillis/notifd/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	channelKeyPrefix      = "notif:channel:"
	presenceSetPrefix     = "notif:presence:"
	presenceHashPrefix    = "notif:presence_hash:"
)

func channelKey(channel string) string {
	return channelKeyPrefix + channel
}

func presenceSetKey(channel string) string {
	return presenceSetPrefix + channel
}

func presenceHashKey(channel string) string {
	return presenceHashPrefix + channel
}

// Bus implements domain.Bus using Redis Pub/Sub for channel fan-out and
// Redis SET/HASH pairs for presence storage.
type Bus struct {
	rdb *redis.Client
}

// NewBus creates a Bus backed by the given Client.
func NewBus(c *Client) *Bus {
	return &Bus{rdb: c.Underlying()}
}

// Publish delivers payload to the named channel, returning the number of
// upstream subscribers reached.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	count, err := b.rdb.Publish(ctx, channelKey(channel), payload).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: publish %s: %v", domain.ErrBus, channel, err)
	}
	return count, nil
}

// Subscribe opens a Redis Pub/Sub subscription for channel and forwards
// every payload it yields onto the returned channel until ctx is cancelled
// or the upstream subscription ends unrecoverably.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	key := channelKey(channel)

	var pubsub *redis.PubSub
	if hasPattern(key) {
		pubsub = b.rdb.PSubscribe(ctx, key)
	} else {
		pubsub = b.rdb.Subscribe(ctx, key)
	}

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", domain.ErrBus, channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func hasPattern(key string) bool {
	return strings.ContainsAny(key, "*?[")
}

// PresenceAdd stores a member's serialized record under channel's presence
// set and hash.
func (b *Bus) PresenceAdd(ctx context.Context, channel, socketID string, member []byte) error {
	pipe := b.rdb.TxPipeline()
	pipe.SAdd(ctx, presenceSetKey(channel), socketID)
	pipe.HSet(ctx, presenceHashKey(channel), socketID, member)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: presence add %s/%s: %v", domain.ErrBus, channel, socketID, err)
	}
	return nil
}

// PresenceRemove removes a member from channel's presence set and hash.
func (b *Bus) PresenceRemove(ctx context.Context, channel, socketID string) error {
	pipe := b.rdb.TxPipeline()
	pipe.SRem(ctx, presenceSetKey(channel), socketID)
	pipe.HDel(ctx, presenceHashKey(channel), socketID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: presence remove %s/%s: %v", domain.ErrBus, channel, socketID, err)
	}
	return nil
}

// PresenceMembers returns every (socket_id, serialized_member) pair
// currently stored for channel.
func (b *Bus) PresenceMembers(ctx context.Context, channel string) ([]domain.PresenceEntry, error) {
	m, err := b.rdb.HGetAll(ctx, presenceHashKey(channel)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: presence members %s: %v", domain.ErrBus, channel, err)
	}
	entries := make([]domain.PresenceEntry, 0, len(m))
	for socketID, member := range m {
		entries = append(entries, domain.PresenceEntry{SocketID: socketID, Member: []byte(member)})
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.Bus = (*Bus)(nil)
