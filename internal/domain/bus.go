package domain

import (
	"context"
	"time"
)

// Bus is the Pub/Sub Adapter boundary (§4.3): the message bus plus the
// presence key-value primitives it backs. The core treats this purely as
// an external collaborator — the Redis-backed implementation lives in
// internal/busredis.
type Bus interface {
	// Publish delivers payload to channel, returning the count of upstream
	// subscribers reached.
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)

	// Subscribe returns a channel yielding every payload published to
	// channel from now on. The returned channel is closed only on an
	// unrecoverable transport error or context cancellation.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)

	PresenceAdd(ctx context.Context, channel, socketID string, member []byte) error
	PresenceRemove(ctx context.Context, channel, socketID string) error
	PresenceMembers(ctx context.Context, channel string) ([]PresenceEntry, error)
}

// PresenceEntry is a raw (socket_id, serialized_member) pair as stored on
// the bus, before the Presence Roster parses it into a PresenceMember.
type PresenceEntry struct {
	SocketID string
	Member   []byte
}

// RateLimiter provides distributed rate limiting, backed by the bus.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking, used to defend against
// concurrent dashboard domain-creation races across replicas.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
