// Package hub implements the Channel Hub (§4.4): a concurrency-safe mapping
// from channel name to a broadcast distributor, guaranteeing at-most-one
// upstream bus subscription per channel per process.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mwillis/notifd/internal/domain"
)

// entry is a Hub's per-channel state: the broadcast distributor fanning out
// to local subscribers, plus the forwarder goroutine draining the bus.
type entry struct {
	bc     *broadcaster
	cancel context.CancelFunc
}

// Hub maintains, for each channel currently of interest to this process, a
// single upstream subscription fanned out to many local subscribers.
type Hub struct {
	mu      sync.RWMutex
	entries map[string]*entry
	bus     domain.Bus
	logger  *slog.Logger
}

// New returns a Hub backed by bus.
func New(bus domain.Bus, logger *slog.Logger) *Hub {
	return &Hub{
		entries: make(map[string]*entry),
		bus:     bus,
		logger:  logger,
	}
}

// Subscribe returns a local Receiver attached to channel's broadcast
// distributor, creating the upstream bus subscription on first local
// subscribe. The critical section below — check-then-create under an
// exclusive lock — is what ensures at-most-one upstream subscription per
// channel: concurrent callers racing to subscribe to a cold channel will
// all observe the same entry once the lock is released.
func (h *Hub) Subscribe(ctx context.Context, channel string) (*Receiver, error) {
	h.mu.Lock()
	if e, ok := h.entries[channel]; ok {
		h.mu.Unlock()
		return e.bc.subscribe(), nil
	}

	// Not found: still holding the lock, attempt to create the upstream
	// subscription before admitting any other caller for this channel.
	msgCh, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.mu.Unlock()
		return nil, fmt.Errorf("hub: subscribe %s: %w", channel, err)
	}

	bc := newBroadcaster(channel, h.logger)
	forwardCtx, cancel := context.WithCancel(context.Background())
	e := &entry{bc: bc, cancel: cancel}
	h.entries[channel] = e
	h.mu.Unlock()

	go h.forward(forwardCtx, channel, msgCh, bc)

	h.logger.Info("hub: subscribed to channel", slog.String("channel", channel))
	return bc.subscribe(), nil
}

// forward drains the bus's sequence for channel and feeds each payload into
// the broadcaster, single-threaded per channel so ordering within a channel
// is preserved exactly as the bus emits it.
func (h *Hub) forward(ctx context.Context, channel string, msgCh <-chan []byte, bc *broadcaster) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-msgCh:
			if !ok {
				h.logger.Warn("hub: upstream subscription closed", slog.String("channel", channel))
				return
			}
			bc.send(payload)
		}
	}
}

// Broadcast assembles the canonical wire event and publishes it via the bus.
// No local delivery bypass: the publisher and local subscribers all receive
// via the bus, so delivery semantics are identical regardless of
// colocation.
func (h *Hub) Broadcast(ctx context.Context, channel, event string, data json.RawMessage) (int64, error) {
	wire := domain.BroadcastEvent{Event: event, Channel: channel, Data: data}
	payload, err := json.Marshal(wire)
	if err != nil {
		return 0, fmt.Errorf("%w: marshal broadcast event: %v", domain.ErrSerialization, err)
	}

	count, err := h.bus.Publish(ctx, channel, payload)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Unsubscribe removes a channel's Hub entry, tearing down its forwarder and
// closing every local receiver. This is a best-effort cleanup hook: it is
// not called from the happy path in the current design, matching §4.4 — the
// entry and its forwarder persist for the process lifetime otherwise.
func (h *Hub) Unsubscribe(channel string) {
	h.mu.Lock()
	e, ok := h.entries[channel]
	if ok {
		delete(h.entries, channel)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	e.cancel()
	e.bc.closeAll()
}
