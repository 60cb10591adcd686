package hub

import (
	"log/slog"
	"sync"
)

// receiverCapacity is the fixed per-subscriber buffer depth (§4.4). A local
// receiver that lags beyond this many unread messages has its oldest
// messages dropped — the only place delivery to local sockets can be lossy.
const receiverCapacity = 64

// broadcaster fans a single upstream sequence of payloads out to many local
// subscribers, each with its own bounded buffer.
type broadcaster struct {
	mu      sync.RWMutex
	subs    map[uint64]chan []byte
	nextID  uint64
	logger  *slog.Logger
	channel string
}

func newBroadcaster(channel string, logger *slog.Logger) *broadcaster {
	return &broadcaster{
		subs:    make(map[uint64]chan []byte),
		logger:  logger,
		channel: channel,
	}
}

// subscribe derives a fresh receiver attached to this broadcaster.
func (b *broadcaster) subscribe() *Receiver {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan []byte, receiverCapacity)
	b.subs[id] = ch

	return &Receiver{id: id, ch: ch, b: b}
}

// unsubscribe detaches a single receiver. Safe to call more than once.
func (b *broadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// send delivers payload to every current subscriber, dropping it for any
// subscriber whose buffer is already full (lagging-reader policy).
func (b *broadcaster) send(payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- payload:
		default:
			b.logger.Warn("hub: dropping message for lagging receiver",
				slog.String("channel", b.channel),
				slog.Uint64("receiver_id", id),
			)
		}
	}
}

// closeAll closes every subscriber channel, used when the broadcaster's
// owning entry is torn down.
func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

// Receiver is a single local subscription to a channel's broadcaster.
type Receiver struct {
	id uint64
	ch chan []byte
	b  *broadcaster
}

// C returns the channel on which payloads arrive. It closes when Close is
// called or the owning broadcaster is torn down.
func (r *Receiver) C() <-chan []byte {
	return r.ch
}

// Close detaches this receiver from its broadcaster.
func (r *Receiver) Close() {
	r.b.unsubscribe(r.id)
}
