// Package session implements the Session State Machine (§4.6) and the
// API-Key/Origin Gate (§4.7) that runs before a Session is created.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mwillis/notifd/internal/channelauth"
	"github.com/mwillis/notifd/internal/domain"
	"github.com/mwillis/notifd/internal/hub"
	"github.com/mwillis/notifd/internal/presence"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	outboundBuffer = 64
)

// Deps bundles a Session's collaborators.
type Deps struct {
	Hub      *hub.Hub
	Roster   *presence.Roster
	Verifier *channelauth.Verifier
	Channels domain.ChannelStore
	Logger   *slog.Logger
}

// Session drives one WebSocket connection from upgrade to close: the
// handshake, inbound frame dispatch, the subscribed-channel set, and
// cleanup on disconnect.
type Session struct {
	conn     *websocket.Conn
	domainID *uuid.UUID
	deps     Deps
	socketID string

	mu         sync.Mutex
	subscribed map[string]context.CancelFunc // channel -> forwarder cancel

	out chan []byte // Writer Task's single-producer queue

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Session for an upgraded connection. domainID is non-nil iff
// the upgrade passed the API-Key/Origin Gate.
func New(conn *websocket.Conn, domainID *uuid.UUID, deps Deps) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		conn:       conn,
		domainID:   domainID,
		deps:       deps,
		socketID:   newSocketID(),
		subscribed: make(map[string]context.CancelFunc),
		out:        make(chan []byte, outboundBuffer),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run drives the Session through Connecting -> Established -> Closing ->
// Closed, blocking until the connection terminates.
func (s *Session) Run() {
	established := json.RawMessage(fmt.Sprintf(`{"socket_id":%q}`, s.socketID))
	if !s.enqueueFrame(domain.EventConnectionEstablished, "", established) {
		s.cancel()
		return
	}

	go s.writerTask()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.deps.Logger.Info("session established", slog.String("socket_id", s.socketID))

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			break
		}
		s.handleFrame(data)
	}

	s.close()
}

// handleFrame parses one inbound text frame and dispatches it. Unparseable
// frames are silently ignored.
func (s *Session) handleFrame(raw []byte) {
	var msg domain.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	switch msg.Event {
	case domain.EventSubscribe:
		s.handleSubscribe(msg.Data)
	case domain.EventUnsubscribe:
		s.handleUnsubscribe(msg.Data.Channel)
	case domain.EventPing:
		s.enqueueFrame(domain.EventPong, "", json.RawMessage(`{}`))
	}
}

// handleSubscribe implements the Subscribe algorithm in full (§4.6).
func (s *Session) handleSubscribe(data domain.ClientMessageData) {
	channel := data.Channel
	t := domain.ClassifyChannel(channel)

	var channelDataStr *string
	if len(data.ChannelData) > 0 {
		raw := string(data.ChannelData)
		channelDataStr = &raw
	}

	if domain.IsAuthenticated(t) {
		if err := s.deps.Verifier.Verify(channel, s.socketID, data.Auth, channelDataStr); err != nil {
			s.enqueueError("Auth failed for channel")
			return
		}
	}

	receiver, err := s.deps.Hub.Subscribe(s.ctx, channel)
	if err != nil {
		s.enqueueError(fmt.Sprintf("Subscribe failed: %v", err))
		return
	}

	forwardCtx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.subscribed[channel] = cancel
	s.mu.Unlock()

	if s.domainID != nil {
		s.writeAudit(channel, data)
	}

	if t == domain.Presence {
		s.joinPresence(channel, data)
	} else {
		s.enqueueFrame(domain.EventSubscriptionSucceeded, channel, nil)
	}

	go s.forwarderTask(forwardCtx, channel, receiver)
}

// writeAudit ensures a channel row exists and inserts a connected audit row.
// Failures are swallowed: audit writes are best-effort telemetry, never a
// reason to fail a subscribe.
func (s *Session) writeAudit(channel string, data domain.ClientMessageData) {
	ch, err := s.deps.Channels.Ensure(s.ctx, channel, *s.domainID)
	if err != nil {
		s.deps.Logger.Warn("audit: ensure channel failed", slog.String("channel", channel), slog.Any("error", err))
		return
	}

	connectedUser := extractUserID(data.ChannelData)
	chID := ch.ID
	if _, err := s.deps.Channels.ConnectionInsert(s.ctx, &chID, channel, *s.domainID, s.socketID, connectedUser); err != nil {
		s.deps.Logger.Warn("audit: insert connection failed", slog.String("channel", channel), slog.Any("error", err))
	}
}

func (s *Session) joinPresence(channel string, data domain.ClientMessageData) {
	userID := "anonymous"
	if id := extractUserID(data.ChannelData); id != nil {
		userID = *id
	}

	if err := s.deps.Roster.AddMember(s.ctx, channel, s.socketID, userID, data.ChannelData); err != nil {
		s.deps.Logger.Warn("presence: add member failed", slog.String("channel", channel), slog.Any("error", err))
		return
	}

	members, err := s.deps.Roster.ListMembers(s.ctx, channel)
	if err != nil {
		s.deps.Logger.Warn("presence: list members failed", slog.String("channel", channel), slog.Any("error", err))
		members = nil
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}

	payload, _ := json.Marshal(map[string]any{
		"presence": map[string]any{
			"ids":   ids,
			"hash":  map[string]any{},
			"count": len(members),
		},
	})
	s.enqueueFrame(domain.EventSubscriptionSucceeded, channel, payload)
}

// handleUnsubscribe implements the Unsubscribe algorithm (§4.6). The
// Forwarder Task is explicitly cancelled here, closing the per-subscription
// leak the original design left open.
func (s *Session) handleUnsubscribe(channel string) {
	t := domain.ClassifyChannel(channel)
	if t == domain.Presence {
		if err := s.deps.Roster.RemoveMember(s.ctx, channel, s.socketID); err != nil {
			s.deps.Logger.Warn("presence: remove member failed", slog.String("channel", channel), slog.Any("error", err))
		}
	}

	if s.domainID != nil {
		if err := s.deps.Channels.ConnectionMarkDisconnectedByChannel(s.ctx, s.socketID, channel); err != nil {
			s.deps.Logger.Warn("audit: mark disconnected failed", slog.String("channel", channel), slog.Any("error", err))
		}
	}

	s.mu.Lock()
	cancel, ok := s.subscribed[channel]
	delete(s.subscribed, channel)
	s.mu.Unlock()
	if ok {
		cancel()
	}

	s.deps.Logger.Debug("unsubscribed", slog.String("socket_id", s.socketID), slog.String("channel", channel))
}

// forwarderTask pulls from a Hub receiver and enqueues each payload verbatim
// into the Writer Task's queue, until the receiver closes or ctx is
// cancelled (on unsubscribe or session close).
func (s *Session) forwarderTask(ctx context.Context, channel string, receiver *hub.Receiver) {
	defer receiver.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-receiver.C():
			if !ok {
				return
			}
			select {
			case s.out <- payload:
			case <-ctx.Done():
				return
			}
		}
	}
}

// writerTask drains the outbound queue and writes each frame as a text
// message, exiting on the first write error.
func (s *Session) writerTask() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case payload, ok := <-s.out:
			if !ok {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close runs the Closing -> Closed transition: every Presence membership
// held by this socket is removed, audit rows are marked disconnected, and
// every Forwarder Task is cancelled.
func (s *Session) close() {
	s.mu.Lock()
	channels := make([]string, 0, len(s.subscribed))
	for ch, cancel := range s.subscribed {
		channels = append(channels, ch)
		cancel()
	}
	s.subscribed = nil
	s.mu.Unlock()

	for _, ch := range channels {
		if domain.ClassifyChannel(ch) == domain.Presence {
			if err := s.deps.Roster.RemoveMember(context.Background(), ch, s.socketID); err != nil {
				s.deps.Logger.Warn("presence: remove member on close failed", slog.String("channel", ch), slog.Any("error", err))
			}
		}
	}

	if s.domainID != nil {
		if err := s.deps.Channels.ConnectionMarkDisconnected(context.Background(), s.socketID); err != nil {
			s.deps.Logger.Warn("audit: mark disconnected on close failed", slog.Any("error", err))
		}
	}

	s.cancel()
	s.conn.Close()
	s.deps.Logger.Info("session closed", slog.String("socket_id", s.socketID))
}

// enqueueFrame marshals and enqueues a {event, channel?, data?} frame.
// Returns false if the queue could not accept it (session already closing).
func (s *Session) enqueueFrame(event, channel string, data json.RawMessage) bool {
	frame := map[string]any{"event": event}
	if channel != "" {
		frame["channel"] = channel
	}
	if data != nil {
		frame["data"] = data
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	select {
	case s.out <- payload:
		return true
	default:
		return false
	}
}

func (s *Session) enqueueError(message string) {
	data, _ := json.Marshal(map[string]any{"message": message, "code": domain.ErrorCode})
	s.enqueueFrame(domain.EventError, "", data)
}

// extractUserID reads "user_id" out of a raw channel_data JSON object, if
// present and a string.
func extractUserID(channelData json.RawMessage) *string {
	if len(channelData) == 0 {
		return nil
	}
	var v struct {
		UserID *string `json:"user_id"`
	}
	if err := json.Unmarshal(channelData, &v); err != nil {
		return nil
	}
	return v.UserID
}
