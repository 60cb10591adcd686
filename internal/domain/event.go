package domain

import "encoding/json"

// BroadcastEvent is the canonical wire envelope: every publisher emits it
// and every subscriber receives it, serialized as UTF-8 JSON.
type BroadcastEvent struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// ClientMessage is the tagged union of inbound WebSocket frames a session
// accepts, discriminated by the wire "event" field. Unknown discriminators
// deserialize into a message with an empty Event and are dropped by the
// caller.
type ClientMessage struct {
	Event string              `json:"event"`
	Data  ClientMessageData   `json:"data"`
}

// ClientMessageData is the union of payload shapes across subscribe,
// unsubscribe, and ping frames; unused fields are simply absent on the wire.
type ClientMessageData struct {
	Channel     string          `json:"channel"`
	Auth        *string         `json:"auth,omitempty"`
	ChannelData json.RawMessage `json:"channel_data,omitempty"`
}

const (
	EventSubscribe   = "pusher:subscribe"
	EventUnsubscribe = "pusher:unsubscribe"
	EventPing        = "pusher:ping"

	EventConnectionEstablished  = "connection_established"
	EventSubscriptionSucceeded  = "pusher_internal:subscription_succeeded"
	EventPong                   = "pusher:pong"
	EventError                  = "pusher:error"
)

// ErrorCode is the single error code this implementation emits in
// pusher:error frames, mirroring the reference wire protocol.
const ErrorCode = 4009
