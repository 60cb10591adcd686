package domain

import "encoding/json"

// PresenceMember is the record stored in the Presence Roster, uniquely
// identified within a channel by SocketID. The same UserID may appear on
// multiple sockets; each is a distinct member.
type PresenceMember struct {
	UserID    string          `json:"user_id"`
	UserInfo  json.RawMessage `json:"user_info,omitempty"`
	SocketID  string          `json:"socket_id"`
}

// PresenceUser is the external projection of a member with the socket id
// dropped.
type PresenceUser struct {
	UserID   string          `json:"user_id"`
	UserInfo json.RawMessage `json:"user_info,omitempty"`
}
