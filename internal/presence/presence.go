// Package presence implements the Presence Roster (§4.5): tracking which
// users are currently joined to a presence channel.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mwillis/notifd/internal/domain"
)

// Roster tracks channel membership via a domain.Bus's presence primitives.
type Roster struct {
	bus    domain.Bus
	logger *slog.Logger
}

// New returns a Roster backed by bus.
func New(bus domain.Bus, logger *slog.Logger) *Roster {
	return &Roster{bus: bus, logger: logger}
}

// AddMember records socketID as joined to channel on behalf of userID.
func (r *Roster) AddMember(ctx context.Context, channel, socketID, userID string, userInfo json.RawMessage) error {
	m := domain.PresenceMember{UserID: userID, UserInfo: userInfo, SocketID: socketID}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: marshal presence member: %v", domain.ErrSerialization, err)
	}

	if err := r.bus.PresenceAdd(ctx, channel, socketID, data); err != nil {
		return err
	}

	r.logger.Info("presence member added",
		slog.String("channel", channel),
		slog.String("socket_id", socketID),
		slog.String("user_id", userID),
	)
	return nil
}

// RemoveMember removes socketID's membership from channel.
func (r *Roster) RemoveMember(ctx context.Context, channel, socketID string) error {
	if err := r.bus.PresenceRemove(ctx, channel, socketID); err != nil {
		return err
	}

	r.logger.Info("presence member removed",
		slog.String("channel", channel),
		slog.String("socket_id", socketID),
	)
	return nil
}

// ListMembers returns the current members of channel, one per distinct
// socket. Entries that fail to parse are skipped rather than failing the
// whole listing — a malformed record for one socket shouldn't hide every
// other member.
func (r *Roster) ListMembers(ctx context.Context, channel string) ([]domain.PresenceUser, error) {
	entries, err := r.bus.PresenceMembers(ctx, channel)
	if err != nil {
		return nil, err
	}

	users := make([]domain.PresenceUser, 0, len(entries))
	for _, e := range entries {
		var m domain.PresenceMember
		if err := json.Unmarshal(e.Member, &m); err != nil {
			r.logger.Warn("presence: skipping malformed member record",
				slog.String("channel", channel),
				slog.String("socket_id", e.SocketID),
			)
			continue
		}
		users = append(users, domain.PresenceUser{UserID: m.UserID, UserInfo: m.UserInfo})
	}
	return users, nil
}
