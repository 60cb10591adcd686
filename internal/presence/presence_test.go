package presence

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/mwillis/notifd/internal/domain"
)

type fakeBus struct {
	members map[string]map[string][]byte // channel -> socketID -> raw member
}

func newFakeBus() *fakeBus {
	return &fakeBus{members: make(map[string]map[string][]byte)}
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	return 0, nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (f *fakeBus) PresenceAdd(ctx context.Context, channel, socketID string, member []byte) error {
	if f.members[channel] == nil {
		f.members[channel] = make(map[string][]byte)
	}
	f.members[channel][socketID] = member
	return nil
}

func (f *fakeBus) PresenceRemove(ctx context.Context, channel, socketID string) error {
	delete(f.members[channel], socketID)
	return nil
}

func (f *fakeBus) PresenceMembers(ctx context.Context, channel string) ([]domain.PresenceEntry, error) {
	var out []domain.PresenceEntry
	for socketID, data := range f.members[channel] {
		out = append(out, domain.PresenceEntry{SocketID: socketID, Member: data})
	}
	return out, nil
}

var _ domain.Bus = (*fakeBus)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAddListRemoveMember(t *testing.T) {
	bus := newFakeBus()
	r := New(bus, testLogger())
	ctx := context.Background()

	if err := r.AddMember(ctx, "presence-chat", "sock.1", "user-1", json.RawMessage(`{"name":"alice"}`)); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := r.AddMember(ctx, "presence-chat", "sock.2", "user-2", nil); err != nil {
		t.Fatalf("add member: %v", err)
	}

	users, err := r.ListMembers(ctx, "presence-chat")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 members, got %d", len(users))
	}

	if err := r.RemoveMember(ctx, "presence-chat", "sock.1"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	users, err = r.ListMembers(ctx, "presence-chat")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 member after removal, got %d", len(users))
	}
	if users[0].UserID != "user-2" {
		t.Fatalf("unexpected remaining member: %+v", users[0])
	}
}

func TestListMembersSkipsMalformedEntries(t *testing.T) {
	bus := newFakeBus()
	bus.members["presence-chat"] = map[string][]byte{
		"sock.good": []byte(`{"user_id":"user-1","socket_id":"sock.good"}`),
		"sock.bad":  []byte(`not json`),
	}
	r := New(bus, testLogger())

	users, err := r.ListMembers(context.Background(), "presence-chat")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected malformed entry to be skipped, got %d members", len(users))
	}
	if users[0].UserID != "user-1" {
		t.Fatalf("unexpected member: %+v", users[0])
	}
}
