package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mwillis/notifd/internal/channelauth"
	"github.com/mwillis/notifd/internal/dashboardauth"
	"github.com/mwillis/notifd/internal/domain"
	"github.com/mwillis/notifd/internal/hub"
	"github.com/mwillis/notifd/internal/presence"
)

// ---- in-memory test doubles ----

type fakeBus struct {
	mu          sync.Mutex
	subscribers map[string][]chan []byte
	presence    map[string]map[string][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		subscribers: make(map[string][]chan []byte),
		presence:    make(map[string]map[string][]byte),
	}
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subscribers[channel] {
		ch <- payload
	}
	return int64(len(f.subscribers[channel])), nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	f.mu.Lock()
	f.subscribers[channel] = append(f.subscribers[channel], ch)
	f.mu.Unlock()
	return ch, nil
}

func (f *fakeBus) PresenceAdd(ctx context.Context, channel, socketID string, member []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.presence[channel] == nil {
		f.presence[channel] = make(map[string][]byte)
	}
	f.presence[channel][socketID] = member
	return nil
}

func (f *fakeBus) PresenceRemove(ctx context.Context, channel, socketID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.presence[channel], socketID)
	return nil
}

func (f *fakeBus) PresenceMembers(ctx context.Context, channel string) ([]domain.PresenceEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := make([]domain.PresenceEntry, 0, len(f.presence[channel]))
	for socketID, member := range f.presence[channel] {
		entries = append(entries, domain.PresenceEntry{SocketID: socketID, Member: member})
	}
	return entries, nil
}

var _ domain.Bus = (*fakeBus)(nil)

type fakeDomainStore struct {
	mu      sync.Mutex
	byKey   map[string]domain.AppDomain
	byID    map[uuid.UUID]domain.AppDomain
	byUser  map[uuid.UUID][]uuid.UUID
}

func newFakeDomainStore() *fakeDomainStore {
	return &fakeDomainStore{
		byKey:  make(map[string]domain.AppDomain),
		byID:   make(map[uuid.UUID]domain.AppDomain),
		byUser: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (f *fakeDomainStore) Create(ctx context.Context, userID uuid.UUID, domainName, key string) (domain.AppDomain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := domain.AppDomain{ID: uuid.New(), UserID: userID, DomainName: domainName, Key: key, IsActive: true, CreatedAt: time.Now()}
	f.byKey[key] = d
	f.byID[d.ID] = d
	f.byUser[userID] = append(f.byUser[userID], d.ID)
	return d, nil
}

func (f *fakeDomainStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.AppDomain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AppDomain
	for _, id := range f.byUser[userID] {
		out = append(out, f.byID[id])
	}
	return out, nil
}

func (f *fakeDomainStore) FindByKey(ctx context.Context, key string) (domain.AppDomain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byKey[key]
	if !ok || !d.IsActive {
		return domain.AppDomain{}, domain.ErrAuth
	}
	return d, nil
}

func (f *fakeDomainStore) SetActive(ctx context.Context, id, userID uuid.UUID, isActive bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok || d.UserID != userID {
		return domain.ErrNotFound
	}
	d.IsActive = isActive
	f.byID[id] = d
	f.byKey[d.Key] = d
	return nil
}

func (f *fakeDomainStore) Delete(ctx context.Context, id, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok || d.UserID != userID {
		return domain.ErrNotFound
	}
	delete(f.byID, id)
	delete(f.byKey, d.Key)
	return nil
}

var _ domain.AppDomainStore = (*fakeDomainStore)(nil)

type fakeUserStore struct {
	mu       sync.Mutex
	byEmail  map[string]domain.User
	byID     map[uuid.UUID]domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byEmail: make(map[string]domain.User), byID: make(map[uuid.UUID]domain.User)}
}

func (f *fakeUserStore) Create(ctx context.Context, name, email, passwordHash string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := domain.User{ID: uuid.New(), Name: name, Email: email, PasswordHash: passwordHash, CreatedAt: time.Now()}
	f.byEmail[email] = u
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUserStore) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

var _ domain.UserStore = (*fakeUserStore)(nil)

type fakeChannelStore struct{}

func (fakeChannelStore) Ensure(ctx context.Context, name string, domainID uuid.UUID) (domain.Channel, error) {
	return domain.Channel{ID: uuid.New(), Name: name, DomainID: domainID, CreatedAt: time.Now()}, nil
}
func (fakeChannelStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Channel, error) {
	return nil, nil
}
func (fakeChannelStore) ConnectionInsert(ctx context.Context, channelID *uuid.UUID, channelName string, domainID uuid.UUID, socketID string, connectedUser *string) (uuid.UUID, error) {
	return uuid.New(), nil
}
func (fakeChannelStore) ConnectionMarkDisconnected(ctx context.Context, socketID string) error {
	return nil
}
func (fakeChannelStore) ConnectionMarkDisconnectedByChannel(ctx context.Context, socketID, channelName string) error {
	return nil
}
func (fakeChannelStore) ActiveConnectionsByUser(ctx context.Context, userID uuid.UUID) ([]domain.WSConnection, error) {
	return nil, nil
}
func (fakeChannelStore) StatusAggregateByUser(ctx context.Context, userID uuid.UUID) ([]domain.ChannelCount, error) {
	return nil, nil
}

var _ domain.ChannelStore = (fakeChannelStore{})

type fakeRateLimiter struct{}

func (fakeRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

var _ domain.RateLimiter = fakeRateLimiter{}

type fakeLockManager struct{}

func (fakeLockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return func() {}, nil
}

var _ domain.LockManager = fakeLockManager{}

// ---- test server wiring ----

const testAppKey = "test-app-key"
const testAppSecret = "test-app-secret"

func newTestServer(t *testing.T) (*Server, *fakeDomainStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := newFakeBus()
	domains := newFakeDomainStore()

	return NewServer(Config{
		Addr:             "127.0.0.1:0",
		CORSOrigins:      nil,
		AppKey:           testAppKey,
		BroadcastRateMax: 1000,
		BroadcastRateWin: time.Minute,
	}, Deps{
		Hub:         hub.New(bus, logger),
		Roster:      presence.New(bus, logger),
		Verifier:    channelauth.New(testAppSecret),
		Users:       newFakeUserStore(),
		Domains:     domains,
		Channels:    fakeChannelStore{},
		JWTIssuer:   dashboardauth.NewJWTIssuer("test-jwt-secret-at-least-32-characters"),
		RateLimiter: fakeRateLimiter{},
		Locker:      fakeLockManager{},
	}, logger), domains
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.HealthCheck(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestBroadcastRejectsMissingKey(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/broadcast", strings.NewReader(`{"channel":"c","event":"e"}`))
	srv.Broadcast(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestBroadcastAcceptsLegacyAppKey(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	body := strings.NewReader(`{"channel":"updates","event":"ping","data":{"n":1}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/broadcast?api_key="+testAppKey, body)
	srv.Broadcast(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}
}

func TestBroadcastAcceptsPerDomainKey(t *testing.T) {
	srv, domains := newTestServer(t)
	d, err := domains.Create(context.Background(), uuid.New(), "example.com", "nk_abc123")
	if err != nil {
		t.Fatalf("create domain: %v", err)
	}

	rr := httptest.NewRecorder()
	body := strings.NewReader(`{"channel":"updates","event":"ping","data":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/broadcast?api_key="+d.Key, body)
	srv.Broadcast(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}
}

// TestPublicSubscribeReceivesBroadcast exercises the full stack: a real
// WebSocket client subscribes to a public channel, and a broadcast trigger
// delivers the event back down the socket.
func TestPublicSubscribeReceivesBroadcast(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", srv.ServeWS)
	mux.HandleFunc("POST /api/broadcast", srv.Broadcast)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read connection_established: %v", err)
	}

	subscribe := fmt.Sprintf(`{"event":%q,"data":{"channel":"public-room"}}`, domain.EventSubscribe)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(subscribe)); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read subscription_succeeded: %v", err)
	}
	var ack domain.BroadcastEvent
	if err := json.Unmarshal(msg, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Event != domain.EventSubscriptionSucceeded {
		t.Fatalf("ack event = %q, want %q", ack.Event, domain.EventSubscriptionSucceeded)
	}

	rr := httptest.NewRecorder()
	triggerBody := strings.NewReader(`{"channel":"public-room","event":"room-event","data":{"hello":"world"}}`)
	triggerReq := httptest.NewRequest(http.MethodPost, "/api/broadcast?api_key="+testAppKey, triggerBody)
	srv.Broadcast(rr, triggerReq)
	if rr.Code != http.StatusOK {
		t.Fatalf("broadcast status = %d, want 200", rr.Code)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, delivered, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read delivered event: %v", err)
	}
	var evt domain.BroadcastEvent
	if err := json.Unmarshal(delivered, &evt); err != nil {
		t.Fatalf("decode delivered event: %v", err)
	}
	if evt.Event != "room-event" || evt.Channel != "public-room" {
		t.Errorf("delivered event = %+v, want room-event on public-room", evt)
	}
}

// TestPrivateSubscribeRejectsMissingAuth exercises §4.6's auth failure path:
// a private channel subscribe with no auth signature gets pusher:error.
func TestPrivateSubscribeRejectsMissingAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", srv.ServeWS)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read connection_established: %v", err)
	}

	subscribe := fmt.Sprintf(`{"event":%q,"data":{"channel":"private-secret"}}`, domain.EventSubscribe)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(subscribe)); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	var evt domain.BroadcastEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		t.Fatalf("decode error frame: %v", err)
	}
	if evt.Event != domain.EventError {
		t.Fatalf("event = %q, want %q", evt.Event, domain.EventError)
	}
}

// TestRegisterLoginAndDashboardUser exercises the full dashboard account
// flow: register, then use the issued token to fetch the current user.
func TestRegisterLoginAndDashboardUser(t *testing.T) {
	srv, _ := newTestServer(t)

	regBody := strings.NewReader(`{"name":"Ada Lovelace","email":"ada@example.com","password":"correcthorsebattery"}`)
	regReq := httptest.NewRequest(http.MethodPost, "/auth/register", regBody)
	regRR := httptest.NewRecorder()
	srv.Register(regRR, regReq)
	if regRR.Code != http.StatusOK {
		t.Fatalf("register status = %d, body=%s", regRR.Code, regRR.Body.String())
	}
	var reg registerResponse
	if err := json.Unmarshal(regRR.Body.Bytes(), &reg); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if reg.Token == "" {
		t.Fatal("expected a non-empty token")
	}

	dupRR := httptest.NewRecorder()
	srv.Register(dupRR, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"name":"Ada","email":"ada@example.com","password":"anotherpassword"}`)))
	if dupRR.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register status = %d, want 400", dupRR.Code)
	}

	loginBody := strings.NewReader(`{"email":"ada@example.com","password":"correcthorsebattery"}`)
	loginRR := httptest.NewRecorder()
	srv.Login(loginRR, httptest.NewRequest(http.MethodPost, "/auth/login", loginBody))
	if loginRR.Code != http.StatusOK {
		t.Fatalf("login status = %d, body=%s", loginRR.Code, loginRR.Body.String())
	}
	var login loginResponse
	if err := json.Unmarshal(loginRR.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	userReq := httptest.NewRequest(http.MethodGet, "/dashboard/user", nil)
	userReq.Header.Set("Authorization", "Bearer "+login.Token)
	auth := dashboardauth.RequireUser(srv.jwt)
	userRR := httptest.NewRecorder()
	auth(http.HandlerFunc(srv.GetCurrentUser)).ServeHTTP(userRR, userReq)
	if userRR.Code != http.StatusOK {
		t.Fatalf("dashboard/user status = %d, body=%s", userRR.Code, userRR.Body.String())
	}
	var user dashboardUserResponse
	if err := json.Unmarshal(userRR.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode dashboard user: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Errorf("email = %q, want ada@example.com", user.Email)
	}
}
