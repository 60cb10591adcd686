// Package httpapi wires the HTTP surface (§E): the health check, the
// WebSocket upgrade endpoint, the server-to-server broadcast trigger, and
// the dashboard account/domain/channel management API.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mwillis/notifd/internal/channelauth"
	"github.com/mwillis/notifd/internal/dashboardauth"
	"github.com/mwillis/notifd/internal/domain"
	"github.com/mwillis/notifd/internal/hub"
	"github.com/mwillis/notifd/internal/presence"
	"github.com/mwillis/notifd/internal/server/middleware"
	"github.com/mwillis/notifd/internal/session"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr             string
	CORSOrigins      []string
	AppKey           string
	BroadcastRateMax int
	BroadcastRateWin time.Duration
}

// Server is the HTTP + WebSocket API server for the notification service.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger

	appKey   string
	hub      *hub.Hub
	roster   *presence.Roster
	verifier *channelauth.Verifier
	gate     *session.Gate
	upgrader websocket.Upgrader

	users    domain.UserStore
	domains  domain.AppDomainStore
	channels domain.ChannelStore

	jwt    *dashboardauth.JWTIssuer
	locker domain.LockManager
}

// Deps aggregates every collaborator Server needs.
type Deps struct {
	Hub         *hub.Hub
	Roster      *presence.Roster
	Verifier    *channelauth.Verifier
	Users       domain.UserStore
	Domains     domain.AppDomainStore
	Channels    domain.ChannelStore
	JWTIssuer   *dashboardauth.JWTIssuer
	RateLimiter domain.RateLimiter
	Locker      domain.LockManager
}

// NewServer creates a Server with all routes registered and the middleware
// chain applied.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		logger:   logger,
		appKey:   cfg.AppKey,
		hub:      deps.Hub,
		roster:   deps.Roster,
		verifier: deps.Verifier,
		gate:     session.NewGate(deps.Domains),
		users:    deps.Users,
		domains:  deps.Domains,
		channels: deps.Channels,
		jwt:      deps.JWTIssuer,
		locker:   deps.Locker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.HealthCheck)
	mux.HandleFunc("GET /ws", s.ServeWS)
	mux.HandleFunc("POST /api/broadcast", s.Broadcast)

	mux.HandleFunc("POST /auth/register", s.Register)
	mux.HandleFunc("POST /auth/login", s.Login)

	auth := dashboardauth.RequireUser(deps.JWTIssuer)
	mux.Handle("GET /dashboard/user", auth(http.HandlerFunc(s.GetCurrentUser)))
	mux.Handle("GET /dashboard/domains", auth(http.HandlerFunc(s.ListDomains)))
	mux.Handle("POST /dashboard/domains", auth(http.HandlerFunc(s.CreateDomain)))
	mux.Handle("PATCH /dashboard/domains/{id}", auth(http.HandlerFunc(s.UpdateDomain)))
	mux.Handle("DELETE /dashboard/domains/{id}", auth(http.HandlerFunc(s.DeleteDomain)))
	mux.Handle("GET /dashboard/channels", auth(http.HandlerFunc(s.ListChannels)))
	mux.Handle("GET /dashboard/ws-status", auth(http.HandlerFunc(s.WSStatus)))

	var h http.Handler = mux
	if deps.RateLimiter != nil {
		rateMax := cfg.BroadcastRateMax
		if rateMax <= 0 {
			rateMax = 100
		}
		rateWin := cfg.BroadcastRateWin
		if rateWin <= 0 {
			rateWin = time.Minute
		}
		h = s.rateLimitBroadcastOnly(deps.RateLimiter, rateMax, rateWin, h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// rateLimitBroadcastOnly applies the sliding-window rate limiter exclusively
// to POST /api/broadcast, leaving every other route unlimited.
func (s *Server) rateLimitBroadcastOnly(limiter domain.RateLimiter, limit int, window time.Duration, next http.Handler) http.Handler {
	limited := middleware.RateLimit(limiter, limit, window)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/broadcast" {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("httpapi: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpapi: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("httpapi: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	return nil
}
