package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mwillis/notifd/internal/dashboardauth"
)

const domainCreateLockTTL = 5 * time.Second

type dashboardUserResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

// GetCurrentUser handles GET /dashboard/user.
func (s *Server) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := dashboardauth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authenticated user")
		return
	}

	user, err := s.users.GetByID(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dashboardUserResponse{
		ID:        user.ID.String(),
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	})
}

type domainResponse struct {
	ID         string `json:"id"`
	DomainName string `json:"domain_name"`
	Key        string `json:"key"`
	IsActive   bool   `json:"is_active"`
	CreatedAt  string `json:"created_at"`
}

// ListDomains handles GET /dashboard/domains.
func (s *Server) ListDomains(w http.ResponseWriter, r *http.Request) {
	userID, ok := dashboardauth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authenticated user")
		return
	}

	rows, err := s.domains.ListByUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]domainResponse, 0, len(rows))
	for _, d := range rows {
		resp = append(resp, domainResponse{
			ID:         d.ID.String(),
			DomainName: d.DomainName,
			Key:        d.Key,
			IsActive:   d.IsActive,
			CreatedAt:  d.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type createDomainRequest struct {
	DomainName string `json:"domain_name"`
}

// CreateDomain handles POST /dashboard/domains: creates a domain and
// generates its API key (one domain, one key). The key-generation race is
// guarded by a distributed lock scoped to the user, matching the dashboard's
// one-domain-one-key invariant under concurrent requests.
func (s *Server) CreateDomain(w http.ResponseWriter, r *http.Request) {
	userID, ok := dashboardauth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authenticated user")
		return
	}

	var req createDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	domainName := strings.ToLower(strings.TrimSpace(req.DomainName))
	if domainName == "" {
		writeError(w, http.StatusBadRequest, "domain_name required")
		return
	}

	lockKey := "dashboard:domain-create:" + userID.String()
	unlock, err := s.locker.Acquire(r.Context(), lockKey, domainCreateLockTTL)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "could not acquire lock, try again")
		return
	}
	defer unlock()

	key := "nk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	row, err := s.domains.Create(r.Context(), userID, domainName, key)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainResponse{
		ID:         row.ID.String(),
		DomainName: row.DomainName,
		Key:        row.Key,
		IsActive:   row.IsActive,
		CreatedAt:  row.CreatedAt.Format(time.RFC3339),
	})
}

type setDomainActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// UpdateDomain handles PATCH /dashboard/domains/{id}.
func (s *Server) UpdateDomain(w http.ResponseWriter, r *http.Request) {
	userID, ok := dashboardauth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authenticated user")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid domain id")
		return
	}

	var req setDomainActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.domains.SetActive(r.Context(), id, userID, req.IsActive); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// DeleteDomain handles DELETE /dashboard/domains/{id}.
func (s *Server) DeleteDomain(w http.ResponseWriter, r *http.Request) {
	userID, ok := dashboardauth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authenticated user")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid domain id")
		return
	}

	if err := s.domains.Delete(r.Context(), id, userID); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type channelResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DomainID  string `json:"domain_id"`
	CreatedAt string `json:"created_at"`
}

// ListChannels handles GET /dashboard/channels.
func (s *Server) ListChannels(w http.ResponseWriter, r *http.Request) {
	userID, ok := dashboardauth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authenticated user")
		return
	}

	rows, err := s.channels.ListByUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]channelResponse, 0, len(rows))
	for _, c := range rows {
		resp = append(resp, channelResponse{
			ID:        c.ID.String(),
			Name:      c.Name,
			DomainID:  c.DomainID.String(),
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type wsConnectionResponse struct {
	ID            string  `json:"id"`
	ChannelName   string  `json:"channel_name"`
	SocketID      string  `json:"socket_id"`
	ConnectedUser *string `json:"connected_user"`
	ConnectedAt   string  `json:"connected_at"`
	Status        string  `json:"status"`
}

type channelCountResponse struct {
	ChannelName     string `json:"channel_name"`
	ConnectionCount int64  `json:"connection_count"`
}

type wsStatusResponse struct {
	ByChannel   []channelCountResponse `json:"by_channel"`
	Connections []wsConnectionResponse `json:"connections"`
}

// WSStatus handles GET /dashboard/ws-status.
func (s *Server) WSStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := dashboardauth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authenticated user")
		return
	}

	byChannel, err := s.channels.StatusAggregateByUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	conns, err := s.channels.ActiveConnectionsByUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := wsStatusResponse{
		ByChannel:   make([]channelCountResponse, 0, len(byChannel)),
		Connections: make([]wsConnectionResponse, 0, len(conns)),
	}
	for _, c := range byChannel {
		resp.ByChannel = append(resp.ByChannel, channelCountResponse{
			ChannelName:     c.ChannelName,
			ConnectionCount: c.ConnectionCount,
		})
	}
	for _, c := range conns {
		resp.Connections = append(resp.Connections, wsConnectionResponse{
			ID:            c.ID.String(),
			ChannelName:   c.ChannelName,
			SocketID:      c.SocketID,
			ConnectedUser: c.ConnectedUser,
			ConnectedAt:   c.ConnectedAt.Format(time.RFC3339),
			Status:        c.Status,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
