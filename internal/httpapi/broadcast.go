package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

type broadcastRequest struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

type broadcastResponse struct {
	OK              bool   `json:"ok"`
	Channel         string `json:"channel"`
	Event           string `json:"event"`
	SubscriberCount int64  `json:"subscriber_count"`
}

// Broadcast handles POST /api/broadcast: publish an event to a channel via
// the Hub. Accepts either the legacy app_key or a per-domain nk_ key (§D.5),
// supplied as the api_key query param or x-app-key header.
func (s *Server) Broadcast(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeAppOrDomainKey(r) {
		writeError(w, http.StatusUnauthorized, "invalid or missing api key")
		return
	}

	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Channel == "" || req.Event == "" {
		writeError(w, http.StatusBadRequest, "channel and event are required")
		return
	}

	count, err := s.hub.Broadcast(r.Context(), req.Channel, req.Event, req.Data)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, broadcastResponse{
		OK:              true,
		Channel:         req.Channel,
		Event:           req.Event,
		SubscriberCount: count,
	})
}

// authorizeAppOrDomainKey checks the supplied key against either the legacy
// configured app_key (constant-time compared) or an active per-domain key.
func (s *Server) authorizeAppOrDomainKey(r *http.Request) bool {
	key := r.URL.Query().Get("api_key")
	if key == "" {
		key = r.Header.Get("x-app-key")
	}
	if key == "" {
		return false
	}

	if subtle.ConstantTimeCompare([]byte(key), []byte(s.appKey)) == 1 {
		return true
	}

	appDomain, err := s.domains.FindByKey(r.Context(), key)
	if err != nil {
		return false
	}
	return appDomain.IsActive
}
