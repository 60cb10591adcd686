package httpapi

import (
	"errors"
	"net/http"

	"github.com/mwillis/notifd/internal/domain"
	"github.com/mwillis/notifd/internal/session"
)

// ServeWS upgrades the connection after running the API-Key/Origin Gate
// (§4.7), then drives the Session state machine for the connection's
// lifetime. GET /ws
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	domainID, err := s.gate.Resolve(r.Context(), r)
	if err != nil {
		if errors.Is(err, domain.ErrAuth) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws: upgrade failed", "error", err)
		return
	}

	sess := session.New(conn, domainID, session.Deps{
		Hub:      s.hub,
		Roster:   s.roster,
		Verifier: s.verifier,
		Channels: s.channels,
		Logger:   s.logger,
	})
	sess.Run()
}
