package httpapi

import "net/http"

// HealthCheck responds with a simple JSON status indicating the server is
// alive. GET /health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "notif"})
}
