package session

import (
	"os"
	"strconv"

	"github.com/google/uuid"
)

// newSocketID generates an opaque per-connection identifier, stable for the
// lifetime of one WebSocket: "<process-id>.<random-token>".
func newSocketID() string {
	return strconv.Itoa(os.Getpid()) + "." + uuid.NewString()
}
