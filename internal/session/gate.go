package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mwillis/notifd/internal/domain"
)

const (
	headerAppKey = "x-app-key"
	headerOrigin = "origin"
)

// Gate resolves the API-Key/Origin Gate (§4.7) at WebSocket upgrade time: it
// never creates a Session itself, only the optional domain id a Session is
// created with.
type Gate struct {
	domains domain.AppDomainStore
}

// NewGate returns a Gate backed by the domain registry.
func NewGate(domains domain.AppDomainStore) *Gate {
	return &Gate{domains: domains}
}

// Resolve extracts the api_key query parameter or x-app-key header and, if
// present, validates the request's Origin against the domain it names.
// Returns a nil domain id (and nil error) when no key was supplied.
func (g *Gate) Resolve(ctx context.Context, r *http.Request) (*uuid.UUID, error) {
	apiKey := r.URL.Query().Get("api_key")
	if apiKey == "" {
		apiKey = r.Header.Get(headerAppKey)
	}
	if apiKey == "" {
		return nil, nil
	}

	appDomain, err := g.domains.FindByKey(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid or inactive api key", domain.ErrAuth)
	}
	if !appDomain.IsActive {
		return nil, fmt.Errorf("%w: invalid or inactive api key", domain.ErrAuth)
	}

	originHost, ok := parseOriginHost(r.Header.Get(headerOrigin))
	if !ok {
		return nil, fmt.Errorf("%w: origin required and must match domain", domain.ErrAuth)
	}
	if !domainMatches(appDomain.DomainName, originHost) {
		return nil, fmt.Errorf("%w: origin does not match domain for this key", domain.ErrAuth)
	}

	id := appDomain.ID
	return &id, nil
}

// parseOriginHost extracts the host from an Origin header value, e.g.
// "https://app.example.com" -> "app.example.com". Returns false if no
// http(s) scheme prefix is present.
func parseOriginHost(origin string) (string, bool) {
	rest, ok := strings.CutPrefix(origin, "https://")
	if !ok {
		rest, ok = strings.CutPrefix(origin, "http://")
	}
	if !ok {
		return "", false
	}
	host, _, _ := strings.Cut(rest, "/")
	if host == "" {
		return "", false
	}
	return strings.ToLower(host), true
}

// domainMatches reports whether originHost satisfies the allowed domain
// pattern: an exact, case-insensitive match, or, for a "*.example.com"
// pattern, any host ending in "example.com".
func domainMatches(allowed, originHost string) bool {
	allowed = strings.ToLower(strings.TrimSpace(allowed))
	if strings.HasPrefix(allowed, "*") {
		suffix := strings.TrimPrefix(strings.TrimPrefix(allowed, "*"), ".")
		return strings.HasSuffix(originHost, suffix)
	}
	return allowed == originHost
}
