package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"coral-agents/internal/domain"
	"coral-agents/internal/infra/config"
)

// ClientInfo identifies an authenticated gateway client.
type ClientInfo struct {
	Name string
}

// Authenticator validates the token presented by a gateway client.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

// NoAuth accepts every client.
type NoAuth struct{}

func (NoAuth) Authenticate(string) (*ClientInfo, error) {
	return &ClientInfo{Name: "anonymous"}, nil
}

type authEntry struct {
	token []byte
	info  *ClientInfo
}

// StaticTokenAuth authenticates clients against a fixed token list
// using constant-time comparison.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from configured tokens.
func NewStaticTokenAuth(tokens []config.TokenConfig) *StaticTokenAuth {
	a := &StaticTokenAuth{entries: make([]authEntry, len(tokens))}
	for i, t := range tokens {
		name := t.Name
		if name == "" {
			name = "client"
		}
		a.entries[i] = authEntry{token: []byte(t.Token), info: &ClientInfo{Name: name}}
	}
	return a
}

// Authenticate returns the client bound to token.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	if token == "" {
		return nil, domain.ErrGatewayAuthFailed
	}
	tb := []byte(token)
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tb, e.token) == 1 {
			return e.info, nil
		}
	}
	return nil, domain.ErrGatewayAuthFailed
}

// NewAuthenticator selects the authenticator for cfg.Type.
func NewAuthenticator(cfg config.AuthConfig) Authenticator {
	if cfg.Type == "static" {
		return NewStaticTokenAuth(cfg.Tokens)
	}
	return NoAuth{}
}

// requestToken reads the ?token= query parameter, falling back to a bearer
// Authorization header.
func requestToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if t, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(t)
	}
	return ""
}
