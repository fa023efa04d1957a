package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"repochat/internal/domain"
	"repochat/internal/infra/config"
)

// ClientInfo holds metadata about an authenticated gateway client.
type ClientInfo struct {
	Name        string
	UserID      string
	GitHubToken string
}

// Session is the auth session turns from this client run under. A client
// without a GitHub token still has a session so its chats are persisted;
// tools then report missing authentication.
func (c *ClientInfo) Session() *domain.AuthSession {
	return &domain.AuthSession{UserID: c.UserID, AccessToken: c.GitHubToken}
}

// Authenticator validates incoming gateway connections.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

type authEntry struct {
	token []byte
	info  *ClientInfo
}

// StaticTokenAuth authenticates clients against a static token list
// using constant-time comparison.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from configured tokens. A token
// without a user ID uses its name as the user.
func NewStaticTokenAuth(tokens []config.TokenConfig) *StaticTokenAuth {
	a := &StaticTokenAuth{entries: make([]authEntry, 0, len(tokens))}
	for _, t := range tokens {
		if t.Token == "" {
			continue
		}
		userID := t.UserID
		if userID == "" {
			userID = t.Name
		}
		a.entries = append(a.entries, authEntry{
			token: []byte(t.Token),
			info:  &ClientInfo{Name: t.Name, UserID: userID, GitHubToken: t.GitHubToken},
		})
	}
	return a
}

// Authenticate returns client info if the token is valid.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	if token == "" {
		return nil, domain.ErrGatewayAuthFailed
	}
	tokenBytes := []byte(token)
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 {
			info := *e.info
			return &info, nil
		}
	}
	return nil, domain.ErrGatewayAuthFailed
}

// requestToken reads the token from the query string or a bearer header.
func requestToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
