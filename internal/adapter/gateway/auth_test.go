package gateway

import (
	"errors"
	"net/http/httptest"
	"testing"

	"repochat/internal/domain"
	"repochat/internal/infra/config"
)

func TestStaticTokenAuthValid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{
		{Token: "secret-123", Name: "web", UserID: "u1", GitHubToken: "gh-1"},
	})

	info, err := auth.Authenticate("secret-123")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "web" || info.UserID != "u1" {
		t.Errorf("info = %+v", info)
	}
	s := info.Session()
	if s.UserID != "u1" || s.AccessToken != "gh-1" {
		t.Errorf("session = %+v", s)
	}
}

func TestStaticTokenAuthDefaultsUserToName(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{{Token: "t", Name: "bot"}})

	info, err := auth.Authenticate("t")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.UserID != "bot" {
		t.Errorf("UserID = %q, want bot", info.UserID)
	}
}

func TestStaticTokenAuthInvalid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{{Token: "secret-123", Name: "web"}})

	_, err := auth.Authenticate("wrong-token")
	if !errors.Is(err, domain.ErrGatewayAuthFailed) {
		t.Errorf("err = %v, want ErrGatewayAuthFailed", err)
	}
}

func TestStaticTokenAuthEmpty(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{{Token: "", Name: "blank"}})

	if _, err := auth.Authenticate(""); err == nil {
		t.Fatal("empty token must not match a blank entry")
	}
	if _, err := auth.Authenticate("anything"); err == nil {
		t.Fatal("expected error for empty token list")
	}
}

func TestRequestToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=q", nil)
	if got := requestToken(r); got != "q" {
		t.Errorf("query token = %q", got)
	}

	r = httptest.NewRequest("GET", "/api/v1/status", nil)
	r.Header.Set("Authorization", "Bearer h")
	if got := requestToken(r); got != "h" {
		t.Errorf("header token = %q", got)
	}

	r = httptest.NewRequest("GET", "/api/v1/status", nil)
	if got := requestToken(r); got != "" {
		t.Errorf("no token = %q", got)
	}
}
