// Package auth provides domain.AuthProvider implementations.
package auth

import (
	"context"
	"fmt"

	"repochat/internal/domain"
)

// StaticAuthProvider returns one fixed session, typically the local user's
// GitHub token from config. An empty token means signed out.
type StaticAuthProvider struct {
	session *domain.AuthSession
}

// NewStaticAuthProvider creates a provider for userID and token.
func NewStaticAuthProvider(userID, token string) *StaticAuthProvider {
	if token == "" {
		return &StaticAuthProvider{}
	}
	if userID == "" {
		userID = "local"
	}
	return &StaticAuthProvider{session: &domain.AuthSession{UserID: userID, AccessToken: token}}
}

// GetCurrentSession implements domain.AuthProvider.
func (p *StaticAuthProvider) GetCurrentSession(context.Context) (*domain.AuthSession, error) {
	if p.session == nil {
		return nil, nil
	}
	s := *p.session
	return &s, nil
}

// ContextAuthProvider reads the session placed on the request context, as
// the gateway does for each authenticated connection.
type ContextAuthProvider struct{}

// GetCurrentSession implements domain.AuthProvider.
func (ContextAuthProvider) GetCurrentSession(ctx context.Context) (*domain.AuthSession, error) {
	return domain.AuthSessionFromContext(ctx), nil
}

// ChainAuthProvider asks each provider in order and returns the first
// non-nil session. The first error stops the chain.
type ChainAuthProvider struct {
	providers []domain.AuthProvider
}

// NewChainAuthProvider creates a chain over providers.
func NewChainAuthProvider(providers ...domain.AuthProvider) *ChainAuthProvider {
	return &ChainAuthProvider{providers: providers}
}

// GetCurrentSession implements domain.AuthProvider.
func (c *ChainAuthProvider) GetCurrentSession(ctx context.Context) (*domain.AuthSession, error) {
	for i, p := range c.providers {
		s, err := p.GetCurrentSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("auth provider %d: %w", i, err)
		}
		if s != nil {
			return s, nil
		}
	}
	return nil, nil
}

var (
	_ domain.AuthProvider = (*StaticAuthProvider)(nil)
	_ domain.AuthProvider = ContextAuthProvider{}
	_ domain.AuthProvider = (*ChainAuthProvider)(nil)
)
