// Package auth wraps the hosted authentication provider. Credentials are
// never managed here; the provider hands back an opaque Identity and pushes
// state changes (sign-in, sign-out, token refresh) to subscribers.
package auth

import (
	"context"
	"sync"

	"casalista/models"
)

type Provider interface {
	// SignIn performs the interactive credential exchange.
	SignIn(ctx context.Context, email, password string) (*models.Identity, error)
	SignOut(ctx context.Context) error
	// Subscribe registers fn for identity changes. fn receives nil on
	// sign-out. The returned func unsubscribes.
	Subscribe(fn func(*models.Identity)) (unsubscribe func())
}

// subscribers is the fan-out shared by provider implementations.
type subscribers struct {
	mu   sync.Mutex
	subs map[int]func(*models.Identity)
	next int
}

func (s *subscribers) add(fn func(*models.Identity)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]func(*models.Identity))
	}
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *subscribers) notify(identity *models.Identity) {
	s.mu.Lock()
	fns := make([]func(*models.Identity), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(identity)
	}
}

// FakeProvider is an in-process Provider for tests and local wiring.
type FakeProvider struct {
	subscribers
	mu       sync.Mutex
	identity *models.Identity

	// SignInErr, when set, is returned by SignIn.
	SignInErr error
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{}
}

func (p *FakeProvider) SignIn(ctx context.Context, email, password string) (*models.Identity, error) {
	if p.SignInErr != nil {
		return nil, p.SignInErr
	}
	identity := &models.Identity{ID: "fake-" + email, Email: email}
	p.Emit(identity)
	return identity, nil
}

func (p *FakeProvider) SignOut(ctx context.Context) error {
	p.Emit(nil)
	return nil
}

func (p *FakeProvider) Subscribe(fn func(*models.Identity)) func() {
	return p.add(fn)
}

// Emit simulates a provider-side state change.
func (p *FakeProvider) Emit(identity *models.Identity) {
	p.mu.Lock()
	p.identity = identity
	p.mu.Unlock()
	p.notify(identity)
}

func (p *FakeProvider) Current() *models.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity
}
