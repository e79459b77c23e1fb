// Package session owns the authenticated identity and the profile record
// attached to it. The Store is constructed explicitly at the composition
// root and passed by reference; there is no package-level state.
package session

import (
	"context"
	"sync"

	"casalista/auth"
	"casalista/models"
)

// Snapshot is a consistent read of the session. While AuthLoading is true,
// consumers must suspend rendering decisions: the identity or profile is
// still resolving and nothing conclusive can be derived.
type Snapshot struct {
	Identity    *models.Identity
	Profile     ProfileState
	AuthLoading bool
}

type Store struct {
	resolver *Resolver

	mu       sync.Mutex
	identity *models.Identity
	profile  ProfileState
	loading  bool
	gen      int
	cancel   context.CancelFunc

	subs    map[int]func(Snapshot)
	nextSub int
}

// NewStore returns a Store in the initial "resolving" state: AuthLoading
// stays true until the first identity notification arrives.
func NewStore(resolver *Resolver) *Store {
	return &Store{
		resolver: resolver,
		profile:  unresolved(),
		loading:  true,
		subs:     make(map[int]func(Snapshot)),
	}
}

// Attach subscribes the store to the provider's identity changes. The
// returned func detaches it.
func (s *Store) Attach(provider auth.Provider) (detach func()) {
	return provider.Subscribe(s.OnIdentityChange)
}

// OnIdentityChange is the sole mutation entry point, driven by the auth
// provider. The profile resets to unresolved synchronously, before the
// async fetch starts, so no reader can pair the new identity with a stale
// profile.
func (s *Store) OnIdentityChange(identity *models.Identity) {
	s.mu.Lock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	gen := s.gen
	s.identity = identity

	if identity == nil {
		s.profile = absent()
		s.loading = false
		notify := s.notifyLocked()
		s.mu.Unlock()
		notify()
		return
	}

	s.profile = unresolved()
	s.loading = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()

	go func() {
		state := s.resolver.Resolve(ctx, identity)

		s.mu.Lock()
		if s.gen != gen {
			// A newer identity change superseded this resolution.
			s.mu.Unlock()
			return
		}
		s.profile = state
		s.loading = false
		s.cancel = nil
		notify := s.notifyLocked()
		s.mu.Unlock()
		notify()
	}()
}

// Logout signs out of the provider and resets the session immediately
// rather than waiting for the provider's change notification.
func (s *Store) Logout(ctx context.Context, provider auth.Provider) error {
	err := provider.SignOut(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.identity = nil
	s.profile = absent()
	s.loading = false
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()

	return err
}

// Refresh re-resolves the current identity's profile synchronously. Used
// after a profile-mutating operation: the canonical server state replaces
// whatever optimistic copy the caller holds.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	identity := s.identity
	gen := s.gen
	s.mu.Unlock()

	state := s.resolver.Resolve(ctx, identity)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	s.profile = state
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
	return state.Err
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Identity: s.identity, Profile: s.profile, AuthLoading: s.loading}
}

// Subscribe registers fn for session changes. fn runs on the mutating
// goroutine but outside the store's lock, so it may call back into the
// store; keep it short.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// notifyLocked captures the current snapshot and subscriber list under the
// lock. The returned func performs the delivery and must run after the
// lock is released, so a subscriber calling back into the store cannot
// deadlock on the non-reentrant mutex.
func (s *Store) notifyLocked() func() {
	snap := Snapshot{Identity: s.identity, Profile: s.profile, AuthLoading: s.loading}
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(snap)
		}
	}
}
