package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casalista/auth"
	"casalista/models"
	"casalista/storage"
)

// blockingStore wraps a MemoryStore and lets a test hold profile fetches
// open until released.
type blockingStore struct {
	*storage.MemoryStore
	mu      sync.Mutex
	gate    chan struct{}
	failure error
}

func newBlockingStore() *blockingStore {
	return &blockingStore{MemoryStore: storage.NewMemoryStore()}
}

func (s *blockingStore) holdFetches() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	return s.gate
}

func (s *blockingStore) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

func (s *blockingStore) GetDocument(ctx context.Context, collection, id string) (json.RawMessage, error) {
	s.mu.Lock()
	gate := s.gate
	failure := s.failure
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failure != nil {
		return nil, failure
	}
	return s.MemoryStore.GetDocument(ctx, collection, id)
}

func seedProfile(t *testing.T, docs storage.DocStore, uid string, profile models.Profile) {
	t.Helper()
	require.NoError(t, docs.SetDocument(context.Background(), models.CollectionUsers, uid, profile, false))
}

func waitSettled(t *testing.T, store *Store) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return !store.Snapshot().AuthLoading
	}, 2*time.Second, 5*time.Millisecond)
	return store.Snapshot()
}

func TestStore_SignInResolvesProfile(t *testing.T) {
	docs := storage.NewMemoryStore()
	seedProfile(t, docs, "uid-1", models.Profile{Role: models.RoleAgent, DisplayName: "Ana", SubscriptionActive: true})

	store := NewStore(NewResolver(docs))
	store.OnIdentityChange(&models.Identity{ID: "uid-1", Email: "ana@example.com"})

	snap := waitSettled(t, store)
	require.Equal(t, ProfilePresent, snap.Profile.Status)
	assert.Equal(t, "uid-1", snap.Profile.Profile.UID)
	assert.Equal(t, models.RoleAgent, snap.Profile.Profile.Role)
	assert.True(t, snap.Profile.Profile.SubscriptionActive)
}

func TestStore_MissingProfileIsAbsentNotError(t *testing.T) {
	store := NewStore(NewResolver(storage.NewMemoryStore()))
	store.OnIdentityChange(&models.Identity{ID: "uid-ghost"})

	snap := waitSettled(t, store)
	assert.Equal(t, ProfileAbsent, snap.Profile.Status)
	assert.NoError(t, snap.Profile.Err)
}

func TestStore_FetchErrorIsNotAbsent(t *testing.T) {
	docs := newBlockingStore()
	docs.failWith(errors.New("service unreachable"))

	store := NewStore(NewResolver(docs))
	store.OnIdentityChange(&models.Identity{ID: "uid-1"})

	snap := waitSettled(t, store)
	require.Equal(t, ProfileError, snap.Profile.Status)
	assert.ErrorContains(t, snap.Profile.Err, "service unreachable")
	assert.Nil(t, snap.Profile.Profile)
}

func TestStore_AuthLoadingCoversWholeResolution(t *testing.T) {
	docs := newBlockingStore()
	seedProfile(t, docs, "uid-1", models.Profile{Role: models.RoleAgent})
	gate := docs.holdFetches()

	store := NewStore(NewResolver(docs))

	var obsMu sync.Mutex
	var observed []Snapshot
	unsubscribe := store.Subscribe(func(snap Snapshot) {
		obsMu.Lock()
		observed = append(observed, snap)
		obsMu.Unlock()
	})
	defer unsubscribe()

	store.OnIdentityChange(&models.Identity{ID: "uid-1"})

	// While the fetch is held open the store must stay in loading with an
	// unresolved profile.
	snap := store.Snapshot()
	assert.True(t, snap.AuthLoading)
	assert.Equal(t, ProfileUnresolved, snap.Profile.Status)

	close(gate)
	snap = waitSettled(t, store)
	assert.Equal(t, ProfilePresent, snap.Profile.Status)

	// Wait for the settled state's delivery, then check that no
	// notification ever paired loading=false with unresolved data.
	require.Eventually(t, func() bool {
		obsMu.Lock()
		defer obsMu.Unlock()
		return len(observed) > 0 && observed[len(observed)-1].Profile.Status == ProfilePresent
	}, 2*time.Second, 5*time.Millisecond)

	obsMu.Lock()
	defer obsMu.Unlock()
	for _, s := range observed {
		if !s.AuthLoading {
			assert.NotEqual(t, ProfileUnresolved, s.Profile.Status)
		}
	}
}

func TestStore_SubscriberMayCallBackIntoStore(t *testing.T) {
	docs := storage.NewMemoryStore()
	seedProfile(t, docs, "uid-1", models.Profile{Role: models.RoleAgent})

	store := NewStore(NewResolver(docs))

	var obsMu sync.Mutex
	var readBack []Snapshot
	unsubscribe := store.Subscribe(func(Snapshot) {
		// Reading the store from inside a notification must not deadlock.
		snap := store.Snapshot()
		obsMu.Lock()
		readBack = append(readBack, snap)
		obsMu.Unlock()
	})
	defer unsubscribe()

	store.OnIdentityChange(&models.Identity{ID: "uid-1"})
	snap := waitSettled(t, store)
	assert.Equal(t, ProfilePresent, snap.Profile.Status)

	obsMu.Lock()
	defer obsMu.Unlock()
	assert.NotEmpty(t, readBack)
}

func TestStore_StaleResolutionDiscarded(t *testing.T) {
	docs := newBlockingStore()
	seedProfile(t, docs, "uid-old", models.Profile{DisplayName: "Old"})
	seedProfile(t, docs, "uid-new", models.Profile{DisplayName: "New"})
	gate := docs.holdFetches()

	store := NewStore(NewResolver(docs))
	store.OnIdentityChange(&models.Identity{ID: "uid-old"})

	// A second identity change supersedes the first before its fetch
	// completes.
	store.OnIdentityChange(&models.Identity{ID: "uid-new"})
	close(gate)

	snap := waitSettled(t, store)
	require.Equal(t, ProfilePresent, snap.Profile.Status)
	assert.Equal(t, "New", snap.Profile.Profile.DisplayName)
	assert.Equal(t, "uid-new", snap.Identity.ID)
}

func TestStore_SignOutResetsSynchronously(t *testing.T) {
	docs := storage.NewMemoryStore()
	seedProfile(t, docs, "uid-1", models.Profile{Role: models.RoleAgent})

	store := NewStore(NewResolver(docs))
	store.OnIdentityChange(&models.Identity{ID: "uid-1"})
	waitSettled(t, store)

	store.OnIdentityChange(nil)

	// No async work for sign-out: the snapshot is final immediately.
	snap := store.Snapshot()
	assert.False(t, snap.AuthLoading)
	assert.Nil(t, snap.Identity)
	assert.Equal(t, ProfileAbsent, snap.Profile.Status)
}

func TestStore_LogoutIsOptimistic(t *testing.T) {
	docs := newBlockingStore()
	seedProfile(t, docs, "uid-1", models.Profile{Role: models.RoleAgent})

	provider := auth.NewFakeProvider()
	store := NewStore(NewResolver(docs))
	detach := store.Attach(provider)
	defer detach()

	provider.Emit(&models.Identity{ID: "uid-1"})
	waitSettled(t, store)

	// Hold any further fetches open; logout must not wait for them.
	docs.holdFetches()

	require.NoError(t, store.Logout(context.Background(), provider))
	snap := store.Snapshot()
	assert.Nil(t, snap.Identity)
	assert.Equal(t, ProfileAbsent, snap.Profile.Status)
	assert.False(t, snap.AuthLoading)
}

func TestStore_RefreshPullsCanonicalState(t *testing.T) {
	docs := storage.NewMemoryStore()
	seedProfile(t, docs, "uid-1", models.Profile{DisplayName: "Before"})

	store := NewStore(NewResolver(docs))
	store.OnIdentityChange(&models.Identity{ID: "uid-1"})
	waitSettled(t, store)

	// Server-side mutation; the local snapshot is now stale.
	seedProfile(t, docs, "uid-1", models.Profile{DisplayName: "After"})

	require.NoError(t, store.Refresh(context.Background()))
	snap := store.Snapshot()
	require.Equal(t, ProfilePresent, snap.Profile.Status)
	assert.Equal(t, "After", snap.Profile.Profile.DisplayName)
}

func TestResolver_NilIdentityIsAbsent(t *testing.T) {
	resolver := NewResolver(storage.NewMemoryStore())
	state := resolver.Resolve(context.Background(), nil)
	assert.Equal(t, ProfileAbsent, state.Status)
}
