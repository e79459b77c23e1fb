package session

import (
	"context"
	"fmt"

	"casalista/models"
	"casalista/storage"
)

// ProfileStatus is the explicit tri-state (plus error) for the profile
// attached to a session. "Not yet known" and "known absent" are different
// states; conflating them causes premature redirect loops.
type ProfileStatus int

const (
	ProfileUnresolved ProfileStatus = iota
	ProfileAbsent
	ProfilePresent
	ProfileError
)

func (s ProfileStatus) String() string {
	switch s {
	case ProfileUnresolved:
		return "unresolved"
	case ProfileAbsent:
		return "absent"
	case ProfilePresent:
		return "present"
	case ProfileError:
		return "error"
	default:
		return fmt.Sprintf("ProfileStatus(%d)", int(s))
	}
}

type ProfileState struct {
	Status  ProfileStatus
	Profile *models.Profile
	Err     error
}

func unresolved() ProfileState { return ProfileState{Status: ProfileUnresolved} }
func absent() ProfileState     { return ProfileState{Status: ProfileAbsent} }

func present(p *models.Profile) ProfileState {
	return ProfileState{Status: ProfilePresent, Profile: p}
}

func failed(err error) ProfileState {
	return ProfileState{Status: ProfileError, Err: err}
}

// Resolver maps an identity to its profile document, exactly once per
// identity change. No caching, no retry policy: a transient failure
// surfaces as ProfileError and the caller retries explicitly.
type Resolver struct {
	docs storage.DocStore
}

func NewResolver(docs storage.DocStore) *Resolver {
	return &Resolver{docs: docs}
}

func (r *Resolver) Resolve(ctx context.Context, identity *models.Identity) ProfileState {
	if identity == nil {
		return absent()
	}

	raw, err := r.docs.GetDocument(ctx, models.CollectionUsers, identity.ID)
	if err != nil {
		return failed(fmt.Errorf("fetch profile %s: %w", identity.ID, err))
	}
	if raw == nil {
		// Authenticated but unregistered. A valid state, not an error.
		return absent()
	}

	var profile models.Profile
	if err := storage.Decode(raw, &profile); err != nil {
		return failed(err)
	}
	profile.UID = identity.ID
	return present(&profile)
}
