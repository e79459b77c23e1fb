package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"casalista/models"
	"casalista/storage"
	"casalista/uploader"
)

// ProfileService reads and writes the users collection. Saves are partial
// merge writes so concurrent fields (role, subscription flag) set elsewhere
// are never clobbered; the caller refreshes the session store afterwards so
// the canonical server copy wins over the optimistic local one.
type ProfileService struct {
	docs    storage.DocStore
	uploads *uploader.Coordinator
	now     func() time.Time
}

func NewProfileService(docs storage.DocStore, uploads *uploader.Coordinator) *ProfileService {
	return &ProfileService{docs: docs, uploads: uploads, now: time.Now}
}

func (s *ProfileService) Get(ctx context.Context, uid string) (*models.Profile, error) {
	raw, err := s.docs.GetDocument(ctx, models.CollectionUsers, uid)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	var profile models.Profile
	if err := storage.Decode(raw, &profile); err != nil {
		return nil, err
	}
	profile.UID = uid
	return &profile, nil
}

// ProfileUpdate carries the editable profile fields. NewPicture, when set,
// is uploaded first; the previous picture's public id is queued for
// deferred deletion.
type ProfileUpdate struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Bio         string `json:"bio"`

	NewPicture *uploader.PendingFile `json:"-"`
}

func (s *ProfileService) Save(ctx context.Context, uid string, update ProfileUpdate, onState uploader.StateFunc) error {
	partial := map[string]any{
		"displayName": update.DisplayName,
		"email":       update.Email,
		"phone":       update.Phone,
		"bio":         update.Bio,
	}

	if update.NewPicture != nil {
		entries := []uploader.Entry{{
			Pending:         update.NewPicture,
			DisplayPosition: 1,
			Description:     fmt.Sprintf("%s's profile picture", update.DisplayName),
		}}

		uploaded, err := s.uploads.Upload(ctx, entries, onState)
		if err != nil {
			return err
		}

		newPic := uploaded[0]
		if err := s.queueOldPicture(ctx, uid, newPic.PublicID); err != nil {
			// The new picture is already hosted; losing the cleanup log is
			// preferable to failing the save.
			log.Printf("Warning: failed to queue old profile picture: %v", err)
		}
		partial["profilePicture"] = newPic.PicURL
		partial["profilePicturePublicId"] = newPic.PublicID
	}

	if err := s.docs.SetDocument(ctx, models.CollectionUsers, uid, partial, true); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *ProfileService) queueOldPicture(ctx context.Context, uid, newPublicID string) error {
	current, err := s.Get(ctx, uid)
	if err != nil {
		return err
	}
	if current == nil || current.ProfilePicturePublicID == "" || current.ProfilePicturePublicID == newPublicID {
		return nil
	}

	return s.docs.SetDocument(ctx, models.CollectionImagesToDelete, uuid.NewString(),
		models.DeletionLog{
			PublicID:          current.ProfilePicturePublicID,
			LoggedByUID:       uid,
			LoggedAt:          s.now(),
			SourceDescription: fmt.Sprintf("Profile picture change for user %s.", uid),
		}, false)
}

// DeleteAccount removes every trace of the agent: all their listings, the
// profile document, and a deletion-queue entry per hosted image. On stores
// with atomic batches the whole cascade commits as one unit.
func (s *ProfileService) DeleteAccount(ctx context.Context, uid string) error {
	docs, err := s.docs.QueryDocuments(ctx, models.CollectionHouses,
		storage.Filter{Field: "agentUid", Equals: uid}, nil)
	if err != nil {
		return fmt.Errorf("query listings: %w", err)
	}

	var ops []storage.Op
	queued := 0
	for _, doc := range docs {
		var listing models.Listing
		if err := storage.Decode(doc.Data, &listing); err != nil {
			return err
		}

		for _, pid := range publicIDs(listing.Images) {
			ops = append(ops, storage.Op{
				Kind:       storage.OpSet,
				Collection: models.CollectionImagesToDelete,
				ID:         uuid.NewString(),
				Value: models.DeletionLog{
					PublicID:          pid,
					LoggedByUID:       uid,
					LoggedAt:          s.now(),
					SourceDescription: fmt.Sprintf("Image from house %s (owner: %s) during account deletion.", doc.ID, uid),
				},
			})
			queued++
		}
		ops = append(ops, storage.Op{
			Kind:       storage.OpDelete,
			Collection: models.CollectionHouses,
			ID:         doc.ID,
		})
	}

	ops = append(ops, storage.Op{
		Kind:       storage.OpDelete,
		Collection: models.CollectionUsers,
		ID:         uid,
	})

	if err := s.docs.BatchWrite(ctx, ops); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	log.Printf("Deleted account %s: %d listings removed, %d images queued for cleanup", uid, len(docs), queued)
	return nil
}
