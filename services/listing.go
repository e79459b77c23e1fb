package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"casalista/models"
	"casalista/storage"
	"casalista/uploader"
)

var (
	ErrNotFound = errors.New("listing not found")
	ErrNotOwner = errors.New("listing belongs to another agent")
)

// ListingService owns house CRUD. Image uploads run through the
// coordinator before anything persists: a failed upload blocks the save.
// Deleted images are never removed synchronously; their public ids go to
// the imagesToDelete work-queue for out-of-band cleanup.
type ListingService struct {
	docs    storage.DocStore
	uploads *uploader.Coordinator
	now     func() time.Time
}

func NewListingService(docs storage.DocStore, uploads *uploader.Coordinator) *ListingService {
	return &ListingService{docs: docs, uploads: uploads, now: time.Now}
}

// ListingInput carries the editable fields plus the mixed pending/persisted
// image sequence.
type ListingInput struct {
	Title       string
	Description string
	Address     string
	Price       float64
	Bedrooms    int
	Bathrooms   int
	Area        float64
	Images      []uploader.Entry
}

// Create uploads the pending images and persists a new listing owned by
// agentUID. Nothing persists if any upload fails.
func (s *ListingService) Create(ctx context.Context, agentUID string, input ListingInput, onState uploader.StateFunc) (*models.Listing, error) {
	records, err := s.uploadImages(ctx, input.Images, onState)
	if err != nil {
		return nil, err
	}

	now := s.now()
	listing := &models.Listing{
		ID:          uuid.NewString(),
		AgentUID:    agentUID,
		Title:       input.Title,
		Description: input.Description,
		Address:     input.Address,
		Price:       input.Price,
		Bedrooms:    input.Bedrooms,
		Bathrooms:   input.Bathrooms,
		Area:        input.Area,
		Images:      records,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.docs.SetDocument(ctx, models.CollectionHouses, listing.ID, listing, false); err != nil {
		return nil, fmt.Errorf("save listing: %w", err)
	}
	return listing, nil
}

// Update replaces the listing's editable fields. Images dropped from the
// sequence are queued for deferred deletion in the same batch as the save.
func (s *ListingService) Update(ctx context.Context, agentUID, id string, input ListingInput, onState uploader.StateFunc) (*models.Listing, error) {
	existing, err := s.getOwned(ctx, agentUID, id)
	if err != nil {
		return nil, err
	}

	records, err := s.uploadImages(ctx, input.Images, onState)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.Title = input.Title
	updated.Description = input.Description
	updated.Address = input.Address
	updated.Price = input.Price
	updated.Bedrooms = input.Bedrooms
	updated.Bathrooms = input.Bathrooms
	updated.Area = input.Area
	updated.Images = records
	updated.UpdatedAt = s.now()

	ops := s.deletionLogOps(agentUID, removedPublicIDs(existing.Images, records),
		fmt.Sprintf("Image removed from house %s by user %s.", id, agentUID))
	ops = append(ops, storage.Op{
		Kind:       storage.OpSet,
		Collection: models.CollectionHouses,
		ID:         id,
		Value:      &updated,
	})

	if err := s.docs.BatchWrite(ctx, ops); err != nil {
		return nil, fmt.Errorf("save listing: %w", err)
	}
	return &updated, nil
}

func (s *ListingService) Get(ctx context.Context, id string) (*models.Listing, error) {
	raw, err := s.docs.GetDocument(ctx, models.CollectionHouses, id)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}

	var listing models.Listing
	if err := storage.Decode(raw, &listing); err != nil {
		return nil, err
	}
	listing.ID = id
	return &listing, nil
}

// ListByAgent returns the agent's listings, newest first.
func (s *ListingService) ListByAgent(ctx context.Context, agentUID string) ([]models.Listing, error) {
	docs, err := s.docs.QueryDocuments(ctx, models.CollectionHouses,
		storage.Filter{Field: "agentUid", Equals: agentUID},
		&storage.OrderBy{Field: "createdAt", Descending: true},
	)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}

	listings := make([]models.Listing, 0, len(docs))
	for _, doc := range docs {
		var listing models.Listing
		if err := storage.Decode(doc.Data, &listing); err != nil {
			return nil, err
		}
		listing.ID = doc.ID
		listings = append(listings, listing)
	}
	return listings, nil
}

// Delete removes the listing and queues every image for deferred deletion.
// On stores with atomic batches the cascade commits as one unit.
func (s *ListingService) Delete(ctx context.Context, agentUID, id string) error {
	listing, err := s.getOwned(ctx, agentUID, id)
	if err != nil {
		return err
	}

	ops := s.deletionLogOps(agentUID, publicIDs(listing.Images),
		fmt.Sprintf("Image from deleted house %s by user %s.", id, agentUID))
	ops = append(ops, storage.Op{
		Kind:       storage.OpDelete,
		Collection: models.CollectionHouses,
		ID:         id,
	})

	if err := s.docs.BatchWrite(ctx, ops); err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	log.Printf("Deleted listing %s, queued %d images for cleanup", id, len(ops)-1)
	return nil
}

func (s *ListingService) getOwned(ctx context.Context, agentUID, id string) (*models.Listing, error) {
	listing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing.AgentUID != agentUID {
		return nil, ErrNotOwner
	}
	return listing, nil
}

func (s *ListingService) uploadImages(ctx context.Context, entries []uploader.Entry, onState uploader.StateFunc) ([]models.ImageRecord, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	uploaded, err := s.uploads.Upload(ctx, entries, onState)
	if err != nil {
		return nil, err
	}
	return uploader.Records(uploaded)
}

func (s *ListingService) deletionLogOps(uid string, ids []string, description string) []storage.Op {
	var ops []storage.Op
	for _, pid := range ids {
		ops = append(ops, storage.Op{
			Kind:       storage.OpSet,
			Collection: models.CollectionImagesToDelete,
			ID:         uuid.NewString(),
			Value: models.DeletionLog{
				PublicID:          pid,
				LoggedByUID:       uid,
				LoggedAt:          s.now(),
				SourceDescription: description,
			},
		})
	}
	return ops
}

func publicIDs(images []models.ImageRecord) []string {
	var ids []string
	for _, img := range images {
		if img.PublicID != "" {
			ids = append(ids, img.PublicID)
		}
	}
	return ids
}

func removedPublicIDs(before, after []models.ImageRecord) []string {
	kept := make(map[string]bool, len(after))
	for _, img := range after {
		kept[img.PublicID] = true
	}

	var removed []string
	for _, img := range before {
		if img.PublicID != "" && !kept[img.PublicID] {
			removed = append(removed, img.PublicID)
		}
	}
	return removed
}
