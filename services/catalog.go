package services

import (
	"context"
	"fmt"

	"casalista/models"
	"casalista/storage"
)

// CatalogService is the visitor-facing read side: browse agents and their
// listings. No session required.
type CatalogService struct {
	docs     storage.DocStore
	listings *ListingService
}

func NewCatalogService(docs storage.DocStore, listings *ListingService) *CatalogService {
	return &CatalogService{docs: docs, listings: listings}
}

// Agents returns every registered agent profile.
func (s *CatalogService) Agents(ctx context.Context) ([]models.Profile, error) {
	docs, err := s.docs.QueryDocuments(ctx, models.CollectionUsers,
		storage.Filter{Field: "role", Equals: string(models.RoleAgent)},
		&storage.OrderBy{Field: "displayName"},
	)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}

	agents := make([]models.Profile, 0, len(docs))
	for _, doc := range docs {
		var profile models.Profile
		if err := storage.Decode(doc.Data, &profile); err != nil {
			return nil, err
		}
		profile.UID = doc.ID
		agents = append(agents, profile)
	}
	return agents, nil
}

func (s *CatalogService) AgentListings(ctx context.Context, agentUID string) ([]models.Listing, error) {
	return s.listings.ListByAgent(ctx, agentUID)
}

func (s *CatalogService) House(ctx context.Context, id string) (*models.Listing, error) {
	return s.listings.Get(ctx, id)
}
