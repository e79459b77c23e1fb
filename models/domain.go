package models

import "time"

// Identity is the externally-authenticated principal. It is owned by the
// auth provider; this system never stores or mutates it.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Profile is our own record for an identity. It exists in the document
// store only after an explicit save; an authenticated identity without a
// profile is a valid, meaningful state.
type Profile struct {
	UID                    string `json:"uid"`
	Role                   Role   `json:"role,omitempty"`
	DisplayName            string `json:"displayName,omitempty"`
	Email                  string `json:"email,omitempty"`
	Phone                  string `json:"phone,omitempty"`
	Bio                    string `json:"bio,omitempty"`
	ProfilePicture         string `json:"profilePicture,omitempty"`
	ProfilePicturePublicID string `json:"profilePicturePublicId,omitempty"`
	SubscriptionActive     bool   `json:"subscriptionActive"`
	LinkedListingGroupID   string `json:"linkedListingGroupId,omitempty"`
}

type Role string

const (
	RoleOwner Role = "owner"
	RoleAgent Role = "agent"
)

// Listing is a single house record with an ordered image sequence.
type Listing struct {
	ID          string        `json:"id"`
	AgentUID    string        `json:"agentUid"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Address     string        `json:"address,omitempty"`
	Price       float64       `json:"price"`
	Bedrooms    int           `json:"bedrooms"`
	Bathrooms   int           `json:"bathrooms"`
	Area        float64       `json:"area"`
	Images      []ImageRecord `json:"images,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ImageRecord is a persisted image. PicDisplayPosition is a user-defined
// sort key and is not necessarily contiguous.
type ImageRecord struct {
	PicURL             string `json:"picUrl"`
	PublicID           string `json:"publicId,omitempty"`
	PicDisplayPosition int    `json:"picDisplayPosition"`
	PicDescription     string `json:"picDescription,omitempty"`
}

// DeletionLog is one entry in the imagesToDelete work-queue. The queue is
// append-only; an out-of-band cleanup process consumes it.
type DeletionLog struct {
	PublicID          string    `json:"publicId"`
	LoggedByUID       string    `json:"loggedByUid"`
	LoggedAt          time.Time `json:"loggedAt"`
	SourceDescription string    `json:"sourceDescription,omitempty"`
}

// Document store collections.
const (
	CollectionUsers          = "users"
	CollectionHouses         = "houses"
	CollectionImagesToDelete = "imagesToDelete"
)
