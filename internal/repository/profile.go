package repository

import (
	"context"
	"fmt"
	"log/slog"

	"petpals/internal/cache"
	"petpals/internal/docstore"
	"petpals/internal/models"
)

// UsersCollection holds one profile document per user id.
const UsersCollection = "users"

type profileDoc struct {
	PetName            string           `json:"petName"`
	PetAge             int              `json:"petAge"`
	PetBreed           string           `json:"petBreed"`
	PetImage           string           `json:"petImage"`
	Location           *models.GeoPoint `json:"location,omitempty"`
	LastLocationUpdate *int64           `json:"lastLocationUpdate,omitempty"`
}

func decodeProfile(doc *docstore.Document) (*models.UserProfile, error) {
	var d profileDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, err
	}
	return &models.UserProfile{
		UserID:             doc.ID,
		PetName:            d.PetName,
		PetAge:             d.PetAge,
		PetBreed:           d.PetBreed,
		PetImage:           d.PetImage,
		Location:           d.Location,
		LastLocationUpdate: d.LastLocationUpdate,
	}, nil
}

// ProfileRepository defines the interface for profile data operations.
// Reads go through the Redis cache; every write invalidates it.
type ProfileRepository interface {
	GetByID(ctx context.Context, userID string) (*models.UserProfile, error)
	List(ctx context.Context) ([]*models.UserProfile, error)
	// Save merges petName, petAge and petBreed, creating the document on
	// first save. The avatar and location fields are left untouched.
	Save(ctx context.Context, profile *models.UserProfile) error
	SetPetImage(ctx context.Context, userID, url string) error
	SetLocation(ctx context.Context, userID string, loc models.GeoPoint, at int64) error
}

type profileRepository struct {
	store docstore.Store
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(store docstore.Store) ProfileRepository {
	return &profileRepository{store: store}
}

func (r *profileRepository) GetByID(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := cache.Aside(ctx, cache.ProfileKey(userID), &profile, cache.ProfileTTL, func() error {
		doc, err := r.store.Get(ctx, UsersCollection, userID)
		if err != nil {
			return fmt.Errorf("get profile %s: %w", userID, err)
		}
		p, err := decodeProfile(doc)
		if err != nil {
			return err
		}
		profile = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) List(ctx context.Context) ([]*models.UserProfile, error) {
	docs, err := r.store.Query(ctx, docstore.Query{Collection: UsersCollection})
	if err != nil {
		return nil, err
	}
	out := make([]*models.UserProfile, 0, len(docs))
	for _, doc := range docs {
		p, err := decodeProfile(doc)
		if err != nil {
			slog.WarnContext(ctx, "skipping undecodable profile", slog.String("user_id", doc.ID), slog.String("error", err.Error()))
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// write merges fields into users/{uid}. The cached profile is dropped before
// the write and again once it has landed, so a read racing the write cannot
// leave the old profile cached.
func (r *profileRepository) write(ctx context.Context, userID string, fields map[string]any) error {
	cache.InvalidateProfile(ctx, userID)
	err := r.store.Set(ctx, UsersCollection, userID, fields, true)
	cache.InvalidateProfile(ctx, userID)
	return err
}

func (r *profileRepository) Save(ctx context.Context, profile *models.UserProfile) error {
	return r.write(ctx, profile.UserID, map[string]any{
		"petName":  profile.PetName,
		"petAge":   profile.PetAge,
		"petBreed": profile.PetBreed,
	})
}

func (r *profileRepository) SetPetImage(ctx context.Context, userID, url string) error {
	return r.write(ctx, userID, map[string]any{"petImage": url})
}

func (r *profileRepository) SetLocation(ctx context.Context, userID string, loc models.GeoPoint, at int64) error {
	return r.write(ctx, userID, map[string]any{
		"location":           loc,
		"lastLocationUpdate": at,
	})
}
