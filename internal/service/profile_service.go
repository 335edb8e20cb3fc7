package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"petpals/internal/blobstore"
	"petpals/internal/models"
	"petpals/internal/repository"
	"petpals/internal/validation"
)

const maxProfileFieldLength = 100

type ProfileService struct {
	profiles repository.ProfileRepository
	blobs    blobstore.Store
	clock    Clock
}

type SaveProfileInput struct {
	UserID   string
	PetName  string
	PetAge   int
	PetBreed string
}

func NewProfileService(profiles repository.ProfileRepository, blobs blobstore.Store, clock Clock) *ProfileService {
	if clock == nil {
		clock = SystemClock
	}
	return &ProfileService{profiles: profiles, blobs: blobs, clock: clock}
}

func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, storeError(err, "Profile", userID)
	}
	return p, nil
}

// SaveProfile writes the editable pet fields, creating the profile on first
// save. The avatar and location are kept.
func (s *ProfileService) SaveProfile(ctx context.Context, in SaveProfileInput) (*models.UserProfile, error) {
	if in.UserID == "" {
		return nil, models.NewUnauthorizedError("Sign in to edit your profile")
	}
	if in.PetAge < 0 {
		return nil, models.NewValidationError("pet_age must not be negative")
	}
	name := strings.TrimSpace(in.PetName)
	breed := strings.TrimSpace(in.PetBreed)
	if utf8.RuneCountInString(name) > maxProfileFieldLength || utf8.RuneCountInString(breed) > maxProfileFieldLength {
		return nil, models.NewValidationError("pet_name and pet_breed must not exceed 100 characters")
	}

	profile := &models.UserProfile{
		UserID:   in.UserID,
		PetName:  name,
		PetAge:   in.PetAge,
		PetBreed: breed,
	}
	if err := s.profiles.Save(ctx, profile); err != nil {
		return nil, storeError(err, "Profile", in.UserID)
	}
	return s.GetProfile(ctx, in.UserID)
}

// UploadAvatar stores the pet photo at profile_images/{uid}.jpg and points
// the profile at it.
func (s *ProfileService) UploadAvatar(ctx context.Context, userID string, data []byte) (*models.UserProfile, error) {
	if userID == "" {
		return nil, models.NewUnauthorizedError("Sign in to edit your profile")
	}
	contentType, err := validation.ValidateImage(data, maxImageBytes)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	ref := blobstore.ProfileImageRef(userID)
	if _, err := s.blobs.Upload(ctx, ref, data, contentType); err != nil {
		return nil, storeError(err, "Image", ref)
	}
	url, err := s.blobs.DownloadURL(ctx, ref)
	if err != nil {
		return nil, storeError(err, "Image", ref)
	}
	if err := s.profiles.SetPetImage(ctx, userID, url); err != nil {
		return nil, storeError(err, "Profile", userID)
	}
	return s.GetProfile(ctx, userID)
}

// UpdateLocation records the user's last known position.
func (s *ProfileService) UpdateLocation(ctx context.Context, userID string, loc models.GeoPoint) error {
	if userID == "" {
		return models.NewUnauthorizedError("Sign in to share your location")
	}
	if err := validation.ValidateCoordinate(loc.Latitude, loc.Longitude); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := s.profiles.SetLocation(ctx, userID, loc, s.clock()); err != nil {
		return storeError(err, "Profile", userID)
	}
	return nil
}
