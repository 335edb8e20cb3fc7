package service

import (
	"context"

	"petpals/internal/models"
	"petpals/internal/repository"
)

type StatsService struct {
	posts    repository.PostRepository
	profiles repository.ProfileRepository
}

func NewStatsService(posts repository.PostRepository, profiles repository.ProfileRepository) *StatsService {
	return &StatsService{posts: posts, profiles: profiles}
}

// UserStats summarises a user's posts. A user without a profile still gets
// stats; ProfileComplete is false for them.
func (s *StatsService) UserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	if userID == "" {
		return nil, models.NewValidationError("user id is required")
	}
	posts, err := s.posts.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, "Post", "")
	}

	stats := &models.UserStats{UserID: userID, PostCount: len(posts)}
	for _, p := range posts {
		stats.LikesReceived += len(p.LikedBy)
		if p.HasLocation() {
			stats.GeotaggedPosts++
		}
		if p.Timestamp > stats.LastPostAt {
			stats.LastPostAt = p.Timestamp
		}
	}

	if profile, err := s.profiles.GetByID(ctx, userID); err == nil {
		stats.ProfileComplete = profile.PetName != "" && profile.PetImage != ""
	} else if !(Author{Err: err}).Missing() {
		return nil, storeError(err, "Profile", userID)
	}
	return stats, nil
}
