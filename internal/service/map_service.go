package service

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"petpals/internal/geo"
	"petpals/internal/models"
	"petpals/internal/observability"
	"petpals/internal/repository"
)

// UnknownAuthor labels map markers whose author could not be resolved.
const UnknownAuthor = "unknown user"

// NearbyInput selects map content. A nil Center keeps every geotagged item.
type NearbyInput struct {
	Center   *models.GeoPoint
	RadiusKm float64
	// ExcludeUserID drops this user from LoadNearbyUsers.
	ExcludeUserID string
}

func (in NearbyInput) validate() error {
	if !(in.RadiusKm > 0) || math.IsInf(in.RadiusKm, 1) {
		return models.NewValidationError("radius_km must be greater than 0")
	}
	return nil
}

// MapService produces map markers for recent geotagged posts and for users'
// last known positions. Only the newest window posts are considered, so a
// burst of posts without location can push older geotagged posts off the map.
type MapService struct {
	posts    repository.PostRepository
	profiles repository.ProfileRepository
	authors  *AuthorResolver
	window   int
}

// NewMapService creates a MapService reading at most window posts per load.
func NewMapService(posts repository.PostRepository, profiles repository.ProfileRepository, authors *AuthorResolver, window int) *MapService {
	return &MapService{posts: posts, profiles: profiles, authors: authors, window: window}
}

// LoadNearby returns geotagged posts within the radius, newest first. The
// only error it returns is a validation error; store failures yield an
// empty result.
func (s *MapService) LoadNearby(ctx context.Context, in NearbyInput) ([]models.LocationPost, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ctx, span := observability.GetTraceLayer().TraceServiceCall(ctx, "MapService", "LoadNearby")
	defer span.End()

	posts, err := s.posts.ListRecent(ctx, s.window)
	if err != nil {
		span.RecordError(err)
		observability.MapQueryFailures.WithLabelValues("posts").Inc()
		slog.ErrorContext(ctx, "map posts query failed", slog.String("error", err.Error()))
		return []models.LocationPost{}, nil
	}

	radiusM := geo.KmToMeters(in.RadiusKm)
	kept := make([]*models.Post, 0, len(posts))
	distances := make(map[string]float64, len(posts))
	for _, p := range posts {
		if !p.HasLocation() {
			continue
		}
		if in.Center != nil {
			d := geo.Distance(*in.Center, *p.Location)
			if d > radiusM {
				continue
			}
			distances[p.ID] = d
		}
		kept = append(kept, p)
	}

	ids := make([]string, len(kept))
	for i, p := range kept {
		ids[i] = p.UserID
	}
	authors := s.authors.Resolve(ctx, ids)

	out := make([]models.LocationPost, 0, len(kept))
	for _, p := range kept {
		lp := models.LocationPost{
			PostID:       p.ID,
			UserID:       p.UserID,
			AuthorName:   UnknownAuthor,
			Text:         p.Text,
			ImageURL:     p.ImageURL,
			Location:     *p.Location,
			LocationName: p.LocationName,
			Timestamp:    p.Timestamp,
		}
		if a, ok := authors[p.UserID]; ok && a.Err == nil {
			if a.Profile.PetName != "" {
				lp.AuthorName = a.Profile.PetName
			}
			lp.AuthorAvatar = a.Profile.PetImage
		}
		if d, ok := distances[p.ID]; ok {
			d := d
			lp.DistanceM = &d
		}
		out = append(out, lp)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

// LoadNearbyUsers returns users whose last known location lies within the
// radius, nearest first (by id when no center is given).
func (s *MapService) LoadNearbyUsers(ctx context.Context, in NearbyInput) ([]models.NearbyUser, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		observability.MapQueryFailures.WithLabelValues("users").Inc()
		slog.ErrorContext(ctx, "map users query failed", slog.String("error", err.Error()))
		return []models.NearbyUser{}, nil
	}

	radiusM := geo.KmToMeters(in.RadiusKm)
	out := make([]models.NearbyUser, 0)
	for _, p := range profiles {
		if p.UserID == in.ExcludeUserID || p.Location == nil || !p.Location.Valid() {
			continue
		}
		u := models.NearbyUser{
			UserID:   p.UserID,
			PetName:  p.PetName,
			PetImage: p.PetImage,
			Location: *p.Location,
		}
		if u.PetName == "" {
			u.PetName = truncateID(p.UserID)
		}
		if p.LastLocationUpdate != nil {
			u.LastLocationUpdate = *p.LastLocationUpdate
		}
		if in.Center != nil {
			d := geo.Distance(*in.Center, *p.Location)
			if d > radiusM {
				continue
			}
			u.DistanceM = &d
		}
		out = append(out, u)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceM != nil && out[j].DistanceM != nil && *out[i].DistanceM != *out[j].DistanceM {
			return *out[i].DistanceM < *out[j].DistanceM
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}
