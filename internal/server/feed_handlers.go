package server

import (
	"strconv"

	"petpals/internal/featureflags"
	"petpals/internal/models"
	"petpals/internal/service"
	"petpals/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// GetFeed handles GET /api/feed
// @Summary Recent posts
// @Description Newest posts joined with their author's current pet name and avatar
// @Tags feed
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.FeedEntry
// @Failure 503 {object} models.ErrorResponse
// @Router /feed [get]
func (s *Server) GetFeed(c *fiber.Ctx) error {
	entries, err := s.services.Feed.LoadFeed(c.UserContext())
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(entries)
}

// parseNearby reads lat, lng and radius_km. Without lat and lng there is no
// center and every geotagged item is returned.
func (s *Server) parseNearby(c *fiber.Ctx) (service.NearbyInput, error) {
	in := service.NearbyInput{RadiusKm: s.defaultRadiusKm}

	lat, hasLat, err := queryFloat(c, "lat")
	if err != nil {
		return in, err
	}
	lng, hasLng, err := queryFloat(c, "lng")
	if err != nil {
		return in, err
	}
	if hasLat != hasLng {
		return in, models.NewValidationError("lat and lng must be given together")
	}
	if hasLat {
		if err := validation.ValidateCoordinate(lat, lng); err != nil {
			return in, models.NewValidationError(err.Error())
		}
		in.Center = &models.GeoPoint{Latitude: lat, Longitude: lng}
	}

	radius, hasRadius, err := queryFloat(c, "radius_km")
	if err != nil {
		return in, err
	}
	if hasRadius {
		in.RadiusKm = radius
	}
	return in, nil
}

func (s *Server) markerURL(c *fiber.Ctx, userID string) string {
	if !s.featureFlags.Enabled(featureflags.MapMarkers, currentUserID(c)) {
		return ""
	}
	return "/api/map/markers/" + userID
}

// GetNearbyPosts handles GET /api/map/posts
// @Summary Geotagged posts near a point
// @Tags map
// @Produce json
// @Security BearerAuth
// @Param lat query number false "Center latitude"
// @Param lng query number false "Center longitude"
// @Param radius_km query number false "Radius in kilometres"
// @Success 200 {array} models.LocationPost
// @Failure 400 {object} models.ErrorResponse
// @Router /map/posts [get]
func (s *Server) GetNearbyPosts(c *fiber.Ctx) error {
	in, err := s.parseNearby(c)
	if err != nil {
		return models.Respond(c, err)
	}

	posts, err := s.services.Map.LoadNearby(c.UserContext(), in)
	if err != nil {
		return models.Respond(c, err)
	}
	for i := range posts {
		posts[i].MarkerURL = s.markerURL(c, posts[i].UserID)
	}
	return c.JSON(posts)
}

// GetNearbyUsers handles GET /api/map/users
// @Summary Other pet owners near a point
// @Tags map
// @Produce json
// @Security BearerAuth
// @Param lat query number false "Center latitude"
// @Param lng query number false "Center longitude"
// @Param radius_km query number false "Radius in kilometres"
// @Success 200 {array} models.NearbyUser
// @Failure 400 {object} models.ErrorResponse
// @Router /map/users [get]
func (s *Server) GetNearbyUsers(c *fiber.Ctx) error {
	in, err := s.parseNearby(c)
	if err != nil {
		return models.Respond(c, err)
	}
	in.ExcludeUserID = currentUserID(c)

	users, err := s.services.Map.LoadNearbyUsers(c.UserContext(), in)
	if err != nil {
		return models.Respond(c, err)
	}
	for i := range users {
		users[i].MarkerURL = s.markerURL(c, users[i].UserID)
	}
	return c.JSON(users)
}

// GetMarker handles GET /api/map/markers/:userId
// @Summary Circular map marker for a user's pet
// @Tags map
// @Produce png
// @Produce image/webp
// @Param userId path string true "User ID"
// @Param size query int false "Edge length in pixels (16-256)"
// @Param format query string false "png or webp"
// @Success 200 {file} binary
// @Failure 400 {object} models.ErrorResponse
// @Router /map/markers/{userId} [get]
func (s *Server) GetMarker(c *fiber.Ctx) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	size, convErr := strconv.Atoi(c.Query("size", "0"))
	if convErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("size must be an integer"))
	}

	marker, err := s.services.Markers.Render(c.UserContext(), userID, size, c.Query("format"))
	if err != nil {
		return models.Respond(c, err)
	}

	c.Set(fiber.HeaderContentType, marker.ContentType)
	if marker.Placeholder {
		c.Set(fiber.HeaderCacheControl, "public, max-age=60")
	} else {
		c.Set(fiber.HeaderCacheControl, "public, max-age=300")
	}
	return c.Send(marker.Data)
}
