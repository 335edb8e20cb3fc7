package server

import (
	"petpals/internal/models"
	"petpals/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /api/profile/me
// @Summary Current user's pet profile
// @Tags profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.UserProfile
// @Failure 404 {object} models.ErrorResponse
// @Router /profile/me [get]
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	profile, err := s.services.Profile.GetProfile(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(profile)
}

// UpdateMyProfile handles PUT /api/profile
// @Summary Create or update the current user's pet profile
// @Tags profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{pet_name=string,pet_age=int,pet_breed=string} true "Profile fields"
// @Success 200 {object} models.UserProfile
// @Failure 400 {object} models.ErrorResponse
// @Router /profile [put]
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	var req struct {
		PetName  string `json:"pet_name"`
		PetAge   int    `json:"pet_age"`
		PetBreed string `json:"pet_breed"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	profile, err := s.services.Profile.SaveProfile(c.UserContext(), service.SaveProfileInput{
		UserID:   currentUserID(c),
		PetName:  req.PetName,
		PetAge:   req.PetAge,
		PetBreed: req.PetBreed,
	})
	if err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(profile)
}

// UploadAvatar handles POST /api/profile/avatar
// @Summary Upload the pet photo
// @Tags profile
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param image formData file true "Pet photo"
// @Success 200 {object} models.UserProfile
// @Failure 400 {object} models.ErrorResponse
// @Router /profile/avatar [post]
func (s *Server) UploadAvatar(c *fiber.Ctx) error {
	if !isMultipart(c) {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Expected multipart/form-data with an image file"))
	}
	data, err := readUpload(c, "image", s.maxUploadBytes)
	if err != nil {
		return models.Respond(c, err)
	}
	if len(data) == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("image is required"))
	}

	profile, err := s.services.Profile.UploadAvatar(c.UserContext(), currentUserID(c), data)
	if err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(profile)
}

// UpdateMyLocation handles PUT /api/profile/location
// @Summary Record the current user's position for the map
// @Tags profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.GeoPoint true "Position"
// @Success 200 {object} object{message=string}
// @Failure 400 {object} models.ErrorResponse
// @Router /profile/location [put]
func (s *Server) UpdateMyLocation(c *fiber.Ctx) error {
	var req struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := c.BodyParser(&req); err != nil || req.Latitude == nil || req.Longitude == nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("latitude and longitude are required"))
	}

	loc := models.GeoPoint{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := s.services.Profile.UpdateLocation(c.UserContext(), currentUserID(c), loc); err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(fiber.Map{"message": "Location updated"})
}

// GetUserProfile handles GET /api/users/:userId/profile
// @Summary A user's pet profile
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Success 200 {object} models.UserProfile
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{userId}/profile [get]
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	profile, err := s.services.Profile.GetProfile(c.UserContext(), userID)
	if err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(profile)
}

// GetUserStats handles GET /api/users/:userId/stats
// @Summary A user's post statistics
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Success 200 {object} models.UserStats
// @Router /users/{userId}/stats [get]
func (s *Server) GetUserStats(c *fiber.Ctx) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	stats, err := s.services.Stats.UserStats(c.UserContext(), userID)
	if err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(stats)
}
