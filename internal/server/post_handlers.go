// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"strconv"
	"strings"

	"petpals/internal/models"
	"petpals/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createPostRequest struct {
	Text         string           `json:"text"`
	Location     *models.GeoPoint `json:"location,omitempty"`
	LocationName string           `json:"location_name,omitempty"`
}

// parseCreatePost accepts either a JSON body or a multipart form carrying
// text, optional latitude/longitude/location_name and an "image" file.
func (s *Server) parseCreatePost(c *fiber.Ctx) (service.CreatePostInput, error) {
	in := service.CreatePostInput{UserID: currentUserID(c)}

	if !isMultipart(c) {
		var req createPostRequest
		if err := c.BodyParser(&req); err != nil {
			return in, models.NewValidationError("Invalid request body")
		}
		in.Text = req.Text
		in.Location = req.Location
		in.LocationName = strings.TrimSpace(req.LocationName)
		return in, nil
	}

	in.Text = c.FormValue("text")
	in.LocationName = strings.TrimSpace(c.FormValue("location_name"))
	latRaw, lngRaw := c.FormValue("latitude"), c.FormValue("longitude")
	if latRaw != "" || lngRaw != "" {
		lat, latErr := strconv.ParseFloat(latRaw, 64)
		lng, lngErr := strconv.ParseFloat(lngRaw, 64)
		if latErr != nil || lngErr != nil {
			return in, models.NewValidationError("latitude and longitude must be numbers")
		}
		in.Location = &models.GeoPoint{Latitude: lat, Longitude: lng}
	}

	image, err := readUpload(c, "image", s.maxUploadBytes)
	if err != nil {
		return in, err
	}
	in.Image = image
	return in, nil
}

// CreatePost handles POST /api/posts
// @Summary Publish a post
// @Description Text with an optional photo and geotag. Send multipart/form-data to attach an image.
// @Tags posts
// @Accept json
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param text formData string true "Post text"
// @Param image formData file false "Photo"
// @Param latitude formData number false "Geotag latitude"
// @Param longitude formData number false "Geotag longitude"
// @Param location_name formData string false "Place label"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	in, err := s.parseCreatePost(c)
	if err != nil {
		return models.Respond(c, err)
	}

	post, err := s.services.Post.CreatePost(c.UserContext(), in)
	if err != nil {
		return models.Respond(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetPost handles GET /api/posts/:id
// @Summary Get a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 200 {object} models.Post
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.services.Post.GetPost(c.UserContext(), id)
	if err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(post)
}

// GetUserPosts handles GET /api/users/:userId/posts
// @Summary A user's posts, newest first
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Post
// @Router /users/{userId}/posts [get]
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	p := parsePagination(c, 20)

	posts, err := s.services.Post.GetUserPosts(c.UserContext(), userID)
	if err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(page(posts, p))
}

// UpdatePost handles PATCH /api/posts/:id
// @Summary Edit a post's text
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Param request body object{text=string} true "New text"
// @Success 200 {object} models.Post
// @Failure 403 {object} models.ErrorResponse
// @Router /posts/{id} [patch]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.services.Post.UpdatePostText(c.UserContext(), service.UpdatePostInput{
		UserID: currentUserID(c),
		PostID: id,
		Text:   req.Text,
	})
	if err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(post)
}

type deletePostResponse struct {
	Message         string   `json:"message"`
	PostID          string   `json:"post_id"`
	ImageDeleted    bool     `json:"image_deleted"`
	CommentsDeleted int      `json:"comments_deleted"`
	Residual        []residualEntry `json:"residual,omitempty"`
}

// residualEntry names a cleanup stage that left data behind. The cause stays
// in the server log.
type residualEntry struct {
	Stage  string `json:"stage"`
	PostID string `json:"post_id"`
}

// DeletePost handles DELETE /api/posts/:id
// @Summary Delete a post with its image and comments
// @Description Image and comment cleanup is best effort; anything left behind is listed in residual.
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 200 {object} deletePostResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	report, err := s.services.Post.DeletePost(c.UserContext(), service.DeletePostInput{
		UserID: currentUserID(c),
		PostID: id,
	})
	if err != nil {
		return models.Respond(c, err)
	}

	resp := deletePostResponse{
		Message:         "Post deleted successfully",
		PostID:          report.PostID,
		ImageDeleted:    report.ImageDeleted,
		CommentsDeleted: report.CommentsDeleted,
	}
	for _, r := range report.Residual {
		resp.Residual = append(resp.Residual, residualEntry{Stage: r.Stage, PostID: report.PostID})
	}
	return c.JSON(resp)
}

// ToggleLike handles POST /api/posts/:id/like
// @Summary Like or unlike a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 200 {object} service.LikeResult
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/like [post]
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	result, err := s.services.Post.ToggleLike(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(result)
}
