// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"strings"

	"petpals/internal/models"

	"github.com/gofiber/fiber/v2"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func parseCredentials(c *fiber.Ctx) (credentialsRequest, error) {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return req, errResponseWritten
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Email and password are required"))
		return req, errResponseWritten
	}
	return req, nil
}

// Signup handles POST /api/auth/signup
// @Summary User signup
// @Description Register a new pet owner account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Signup request"
// @Success 201 {object} identity.Session
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/signup [post]
func (s *Server) Signup(c *fiber.Ctx) error {
	req, err := parseCredentials(c)
	if err != nil {
		return nil
	}

	session, err := s.identity.SignUp(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return models.Respond(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(session)
}

// Signin handles POST /api/auth/signin
// @Summary User signin
// @Description Authenticate with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Signin request"
// @Success 200 {object} identity.Session
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/signin [post]
func (s *Server) Signin(c *fiber.Ctx) error {
	req, err := parseCredentials(c)
	if err != nil {
		return nil
	}

	session, err := s.identity.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(session)
}

// RequestPasswordReset handles POST /api/auth/password-reset
// @Summary Request a password reset
// @Description Mails a reset token when the email belongs to an account. The response does not reveal whether it does.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string} true "Reset request"
// @Success 202 {object} object{message=string}
// @Failure 400 {object} models.ErrorResponse
// @Router /auth/password-reset [post]
func (s *Server) RequestPasswordReset(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Email is required"))
	}

	if err := s.identity.SendPasswordReset(c.UserContext(), req.Email); err != nil {
		return models.Respond(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "If the email is registered, a reset link has been sent",
	})
}

// ConfirmPasswordReset handles POST /api/auth/password-reset/confirm
// @Summary Set a new password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{token=string,password=string} true "Reset confirmation"
// @Success 200 {object} object{message=string}
// @Failure 400 {object} models.ErrorResponse
// @Router /auth/password-reset/confirm [post]
func (s *Server) ConfirmPasswordReset(c *fiber.Ctx) error {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Token and password are required"))
	}

	if err := s.identity.ResetPassword(c.UserContext(), req.Token, req.Password); err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(fiber.Map{"message": "Password updated"})
}
