package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"ridehail/backend/models"
	"ridehail/backend/services"
)

// AuthHandler handles HTTP requests related to authentication.
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler creates a new AuthHandler instance.
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Login handles the POST /api/v1/auth/login request.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing login request body: %v", err)
		return badRequest(c, "Invalid request body", err)
	}
	log.Printf("Received login request for email: %s", req.Email)

	loginResponse, err := h.authService.Login(c.UserContext(), req)
	if err != nil {
		return respondError(c, err, "log in")
	}

	log.Printf("Login successful for user: %s (ID: %s)", loginResponse.User.Email, loginResponse.User.ID)
	return respondSuccess(c, fiber.StatusOK, "Login successful", loginResponse)
}

// SetupAuthRoutes registers the public authentication routes.
func SetupAuthRoutes(api fiber.Router, authService *services.AuthService) {
	handler := NewAuthHandler(authService)
	authGroup := api.Group("/auth")
	authGroup.Post("/login", handler.Login)
}
