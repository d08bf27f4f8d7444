package middleware

import (
	"errors" // Import errors package
	"log"
	"strings" // For string manipulation (Bearer token)

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid" // For parsing UUID from token

	"ridehail/backend/config" // To get JWT secret
	"ridehail/backend/models"
)

// identityKey is the fiber.Locals key the verified caller is stored under.
const identityKey = "identity"

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"status":  "error",
		"message": message,
	})
}

// Protected is a middleware function to protect routes that require authentication.
// It verifies the JWT token from the Authorization header and stores the caller's
// models.Identity for later handlers.
func Protected(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Println("Auth Middleware: Missing Authorization header")
			return unauthorized(c, "Unauthorized: Missing authorization token")
		}

		// Check if the header format is "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Println("Auth Middleware: Invalid Authorization header format")
			return unauthorized(c, "Unauthorized: Invalid token format")
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				log.Printf("Auth Middleware: Unexpected signing method: %v", token.Header["alg"])
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil {
			log.Printf("Auth Middleware: Error parsing or validating token: %v", err)
			if errors.Is(err, jwt.ErrTokenExpired) {
				return unauthorized(c, "Unauthorized: Token has expired")
			}
			return unauthorized(c, "Unauthorized: Invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			log.Println("Auth Middleware: Token deemed invalid.")
			return unauthorized(c, "Unauthorized: Invalid token")
		}

		userIDStr, ok := claims["user_id"].(string)
		if !ok {
			log.Println("Auth Middleware: 'user_id' claim missing or not a string in token")
			return unauthorized(c, "Unauthorized: Invalid token claims (missing user_id)")
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			log.Printf("Auth Middleware: Failed to parse user_id claim '%s' as UUID: %v", userIDStr, err)
			return unauthorized(c, "Unauthorized: Invalid token claims (invalid user_id format)")
		}

		roleStr, _ := claims["role"].(string)
		role := models.Role(roleStr)
		if !role.Valid() {
			log.Printf("Auth Middleware: Token for user %s carries unknown role %q", userID, roleStr)
			return unauthorized(c, "Unauthorized: Invalid token claims (role)")
		}

		c.Locals(identityKey, models.Identity{UserID: userID, Role: role})
		c.Locals("userID", userID)
		return c.Next()
	}
}

// IdentityFrom returns the caller stored by Protected.
func IdentityFrom(c *fiber.Ctx) (models.Identity, bool) {
	who, ok := c.Locals(identityKey).(models.Identity)
	return who, ok
}

// RequireRole rejects callers whose role is not in roles. It must run after Protected.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		who, ok := IdentityFrom(c)
		if !ok {
			return unauthorized(c, "Unauthorized: Missing user identification.")
		}
		for _, r := range roles {
			if who.Role == r {
				return c.Next()
			}
		}
		log.Printf("Auth Middleware: User %s with role %s denied access to %s %s", who.UserID, who.Role, c.Method(), c.Path())
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"status":  "error",
			"message": "Forbidden: this action requires a different role",
		})
	}
}
