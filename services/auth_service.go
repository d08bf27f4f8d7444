package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"ridehail/backend/config"
	"ridehail/backend/database"
	"ridehail/backend/models"
)

// tokenTTL is how long an issued token stays valid.
const tokenTTL = 72 * time.Hour

const selectUserByEmailSQL = `SELECT id, email, password_hash, role, created_at, updated_at FROM users WHERE email = $1`

// AuthService issues identity tokens. Profiles and KYC are kept elsewhere; this
// service only checks credentials and signs the {user_id, role} claims the rest
// of the API trusts.
type AuthService struct {
	cfg       *config.Config
	validator *validator.Validate
	db        database.DBPool
}

// NewAuthService creates a new AuthService instance.
func NewAuthService(cfg *config.Config, db database.DBPool) *AuthService {
	return &AuthService{
		cfg:       cfg,
		validator: validator.New(),
		db:        db,
	}
}

// Login handles user authentication.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	// 1. Validate request data
	if err := s.validator.Struct(req); err != nil {
		log.Printf("Validation error during login for email %s: %v", req.Email, err)
		return nil, ValidationError("invalid login data", err)
	}

	// 2. Find the user by email
	var user models.User
	err := s.db.QueryRow(ctx, selectUserByEmailSQL, req.Email).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Printf("Login attempt failed: User not found for email %s", req.Email)
			return nil, ErrInvalidCredentials // Generic error for security
		}
		log.Printf("Error fetching user during login for email %s: %v", req.Email, err)
		return nil, InternalError("failed to log in", err)
	}

	// 3. Compare the provided password with the stored hash
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		log.Printf("Login attempt failed: Invalid password for email %s", req.Email)
		return nil, ErrInvalidCredentials
	}

	// 4. Generate JWT token
	token, err := s.GenerateToken(user.ID, user.Role)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", user.ID, err)
		return nil, InternalError("failed to generate authentication token", err)
	}

	log.Printf("User logged in successfully: %s (ID: %s, role %s)", user.Email, user.ID, user.Role)

	user.PasswordHash = ""
	return &models.LoginResponse{Token: token, User: user}, nil
}

// GenerateToken signs an HS256 token carrying user_id and role.
func (s *AuthService) GenerateToken(userID uuid.UUID, role models.Role) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"role":    string(role),
		"exp":     now.Add(tokenTTL).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signedToken, nil
}
