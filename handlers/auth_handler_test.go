package handlers

import (
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ridehail/backend/models"
	"ridehail/backend/services"
)

func setupAuthApp(t *testing.T) (*fiber.App, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	app := fiber.New()
	SetupAuthRoutes(app.Group("/api/v1"), services.NewAuthService(testConfig, mock))
	return app, mock
}

func TestLogin_IssuesToken(t *testing.T) {
	app, mock := setupAuthApp(t)
	defer mock.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	userID, now := uuid.New(), time.Now()
	mock.ExpectQuery("FROM users WHERE email").
		WithArgs("ada@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "role", "created_at", "updated_at"}).
			AddRow(userID, "ada@example.com", string(hash), models.RoleDriver, now, now))

	body := map[string]any{"email": "ada@example.com", "password": "s3cret-pass"}
	resp, err := app.Test(newRequest(t, "POST", "/api/v1/auth/login", body, ""))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	data, ok := envelope(t, resp)["data"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, data["token"])
	user, ok := data["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, userID.String(), user["id"])
	assert.NotContains(t, user, "password_hash")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin_Failures(t *testing.T) {
	app, mock := setupAuthApp(t)
	defer mock.Close()

	mock.ExpectQuery("FROM users WHERE email").
		WithArgs("ghost@example.com").
		WillReturnError(pgx.ErrNoRows)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"malformed body", "{", fiber.StatusBadRequest},
		{"invalid email", map[string]any{"email": "nope", "password": "x"}, fiber.StatusBadRequest},
		{"unknown user", map[string]any{"email": "ghost@example.com", "password": "x"}, fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(newRequest(t, "POST", "/api/v1/auth/login", tt.body, ""))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
			resp.Body.Close()
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
