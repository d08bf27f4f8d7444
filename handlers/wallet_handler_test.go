package handlers

import (
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/backend/middleware"
	"ridehail/backend/models"
	"ridehail/backend/services"
)

var walletRowColumns = []string{"id", "user_id", "balance", "currency", "created_at", "updated_at"}

func setupWalletApp(t *testing.T) (*fiber.App, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	auth := middleware.Protected(testConfig)
	app := fiber.New()
	api := app.Group("/api/v1")
	rides := SetupRideRoutes(api, services.NewRideService(mock, nil), auth, noIdempotency())
	SetupWalletRoutes(api, rides, services.NewWalletService(testConfig, mock, &stubGateway{}, nil), auth, noIdempotency())
	return app, mock
}

func expectWallet(mock pgxmock.PgxPoolIface, userID uuid.UUID, balance string, forUpdate bool) uuid.UUID {
	walletID := uuid.New()
	now := time.Now()
	mock.ExpectExec("INSERT INTO wallets").
		WithArgs(pgxmock.AnyArg(), userID, "ngn").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	query := "FROM wallets WHERE user_id"
	if forUpdate {
		query += ".*FOR UPDATE"
	}
	mock.ExpectQuery(query).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows(walletRowColumns).AddRow(walletID, userID, decimal.RequireFromString(balance), "ngn", now, now))
	return walletID
}

func TestWalletRoutes_PayRideInsufficientFunds(t *testing.T) {
	app, mock := setupWalletApp(t)
	defer mock.Close()

	riderID, rideID := uuid.New(), uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT rider_id, status, estimated_fare, actual_fare FROM rides").
		WithArgs(rideID).
		WillReturnRows(pgxmock.NewRows([]string{"rider_id", "status", "estimated_fare", "actual_fare"}).
			AddRow(riderID, models.RideStatusInProgress, decimal.RequireFromString("8200"), (*decimal.Decimal)(nil)))
	mock.ExpectQuery("FROM payments WHERE ride_id").
		WithArgs(rideID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	expectWallet(mock, riderID, "500", true)
	mock.ExpectRollback()

	req := newRequest(t, "POST", "/api/v1/rides/"+rideID.String()+"/pay/wallet", nil, bearer(t, riderID, models.RoleRider))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	body := envelope(t, resp)
	assert.Equal(t, codeInsufficientFunds, body["code"])
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "500.00", data["balance"])
	assert.Equal(t, "8200.00", data["required"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRoutes_GetWallet(t *testing.T) {
	app, mock := setupWalletApp(t)
	defer mock.Close()

	userID := uuid.New()
	walletID := expectWallet(mock, userID, "2500", false)
	mock.ExpectQuery("FROM wallet_transactions").
		WithArgs(walletID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "wallet_id", "type", "amount", "description", "reference", "status", "created_at"}))

	resp, err := app.Test(newRequest(t, "GET", "/api/v1/wallet", nil, bearer(t, userID, models.RoleRider)))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	data, ok := envelope(t, resp)["data"].(map[string]any)
	require.True(t, ok)
	wallet, ok := data["wallet"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, walletID.String(), wallet["id"])
	assert.Equal(t, []any{}, data["transactions"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRoutes_Rejections(t *testing.T) {
	app, mock := setupWalletApp(t)
	defer mock.Close()

	userID := uuid.New()
	rideID := uuid.New().String()
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		auth   string
		want   int
	}{
		{"no token", "GET", "/api/v1/wallet", nil, "", fiber.StatusUnauthorized},
		{"driver cannot pay rides", "POST", "/api/v1/rides/" + rideID + "/pay/wallet", nil, bearer(t, userID, models.RoleDriver), fiber.StatusForbidden},
		{"malformed ride id", "POST", "/api/v1/rides/xyz/pay/wallet", nil, bearer(t, userID, models.RoleRider), fiber.StatusBadRequest},
		{"malformed deposit", "POST", "/api/v1/wallet/deposit", "[", bearer(t, userID, models.RoleRider), fiber.StatusBadRequest},
		{"deposit without reference", "POST", "/api/v1/wallet/deposit", map[string]any{}, bearer(t, userID, models.RoleRider), fiber.StatusBadRequest},
		{"unverifiable deposit", "POST", "/api/v1/wallet/deposit", map[string]any{"transaction_ref": "pi_missing"}, bearer(t, userID, models.RoleRider), fiber.StatusPaymentRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(newRequest(t, tt.method, tt.path, tt.body, tt.auth))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
			resp.Body.Close()
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
