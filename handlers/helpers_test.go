package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ridehail/backend/config"
	"ridehail/backend/middleware"
	"ridehail/backend/models"
	"ridehail/backend/services"
)

var testConfig = &config.Config{
	JWTSecret:           "handler-test-secret",
	PaymentCurrency:     "ngn",
	GatewayTimeout:      time.Second,
	StripeWebhookSecret: "whsec_handler_test",
}

var rideRowColumns = []string{
	"id", "rider_id", "driver_id", "pickup_name", "pickup_lat", "pickup_lng", "destination_name", "destination_lat", "destination_lng",
	"distance_km", "ride_type", "estimated_fare", "actual_fare", "status", "created_at", "accepted_at", "started_at", "completed_at", "cancelled_at", "updated_at",
}

// rideRow builds a ride row in the column order the ride queries select.
func rideRow(rideID, riderID uuid.UUID, driverID *uuid.UUID, status models.RideStatus) []any {
	now := time.Now()
	var acceptedAt *time.Time
	if driverID != nil {
		acceptedAt = &now
	}
	return []any{
		rideID, riderID, driverID, "Ikeja", 6.6018, 3.3515, "Victoria Island", 6.4281, 3.4219,
		20.8, models.RideTypeFourSeater, decimal.RequireFromString("8200"), (*decimal.Decimal)(nil), status,
		now, acceptedAt, (*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil), now,
	}
}

func bearer(t *testing.T, userID uuid.UUID, role models.Role) string {
	t.Helper()
	token, err := services.NewAuthService(testConfig, nil).GenerateToken(userID, role)
	require.NoError(t, err)
	return "Bearer " + token
}

func newRequest(t *testing.T, method, target string, body any, auth string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return req
}

// envelope decodes the standard {"status","message","data"} response.
func envelope(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func noIdempotency() fiber.Handler { return middleware.Idempotency(nil, 0) }
