package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ridehail/backend/models"
)

var rideRowColumns = []string{
	"id", "rider_id", "driver_id", "pickup_name", "pickup_lat", "pickup_lng", "destination_name", "destination_lat", "destination_lng",
	"distance_km", "ride_type", "estimated_fare", "actual_fare", "status", "created_at", "accepted_at", "started_at", "completed_at", "cancelled_at", "updated_at",
}

var paymentRowColumns = []string{
	"id", "user_id", "ride_id", "transaction_ref", "amount", "claimed_amount", "currency", "status", "provider",
	"payment_method", "ride_payment_method", "paid_at", "created_at", "updated_at",
}

var walletRowColumns = []string{"id", "user_id", "balance", "currency", "created_at", "updated_at"}

// testRide returns a PENDING ride with realistic coordinates.
func testRide(riderID uuid.UUID) models.Ride {
	pLat, pLng, dLat, dLng := 6.6018, 3.3515, 6.4281, 3.4219
	now := time.Now()
	return models.Ride{
		ID:            uuid.New(),
		RiderID:       riderID,
		Pickup:        models.Location{Name: "Ikeja", Lat: &pLat, Lng: &pLng},
		Destination:   models.Location{Name: "Victoria Island", Lat: &dLat, Lng: &dLng},
		DistanceKm:    20.8,
		RideType:      models.RideTypeFourSeater,
		EstimatedFare: decimal.RequireFromString("8200"),
		Status:        models.RideStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// rideRowValues lays a ride out in rideColumns order with the Go types scanRide expects.
func rideRowValues(r models.Ride) []any {
	pLat, pLng := r.Pickup.Coordinates()
	dLat, dLng := r.Destination.Coordinates()
	return []any{
		r.ID, r.RiderID, r.DriverID, r.Pickup.Name, pLat, pLng, r.Destination.Name, dLat, dLng,
		r.DistanceKm, r.RideType, r.EstimatedFare, r.ActualFare, r.Status,
		r.CreatedAt, r.AcceptedAt, r.StartedAt, r.CompletedAt, r.CancelledAt, r.UpdatedAt,
	}
}

func paymentRowValues(p models.Payment) []any {
	return []any{
		p.ID, p.UserID, p.RideID, p.TransactionRef, p.Amount, p.ClaimedAmount, p.Currency, p.Status, p.Provider,
		p.PaymentMethod, p.RidePaymentMethod, p.PaidAt, p.CreatedAt, p.UpdatedAt,
	}
}

func walletRowValues(w models.Wallet) []any {
	return []any{w.ID, w.UserID, w.Balance, w.Currency, w.CreatedAt, w.UpdatedAt}
}

func ptr[T any](v T) *T { return &v }

// decimalArg matches a decimal query argument by value rather than representation.
type decimalArg struct{ want decimal.Decimal }

func decimalEq(s string) decimalArg { return decimalArg{want: decimal.RequireFromString(s)} }

func (a decimalArg) Match(v interface{}) bool {
	switch d := v.(type) {
	case decimal.Decimal:
		return d.Equal(a.want)
	case *decimal.Decimal:
		return d != nil && d.Equal(a.want)
	}
	return false
}

type sentEvent struct {
	Channel string
	Payload any
}

// recorder implements both Notifier and Publisher and keeps what it was given.
type recorder struct {
	mu        sync.Mutex
	published []sentEvent
	notified  []sentEvent
	err       error
}

func (r *recorder) Publish(_ context.Context, channelKey string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, sentEvent{Channel: channelKey, Payload: event})
	return r.err
}

func (r *recorder) Notify(_ context.Context, channel string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified = append(r.notified, sentEvent{Channel: channel, Payload: payload})
	return r.err
}

func (r *recorder) publishedChannels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.published))
	for _, e := range r.published {
		out = append(out, e.Channel)
	}
	return out
}

func (r *recorder) notifiedKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notified))
	for _, e := range r.notified {
		out = append(out, e.Channel)
	}
	return out
}

func newTestEvents() (*EventDispatcher, *recorder) {
	rec := &recorder{}
	return NewEventDispatcher(rec, rec, time.Second), rec
}
