package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"ridehail/backend/models"
)

func TestEventDispatcher_RideChannels(t *testing.T) {
	riderID, driverID := uuid.New(), uuid.New()

	cases := []struct {
		name      string
		eventType string
		driver    *uuid.UUID
		want      []string
	}{
		{"created goes to the driver pool", EventRideCreated, nil, []string{AvailableRidesChannel}},
		{"accepted reaches the driver", EventRideAccepted, &driverID, []string{UserChannel(driverID)}},
		{"unassigned cancel leaves the pool", EventRideCancelled, nil, []string{AvailableRidesChannel}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, rec := newTestEvents()
			ride := testRide(riderID)
			ride.DriverID = tc.driver

			events.RideChanged(tc.eventType, &ride)
			events.Wait()

			channels := rec.publishedChannels()
			assert.Contains(t, channels, RideChannel(ride.ID))
			assert.Contains(t, channels, UserChannel(riderID))
			for _, ch := range tc.want {
				assert.Contains(t, channels, ch)
			}
			assert.Equal(t, []string{tc.eventType}, rec.notifiedKeys())
		})
	}
}

func TestEventDispatcher_AssignedCancelSkipsPool(t *testing.T) {
	events, rec := newTestEvents()
	driverID := uuid.New()
	ride := testRide(uuid.New())
	ride.DriverID = &driverID

	events.RideChanged(EventRideCancelled, &ride)
	events.Wait()

	assert.NotContains(t, rec.publishedChannels(), AvailableRidesChannel)
}

func TestEventDispatcher_WalletCredited(t *testing.T) {
	events, rec := newTestEvents()
	wallet := &models.Wallet{ID: uuid.New(), UserID: uuid.New(), Balance: decimal.RequireFromString("2600")}

	events.WalletCredited(wallet, decimal.RequireFromString("2500"), "DEP-pi_1")
	events.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if assert.Len(t, rec.published, 1) {
		ev, ok := rec.published[0].Payload.(WalletEvent)
		if assert.True(t, ok) {
			assert.Equal(t, "2500.00", ev.Amount)
			assert.Equal(t, "2600.00", ev.Balance)
			assert.Equal(t, "DEP-pi_1", ev.Reference)
		}
	}
}

func TestEventDispatcher_FailuresStayInside(t *testing.T) {
	rec := &recorder{err: errors.New("broker down")}
	events := NewEventDispatcher(rec, rec, 0)

	ride := testRide(uuid.New())
	assert.NotPanics(t, func() {
		events.RideChanged(EventRideCreated, &ride)
		events.Wait()
	})
	assert.NotEmpty(t, rec.notifiedKeys())
}

func TestEventDispatcher_NilSafe(t *testing.T) {
	var events *EventDispatcher
	assert.NotPanics(t, func() {
		events.RideChanged(EventRideCreated, &models.Ride{})
		events.PaymentSettled(&models.Payment{})
		events.WalletCredited(&models.Wallet{}, decimal.Zero, "x")
		events.Wait()
	})

	d := NewEventDispatcher(nil, nil, 0)
	assert.NotPanics(t, func() {
		d.RideChanged(EventRideCreated, nil)
		d.Wait()
	})
}
