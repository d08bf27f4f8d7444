package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ridehail/backend/models"
)

// Notifier delivers user-facing notifications (SMS, push, email) through an
// outbound channel. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, channel string, payload any) error
}

// Publisher pushes real-time events to subscribers of a channel key.
type Publisher interface {
	Publish(ctx context.Context, channelKey string, event any) error
}

// Ride event names, also used as notification routing keys.
const (
	EventRideCreated   = "ride.created"
	EventRideAccepted  = "ride.accepted"
	EventRideStarted   = "ride.started"
	EventRideCompleted = "ride.completed"
	EventRideCancelled = "ride.cancelled"
	EventRidePaid      = "ride.paid"
	EventWalletCredit  = "wallet.credited"
)

// AvailableRidesChannel is the push channel every online driver listens on.
const AvailableRidesChannel = "drivers:available"

// RideEvent is the payload published after a committed ride change.
type RideEvent struct {
	Type       string            `json:"type"`
	RideID     uuid.UUID         `json:"ride_id"`
	RiderID    uuid.UUID         `json:"rider_id"`
	DriverID   *uuid.UUID        `json:"driver_id,omitempty"`
	Status     models.RideStatus `json:"status"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// WalletEvent is published after a committed wallet credit.
type WalletEvent struct {
	Type      string    `json:"type"`
	UserID    uuid.UUID `json:"user_id"`
	Amount    string    `json:"amount"`
	Balance   string    `json:"balance"`
	Reference string    `json:"reference"`
}

// PaymentEvent is published after a payment is committed.
type PaymentEvent struct {
	Type              string                   `json:"type"`
	PaymentID         uuid.UUID                `json:"payment_id"`
	UserID            uuid.UUID                `json:"user_id"`
	RideID            *uuid.UUID               `json:"ride_id,omitempty"`
	Amount            string                   `json:"amount"`
	RidePaymentMethod models.RidePaymentMethod `json:"ride_payment_method"`
}

// RideChannel is the push channel of a single ride.
func RideChannel(rideID uuid.UUID) string { return fmt.Sprintf("ride:%s", rideID) }

// UserChannel is the push channel of a single user.
func UserChannel(userID uuid.UUID) string { return fmt.Sprintf("user:%s", userID) }

// EventDispatcher fans committed changes out to the notifier and publisher.
// Every dispatch runs in its own goroutine with its own timeout and never
// reports back to the caller.
type EventDispatcher struct {
	notifier  Notifier
	publisher Publisher
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewEventDispatcher creates a dispatcher. Nil collaborators fall back to logging.
func NewEventDispatcher(notifier Notifier, publisher Publisher, timeout time.Duration) *EventDispatcher {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if publisher == nil {
		publisher = LogPublisher{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EventDispatcher{notifier: notifier, publisher: publisher, timeout: timeout}
}

// RideChanged publishes a ride event to the ride, rider and driver channels and
// notifies on the event's routing key. Newly created rides also go to the
// available-rides channel.
func (d *EventDispatcher) RideChanged(eventType string, ride *models.Ride) {
	if d == nil || ride == nil {
		return
	}
	ev := RideEvent{
		Type:       eventType,
		RideID:     ride.ID,
		RiderID:    ride.RiderID,
		DriverID:   ride.DriverID,
		Status:     ride.Status,
		OccurredAt: time.Now().UTC(),
	}

	channels := []string{RideChannel(ride.ID), UserChannel(ride.RiderID)}
	if ride.DriverID != nil {
		channels = append(channels, UserChannel(*ride.DriverID))
	}
	if eventType == EventRideCreated || (eventType == EventRideCancelled && ride.DriverID == nil) {
		channels = append(channels, AvailableRidesChannel)
	}
	d.dispatch(eventType, ev, channels)
}

// WalletCredited notifies a user that their wallet balance went up.
func (d *EventDispatcher) WalletCredited(wallet *models.Wallet, amount decimal.Decimal, reference string) {
	if d == nil || wallet == nil {
		return
	}
	ev := WalletEvent{
		Type:      EventWalletCredit,
		UserID:    wallet.UserID,
		Amount:    amount.StringFixed(2),
		Balance:   wallet.Balance.StringFixed(2),
		Reference: reference,
	}
	d.dispatch(EventWalletCredit, ev, []string{UserChannel(wallet.UserID)})
}

// PaymentSettled tells the payer, and the ride's channel when linked, that a payment completed.
func (d *EventDispatcher) PaymentSettled(payment *models.Payment) {
	if d == nil || payment == nil {
		return
	}
	ev := PaymentEvent{
		Type:              EventRidePaid,
		PaymentID:         payment.ID,
		UserID:            payment.UserID,
		RideID:            payment.RideID,
		Amount:            payment.Amount.StringFixed(2),
		RidePaymentMethod: payment.RidePaymentMethod,
	}
	channels := []string{UserChannel(payment.UserID)}
	if payment.RideID != nil {
		channels = append(channels, RideChannel(*payment.RideID))
	}
	d.dispatch(EventRidePaid, ev, channels)
}

func (d *EventDispatcher) dispatch(routingKey string, payload any, channels []string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		for _, ch := range channels {
			if err := d.publisher.Publish(ctx, ch, payload); err != nil {
				log.Printf("Events: failed to publish %s to %s: %v", routingKey, ch, err)
			}
		}
		if err := d.notifier.Notify(ctx, routingKey, payload); err != nil {
			log.Printf("Events: failed to notify %s: %v", routingKey, err)
		}
	}()
}

// Wait blocks until every in-flight dispatch has finished. Used on shutdown.
func (d *EventDispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// LogNotifier is used when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, channel string, payload any) error {
	log.Printf("Notify [%s]: %+v", channel, payload)
	return nil
}

// LogPublisher is used when no push transport is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, channelKey string, event any) error {
	log.Printf("Publish [%s]: %+v", channelKey, event)
	return nil
}
