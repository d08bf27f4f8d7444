package services

import (
	"context"
	"encoding/json" // For handling webhook JSON payload
	"errors"
	"fmt"
	"io" // For reading webhook request body
	"log"
	"net/http" // For webhook request object
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"        // For pgx errors
	"github.com/jackc/pgx/v5/pgconn" // Import pgconn for PgError type
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72" // Use specific version

	"ridehail/backend/config"
	"ridehail/backend/database"
	"ridehail/backend/models"
)

// maxWebhookBodyBytes bounds a webhook request body. Larger bodies are
// rejected rather than truncated.
const maxWebhookBodyBytes = int64(1 << 20)

const paymentColumns = `id, user_id, ride_id, transaction_ref, amount, claimed_amount, currency, status, provider,
		payment_method, ride_payment_method, paid_at, created_at, updated_at`

const (
	selectPaymentByRefSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_ref = $1`
	selectPaymentByIDSQL  = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	userPaymentsSQL       = `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`
	allPaymentsSQL        = `SELECT ` + paymentColumns + ` FROM payments ORDER BY created_at DESC`

	lockRideForSettlementSQL = `SELECT rider_id, status, COALESCE(actual_fare, estimated_fare) FROM rides WHERE id = $1 FOR UPDATE`

	// Only the transaction_ref conflict is absorbed; a second payment for the
	// same ride still fails on the ride_id unique constraint.
	insertGatewayPaymentSQL = `
		INSERT INTO payments (id, user_id, ride_id, transaction_ref, amount, claimed_amount, currency, status, provider, payment_method, ride_payment_method, gateway_response, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'COMPLETED', 'stripe', $8, 'CARD', $9, NOW())
		ON CONFLICT (transaction_ref) DO NOTHING
		RETURNING ` + paymentColumns

	completePaidRideSQL = `
		UPDATE rides
		SET status = 'COMPLETED', completed_at = COALESCE(completed_at, NOW()),
		    actual_fare = COALESCE(actual_fare, estimated_fare), updated_at = NOW()
		WHERE id = $1 AND status = 'IN_PROGRESS'
		RETURNING ` + rideColumns
)

// PaymentService settles gateway payments and reconciles gateway webhooks.
type PaymentService struct {
	cfg          *config.Config
	validator    *validator.Validate
	db           database.DBPool
	stripeClient StripeService // Inject Stripe client interface
	wallets      *WalletService
	events       *EventDispatcher
}

// NewPaymentService creates a new PaymentService instance.
func NewPaymentService(cfg *config.Config, db database.DBPool, stripeClient StripeService, wallets *WalletService, events *EventDispatcher) *PaymentService {
	return &PaymentService{
		cfg:          cfg,
		validator:    validator.New(),
		db:           db,
		stripeClient: stripeClient,
		wallets:      wallets,
		events:       events,
	}
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(
		&p.ID, &p.UserID, &p.RideID, &p.TransactionRef, &p.Amount, &p.ClaimedAmount, &p.Currency, &p.Status, &p.Provider,
		&p.PaymentMethod, &p.RidePaymentMethod, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// verifyGatewayPayment asks Stripe for the charge behind ref, bounded by timeout.
// Anything short of a confirmed success is a PaymentVerificationError.
func verifyGatewayPayment(ctx context.Context, stripeClient StripeService, timeout time.Duration, ref string) (*models.GatewayPayment, error) {
	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pi, err := stripeClient.RetrievePaymentIntent(vctx, ref)
	if err != nil {
		if errors.Is(vctx.Err(), context.DeadlineExceeded) {
			log.Printf("Gateway verification of %s timed out after %s", ref, timeout)
			return nil, PaymentVerificationError("payment gateway did not respond in time", err)
		}
		log.Printf("Gateway verification of %s failed: %v", ref, err)
		return nil, PaymentVerificationError("payment could not be verified", err)
	}
	if pi == nil {
		return nil, PaymentVerificationError("payment could not be verified", nil)
	}

	gp := gatewayPaymentFromIntent(pi, nil)
	if !gp.Succeeded {
		log.Printf("Gateway reports payment %s with status %s", ref, pi.Status)
		return nil, PaymentVerificationError(fmt.Sprintf("payment not successful (status %s)", pi.Status), nil)
	}
	return gp, nil
}

// SettleGatewayPayment records a gateway charge the client says succeeded. The
// gateway is asked first; the stored amount is the one it confirms. The charge
// must name the caller as its owner, and a ride is linked only through the
// charge's own ride_id metadata; req.RideID can confirm that link but never
// create it. Calling it again with the same reference returns the existing
// payment.
func (s *PaymentService) SettleGatewayPayment(ctx context.Context, userID uuid.UUID, req models.VerifyPaymentRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, ValidationError("invalid payment verification request", err)
	}
	log.Printf("Settling gateway payment %s for user %s", req.TransactionRef, userID)

	// 1. Verify with the gateway
	gp, err := verifyGatewayPayment(ctx, s.stripeClient, s.cfg.GatewayTimeout, req.TransactionRef)
	if err != nil {
		return nil, err
	}
	if err := checkGatewayOwner(gp, userID); err != nil {
		return nil, err
	}
	if gp.Metadata[MetadataPurpose] == PurposeWalletDeposit {
		return nil, ValidationError("wallet deposits are credited through the wallet deposit endpoint", nil)
	}

	// 2. Resolve the ride the payment is for
	var rideID *uuid.UUID
	if raw := gp.Metadata[MetadataRideID]; raw != "" {
		metaRide, err := uuid.Parse(raw)
		if err != nil {
			return nil, ValidationError("payment carries an invalid ride reference", err)
		}
		if req.RideID != nil && *req.RideID != metaRide {
			return nil, ValidationError("payment was made for a different ride", nil)
		}
		rideID = &metaRide
	} else if req.RideID != nil {
		log.Printf("Payment %s carries no ride reference, refusing to link it to ride %s", req.TransactionRef, *req.RideID)
		return nil, PaymentVerificationError("payment was not made for this ride", nil)
	}

	// 3. Commit exactly once
	return s.commitGatewayPayment(ctx, userID, rideID, gp, req.Amount)
}

// checkGatewayOwner requires the charge's user_id metadata to name userID.
func checkGatewayOwner(gp *models.GatewayPayment, userID uuid.UUID) error {
	owner := gp.Metadata[MetadataUserID]
	if owner == "" {
		log.Printf("Payment %s carries no owner, refusing it for user %s", gp.Reference, userID)
		return PaymentVerificationError("payment is not attributed to a user", nil)
	}
	if owner != userID.String() {
		log.Printf("User %s tried to claim payment %s owned by %s", userID, gp.Reference, owner)
		return ForbiddenError("payment belongs to another user")
	}
	return nil
}

// commitGatewayPayment is shared by client verification and the webhook. A
// linked ride must belong to userID and the confirmed amount must cover its fare.
func (s *PaymentService) commitGatewayPayment(ctx context.Context, userID uuid.UUID, rideID *uuid.UUID, gp *models.GatewayPayment, claimed *decimal.Decimal) (*models.Payment, error) {
	if claimed != nil && !claimed.Equal(gp.Amount) {
		log.Printf("Amount mismatch for payment %s: client claimed %s, gateway confirmed %s; storing confirmed amount",
			gp.Reference, claimed.StringFixed(2), gp.Amount.StringFixed(2))
	}

	// 1. Already settled?
	existing, err := s.paymentByRef(ctx, gp.Reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Printf("Payment %s already settled as %s", gp.Reference, existing.ID)
		return existing, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		log.Printf("Error beginning settlement transaction for %s: %v", gp.Reference, err)
		return nil, InternalError("failed to settle payment", err)
	}
	defer tx.Rollback(ctx)

	// 2. Lock the linked ride
	var rideStatus models.RideStatus
	if rideID != nil {
		var (
			rider uuid.UUID
			fare  decimal.Decimal
		)
		if err := tx.QueryRow(ctx, lockRideForSettlementSQL, *rideID).Scan(&rider, &rideStatus, &fare); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrRideNotFound
			}
			log.Printf("Error locking ride %s for payment %s: %v", *rideID, gp.Reference, err)
			return nil, InternalError("failed to settle payment", err)
		}
		if rider != userID {
			log.Printf("Payment %s by user %s targets ride %s of rider %s", gp.Reference, userID, *rideID, rider)
			return nil, ErrNotRideOwner
		}
		if gp.Amount.LessThan(fare) {
			log.Printf("Payment %s of %s does not cover ride %s fare %s", gp.Reference, gp.Amount.StringFixed(2), *rideID, fare.StringFixed(2))
			return nil, PaymentVerificationError(
				fmt.Sprintf("payment amount %s is less than the ride fare %s", gp.Amount.StringFixed(2), fare.StringFixed(2)), nil)
		}
	}

	// 3. Insert; a concurrent settle of the same reference inserts nothing
	currency := gp.Currency
	if currency == "" {
		currency = s.cfg.PaymentCurrency
	}
	payment, err := scanPayment(tx.QueryRow(ctx, insertGatewayPaymentSQL,
		uuid.New(), userID, rideID, gp.Reference, gp.Amount, claimed, currency, gp.PaymentMethod, gp.Raw))
	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			_ = tx.Rollback(ctx)
			log.Printf("Payment %s settled concurrently, returning the committed row", gp.Reference)
			winner, err := s.paymentByRef(ctx, gp.Reference)
			if err != nil {
				return nil, err
			}
			if winner == nil {
				return nil, InternalError("failed to settle payment", fmt.Errorf("payment %s vanished after conflict", gp.Reference))
			}
			return winner, nil
		case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
			log.Printf("Ride %v already has a payment, rejecting %s", rideID, gp.Reference)
			return nil, ErrRideAlreadyPaid
		}
		log.Printf("Error inserting payment %s: %v", gp.Reference, err)
		return nil, InternalError("failed to settle payment", err)
	}

	// 4. Payment finishes an in-progress trip
	var completed *models.Ride
	if rideID != nil {
		if s.cfg.PaymentCompletesRide && rideStatus == models.RideStatusInProgress {
			completed, err = scanRide(tx.QueryRow(ctx, completePaidRideSQL, *rideID))
			if err != nil {
				log.Printf("Error completing ride %s after payment %s: %v", *rideID, gp.Reference, err)
				return nil, InternalError("failed to settle payment", err)
			}
			log.Printf("Ride %s completed by payment %s", *rideID, gp.Reference)
		} else {
			log.Printf("Ride %s left in status %s after payment %s", *rideID, rideStatus, gp.Reference)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("Error committing payment %s: %v", gp.Reference, err)
		return nil, InternalError("failed to settle payment", err)
	}

	log.Printf("Payment %s settled: %s %s for user %s", gp.Reference, payment.Amount.StringFixed(2), payment.Currency, userID)
	s.events.PaymentSettled(payment)
	if completed != nil {
		s.events.RideChanged(EventRideCompleted, completed)
	}
	return payment, nil
}

func (s *PaymentService) paymentByRef(ctx context.Context, ref string) (*models.Payment, error) {
	payment, err := scanPayment(s.db.QueryRow(ctx, selectPaymentByRefSQL, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		log.Printf("Error looking up payment %s: %v", ref, err)
		return nil, InternalError("failed to look up payment", err)
	}
	return payment, nil
}

// HandleStripeWebhook processes incoming webhook events from Stripe. The
// signature is checked before the body is decoded. Events that can never succeed
// are logged and acknowledged; only internal failures return an error so Stripe
// redelivers.
func (s *PaymentService) HandleStripeWebhook(request *http.Request) error {
	defer request.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(request.Body, maxWebhookBodyBytes+1))
	if err != nil {
		log.Printf("Webhook Error: reading body: %v", err)
		return InternalError("failed to read webhook body", err)
	}
	if int64(len(payload)) > maxWebhookBodyBytes {
		log.Printf("Webhook Error: body exceeds %d bytes", maxWebhookBodyBytes)
		return ErrWebhookTooLarge
	}

	signature := request.Header.Get("Stripe-Signature")
	event, err := s.stripeClient.ConstructWebhookEvent(payload, signature, s.cfg.StripeWebhookSecret)
	if err != nil {
		log.Printf("Webhook Error: signature verification failed: %v", err)
		return ErrInvalidWebhookSignature
	}
	log.Printf("Webhook: event %s (%s) received", event.ID, event.Type)

	ctx := request.Context()
	switch event.Type {
	case "payment_intent.succeeded":
		var paymentIntent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &paymentIntent); err != nil {
			log.Printf("Webhook Error: decoding %s: %v", event.Type, err)
			return ValidationError("malformed payment intent", err)
		}
		return s.handlePaymentIntentSucceeded(ctx, &paymentIntent, event.Data.Raw)

	case "payment_intent.payment_failed":
		var paymentIntent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &paymentIntent); err != nil {
			log.Printf("Webhook Error: decoding %s: %v", event.Type, err)
			return ValidationError("malformed payment intent", err)
		}
		reason := ""
		if paymentIntent.LastPaymentError != nil {
			reason = paymentIntent.LastPaymentError.Msg
		}
		log.Printf("Webhook: payment %s failed for user %s: %s", paymentIntent.ID, paymentIntent.Metadata[MetadataUserID], reason)
		return nil

	default:
		log.Printf("Webhook Info: Unhandled event type: %s", event.Type)
	}

	return nil // Acknowledge receipt
}

func (s *PaymentService) handlePaymentIntentSucceeded(ctx context.Context, pi *stripe.PaymentIntent, raw json.RawMessage) error {
	gp := gatewayPaymentFromIntent(pi, raw)

	userID, err := uuid.Parse(gp.Metadata[MetadataUserID])
	if err != nil {
		log.Printf("Webhook Warning: payment %s carries no valid user_id, ignoring", pi.ID)
		return nil
	}

	if gp.Metadata[MetadataPurpose] == PurposeWalletDeposit {
		_, err := s.wallets.CreditDeposit(ctx, userID, gp)
		return s.webhookOutcome(pi.ID, err)
	}

	var rideID *uuid.UUID
	if raw := gp.Metadata[MetadataRideID]; raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			log.Printf("Webhook Warning: payment %s carries invalid ride_id %q, ignoring", pi.ID, raw)
			return nil
		}
		rideID = &id
	}

	_, err = s.commitGatewayPayment(ctx, userID, rideID, gp, nil)
	return s.webhookOutcome(pi.ID, err)
}

// webhookOutcome acknowledges everything except failures a redelivery could fix.
func (s *PaymentService) webhookOutcome(ref string, err error) error {
	if err == nil {
		log.Printf("Webhook: payment %s reconciled", ref)
		return nil
	}
	if KindOf(err) == KindInternal {
		log.Printf("Webhook Error: payment %s could not be reconciled, asking for redelivery: %v", ref, err)
		return err
	}
	log.Printf("Webhook Warning: payment %s acknowledged without effect: %v", ref, err)
	return nil
}

// GetPayment returns a payment to its payer or an admin.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID uuid.UUID, who models.Identity) (*models.Payment, error) {
	payment, err := scanPayment(s.db.QueryRow(ctx, selectPaymentByIDSQL, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		log.Printf("Error fetching payment %s: %v", paymentID, err)
		return nil, InternalError("failed to fetch payment", err)
	}
	if who.Role != models.RoleAdmin && payment.UserID != who.UserID {
		return nil, ForbiddenError("you do not have access to this payment")
	}
	return payment, nil
}

// ListPayments returns the caller's payments, or every payment for an admin.
func (s *PaymentService) ListPayments(ctx context.Context, who models.Identity) ([]models.Payment, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if who.Role == models.RoleAdmin {
		rows, err = s.db.Query(ctx, allPaymentsSQL)
	} else {
		rows, err = s.db.Query(ctx, userPaymentsSQL, who.UserID)
	}
	if err != nil {
		log.Printf("Error listing payments for user %s: %v", who.UserID, err)
		return nil, InternalError("failed to list payments", err)
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			log.Printf("Error scanning payment row: %v", err)
			return nil, InternalError("failed to list payments", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, InternalError("failed to list payments", err)
	}
	return payments, nil
}
