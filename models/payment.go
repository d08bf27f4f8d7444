package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the possible statuses of a payment.
// Corresponds to the 'status' column in the 'payments' table.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// RidePaymentMethod records how a ride was paid for.
type RidePaymentMethod string

const (
	RidePaymentCard   RidePaymentMethod = "CARD"
	RidePaymentWallet RidePaymentMethod = "WALLET"
)

const (
	ProviderStripe = "stripe"
	ProviderWallet = "wallet"
)

// Payment represents the structure for the 'payments' table.
type Payment struct {
	ID                uuid.UUID         `json:"id" db:"id"`
	UserID            uuid.UUID         `json:"user_id" db:"user_id"`
	RideID            *uuid.UUID        `json:"ride_id,omitempty" db:"ride_id"`
	TransactionRef    string            `json:"transaction_ref" db:"transaction_ref"` // Idempotency key, unique
	Amount            decimal.Decimal   `json:"amount" db:"amount"`                   // Gateway-verified amount
	ClaimedAmount     *decimal.Decimal  `json:"claimed_amount,omitempty" db:"claimed_amount"`
	Currency          string            `json:"currency" db:"currency"`
	Status            PaymentStatus     `json:"status" db:"status"`
	Provider          string            `json:"provider" db:"provider"`
	PaymentMethod     string            `json:"payment_method" db:"payment_method"`
	RidePaymentMethod RidePaymentMethod `json:"ride_payment_method" db:"ride_payment_method"`
	GatewayResponse   json.RawMessage   `json:"-" db:"gateway_response"` // Stored for audit only
	PaidAt            *time.Time        `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" db:"updated_at"`
}

// --- DTOs ---

// VerifyPaymentRequest is posted by the client after the gateway confirmed a charge.
type VerifyPaymentRequest struct {
	TransactionRef string           `json:"transaction_ref" validate:"required"`
	Amount         *decimal.Decimal `json:"amount,omitempty"` // What the client believes it paid
	RideID         *uuid.UUID       `json:"ride_id,omitempty"`
}

// GatewayPayment is the gateway's authoritative view of a charge.
type GatewayPayment struct {
	Reference     string
	Succeeded     bool
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	Metadata      map[string]string
	Raw           json.RawMessage
}
