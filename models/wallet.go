package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletTransactionType is the kind of balance movement a ledger row records.
type WalletTransactionType string

const (
	WalletTxDeposit     WalletTransactionType = "DEPOSIT"
	WalletTxWithdrawal  WalletTransactionType = "WITHDRAWAL"
	WalletTxRidePayment WalletTransactionType = "RIDE_PAYMENT"
)

// IsCredit reports whether the transaction increases the balance.
func (t WalletTransactionType) IsCredit() bool {
	return t == WalletTxDeposit
}

const WalletTxStatusCompleted = "COMPLETED"

// Wallet is the stored-value account of a user. One per user, created lazily.
type Wallet struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	UserID    uuid.UUID       `json:"user_id" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"` // Never negative
	Currency  string          `json:"currency" db:"currency"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// WalletTransaction is one append-only ledger row.
type WalletTransaction struct {
	ID          uuid.UUID             `json:"id" db:"id"`
	WalletID    uuid.UUID             `json:"wallet_id" db:"wallet_id"`
	Type        WalletTransactionType `json:"type" db:"type"`
	Amount      decimal.Decimal       `json:"amount" db:"amount"` // Always positive; Type gives the sign
	Description string                `json:"description" db:"description"`
	Reference   string                `json:"reference" db:"reference"`
	Status      string                `json:"status" db:"status"`
	CreatedAt   time.Time             `json:"created_at" db:"created_at"`
}

// WalletSummary is returned by the balance endpoint.
type WalletSummary struct {
	Wallet       Wallet              `json:"wallet"`
	Transactions []WalletTransaction `json:"transactions"`
}

// DepositRequest credits the wallet from a settled gateway charge.
type DepositRequest struct {
	TransactionRef string `json:"transaction_ref" validate:"required"`
}

// RidePaymentReceipt is returned after a ride is paid from the wallet.
type RidePaymentReceipt struct {
	Payment Payment         `json:"payment"`
	Balance decimal.Decimal `json:"balance"` // Wallet balance after the debit
}
