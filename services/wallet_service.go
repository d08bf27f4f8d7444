package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"ridehail/backend/config"
	"ridehail/backend/database"
	"ridehail/backend/models"
)

const walletColumns = `id, user_id, balance, currency, created_at, updated_at`

const (
	ensureWalletSQL = `INSERT INTO wallets (id, user_id, balance, currency) VALUES ($1, $2, 0, $3) ON CONFLICT (user_id) DO NOTHING`

	selectWalletSQL          = `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	selectWalletForUpdateSQL = `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`

	lockRideForPaymentSQL = `SELECT rider_id, status, estimated_fare, actual_fare FROM rides WHERE id = $1 FOR UPDATE`

	ridePaidSQL = `SELECT EXISTS(SELECT 1 FROM payments WHERE ride_id = $1 AND status = 'COMPLETED')`

	// A reference collision means this movement was already applied.
	insertWalletTxSQL = `
		INSERT INTO wallet_transactions (id, wallet_id, type, amount, description, reference, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'COMPLETED')
		ON CONFLICT (reference) DO NOTHING`

	debitWalletSQL = `
		UPDATE wallets SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1
		RETURNING balance, updated_at`

	creditWalletSQL = `
		UPDATE wallets SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance, updated_at`

	upsertWalletPaymentSQL = `
		INSERT INTO payments (id, user_id, ride_id, transaction_ref, amount, currency, status, provider, payment_method, ride_payment_method, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'COMPLETED', 'wallet', 'wallet', 'WALLET', NOW())
		ON CONFLICT (ride_id) DO UPDATE
		SET transaction_ref = EXCLUDED.transaction_ref, amount = EXCLUDED.amount, currency = EXCLUDED.currency,
		    status = 'COMPLETED', provider = 'wallet', payment_method = 'wallet', ride_payment_method = 'WALLET',
		    paid_at = NOW(), updated_at = NOW()
		RETURNING ` + paymentColumns

	recentWalletTxSQL = `
		SELECT id, wallet_id, type, amount, description, reference, status, created_at
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT 20`
)

// RidePaymentReference is the ledger reference of a ride's wallet debit.
// One ride always maps to the same reference, so retries cannot debit twice.
func RidePaymentReference(rideID uuid.UUID) string { return "RIDE-" + rideID.String() }

// WalletPaymentRef is the transaction_ref of the Payment row a wallet debit settles.
func WalletPaymentRef(rideID uuid.UUID) string { return "WALLET-" + rideID.String() }

// DepositReference is the ledger reference of a gateway-funded deposit.
func DepositReference(transactionRef string) string { return "DEP-" + transactionRef }

// WalletService owns wallet balances and the append-only transaction log.
type WalletService struct {
	cfg          *config.Config
	validator    *validator.Validate
	db           database.DBPool
	stripeClient StripeService
	events       *EventDispatcher
}

// NewWalletService creates a new WalletService instance.
func NewWalletService(cfg *config.Config, db database.DBPool, stripeClient StripeService, events *EventDispatcher) *WalletService {
	return &WalletService{
		cfg:          cfg,
		validator:    validator.New(),
		db:           db,
		stripeClient: stripeClient,
		events:       events,
	}
}

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	if err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// lockWallet creates the user's wallet if needed and returns it locked for the
// rest of tx.
func (s *WalletService) lockWallet(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	if _, err := tx.Exec(ctx, ensureWalletSQL, uuid.New(), userID, s.cfg.PaymentCurrency); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	wallet, err := scanWallet(tx.QueryRow(ctx, selectWalletForUpdateSQL, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return wallet, nil
}

// PayRideFromWallet settles a ride's fare from the rider's wallet. The debit, the
// ledger row and the COMPLETED payment commit together or not at all.
func (s *WalletService) PayRideFromWallet(ctx context.Context, rideID, riderID uuid.UUID) (*models.RidePaymentReceipt, error) {
	log.Printf("Wallet payment requested for ride %s by rider %s", rideID, riderID)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		log.Printf("Error beginning wallet payment transaction for ride %s: %v", rideID, err)
		return nil, InternalError("failed to pay ride", err)
	}
	defer tx.Rollback(ctx) // Rollback is a no-op after Commit

	// 1. Lock the ride and check ownership
	var (
		owner         uuid.UUID
		status        models.RideStatus
		estimatedFare decimal.Decimal
		actualFare    *decimal.Decimal
	)
	if err := tx.QueryRow(ctx, lockRideForPaymentSQL, rideID).Scan(&owner, &status, &estimatedFare, &actualFare); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRideNotFound
		}
		log.Printf("Error locking ride %s for wallet payment: %v", rideID, err)
		return nil, InternalError("failed to pay ride", err)
	}
	if owner != riderID {
		return nil, ErrNotRideOwner
	}
	if status == models.RideStatusCancelled {
		return nil, ConflictError("cannot pay for a cancelled ride")
	}

	// 2. One payment per ride
	var paid bool
	if err := tx.QueryRow(ctx, ridePaidSQL, rideID).Scan(&paid); err != nil {
		log.Printf("Error checking payment state of ride %s: %v", rideID, err)
		return nil, InternalError("failed to pay ride", err)
	}
	if paid {
		return nil, ErrRideAlreadyPaid
	}

	// 3. Lock the wallet and check funds
	wallet, err := s.lockWallet(ctx, tx, riderID)
	if err != nil {
		log.Printf("Error loading wallet of rider %s: %v", riderID, err)
		return nil, InternalError("failed to pay ride", err)
	}
	fare := estimatedFare
	if actualFare != nil {
		fare = *actualFare
	}
	if wallet.Balance.LessThan(fare) {
		log.Printf("Insufficient funds for ride %s: balance %s, fare %s", rideID, wallet.Balance.StringFixed(2), fare.StringFixed(2))
		return nil, &InsufficientFundsError{Balance: wallet.Balance, Required: fare}
	}

	// 4. Append the ledger row; the reference is derived from the ride
	tag, err := tx.Exec(ctx, insertWalletTxSQL,
		uuid.New(), wallet.ID, string(models.WalletTxRidePayment), fare,
		fmt.Sprintf("Payment for ride %s", rideID), RidePaymentReference(rideID))
	if err != nil {
		log.Printf("Error recording wallet debit for ride %s: %v", rideID, err)
		return nil, InternalError("failed to pay ride", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrRideAlreadyPaid
	}

	// 5. Conditional debit
	if err := tx.QueryRow(ctx, debitWalletSQL, fare, wallet.ID).Scan(&wallet.Balance, &wallet.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &InsufficientFundsError{Balance: wallet.Balance, Required: fare}
		}
		log.Printf("Error debiting wallet %s for ride %s: %v", wallet.ID, rideID, err)
		return nil, InternalError("failed to pay ride", err)
	}

	// 6. Mark the ride's payment complete
	payment, err := scanPayment(tx.QueryRow(ctx, upsertWalletPaymentSQL,
		uuid.New(), riderID, rideID, WalletPaymentRef(rideID), fare, wallet.Currency))
	if err != nil {
		log.Printf("Error upserting wallet payment for ride %s: %v", rideID, err)
		return nil, InternalError("failed to pay ride", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("Error committing wallet payment for ride %s: %v", rideID, err)
		return nil, InternalError("failed to pay ride", err)
	}

	log.Printf("Ride %s paid from wallet %s: %s debited, balance now %s", rideID, wallet.ID, fare.StringFixed(2), wallet.Balance.StringFixed(2))
	s.events.PaymentSettled(payment)
	return &models.RidePaymentReceipt{Payment: *payment, Balance: wallet.Balance}, nil
}

// GetWalletBalance returns the wallet, creating it on first access, with its
// most recent transactions.
func (s *WalletService) GetWalletBalance(ctx context.Context, userID uuid.UUID) (*models.WalletSummary, error) {
	if _, err := s.db.Exec(ctx, ensureWalletSQL, uuid.New(), userID, s.cfg.PaymentCurrency); err != nil {
		log.Printf("Error creating wallet for user %s: %v", userID, err)
		return nil, InternalError("failed to load wallet", err)
	}
	wallet, err := scanWallet(s.db.QueryRow(ctx, selectWalletSQL, userID))
	if err != nil {
		log.Printf("Error loading wallet for user %s: %v", userID, err)
		return nil, InternalError("failed to load wallet", err)
	}

	rows, err := s.db.Query(ctx, recentWalletTxSQL, wallet.ID)
	if err != nil {
		log.Printf("Error loading transactions of wallet %s: %v", wallet.ID, err)
		return nil, InternalError("failed to load wallet", err)
	}
	defer rows.Close()

	summary := &models.WalletSummary{Wallet: *wallet, Transactions: []models.WalletTransaction{}}
	for rows.Next() {
		var t models.WalletTransaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.Description, &t.Reference, &t.Status, &t.CreatedAt); err != nil {
			log.Printf("Error scanning wallet transaction: %v", err)
			return nil, InternalError("failed to load wallet", err)
		}
		summary.Transactions = append(summary.Transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, InternalError("failed to load wallet", err)
	}
	return summary, nil
}

// DepositToWallet credits the wallet with a charge the gateway confirms. The
// charge must carry the caller's user_id, and the credited amount is the
// gateway's, never the client's.
func (s *WalletService) DepositToWallet(ctx context.Context, userID uuid.UUID, req models.DepositRequest) (*models.Wallet, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, ValidationError("invalid deposit request", err)
	}

	gp, err := verifyGatewayPayment(ctx, s.stripeClient, s.cfg.GatewayTimeout, req.TransactionRef)
	if err != nil {
		return nil, err
	}
	if err := checkGatewayOwner(gp, userID); err != nil {
		return nil, err
	}
	if gp.Metadata[MetadataPurpose] != PurposeWalletDeposit {
		return nil, ValidationError("payment was not made for a wallet deposit", nil)
	}

	return s.CreditDeposit(ctx, userID, gp)
}

// CreditDeposit appends a DEPOSIT keyed by the gateway reference and credits the
// balance. A repeated reference leaves the wallet untouched.
func (s *WalletService) CreditDeposit(ctx context.Context, userID uuid.UUID, gp *models.GatewayPayment) (*models.Wallet, error) {
	if !gp.Amount.IsPositive() {
		return nil, ValidationError("deposit amount must be positive", nil)
	}
	reference := DepositReference(gp.Reference)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		log.Printf("Error beginning deposit transaction %s: %v", reference, err)
		return nil, InternalError("failed to credit wallet", err)
	}
	defer tx.Rollback(ctx)

	wallet, err := s.lockWallet(ctx, tx, userID)
	if err != nil {
		log.Printf("Error loading wallet of user %s for deposit %s: %v", userID, reference, err)
		return nil, InternalError("failed to credit wallet", err)
	}

	tag, err := tx.Exec(ctx, insertWalletTxSQL,
		uuid.New(), wallet.ID, string(models.WalletTxDeposit), gp.Amount,
		fmt.Sprintf("Wallet top-up via %s", gp.PaymentMethod), reference)
	if err != nil {
		log.Printf("Error recording deposit %s: %v", reference, err)
		return nil, InternalError("failed to credit wallet", err)
	}
	if tag.RowsAffected() == 0 {
		log.Printf("Deposit %s already applied to wallet %s", reference, wallet.ID)
		return wallet, nil
	}

	if err := tx.QueryRow(ctx, creditWalletSQL, gp.Amount, wallet.ID).Scan(&wallet.Balance, &wallet.UpdatedAt); err != nil {
		log.Printf("Error crediting wallet %s with %s: %v", wallet.ID, reference, err)
		return nil, InternalError("failed to credit wallet", err)
	}
	if err := tx.Commit(ctx); err != nil {
		log.Printf("Error committing deposit %s: %v", reference, err)
		return nil, InternalError("failed to credit wallet", err)
	}

	log.Printf("Wallet %s credited %s (%s), balance now %s", wallet.ID, gp.Amount.StringFixed(2), reference, wallet.Balance.StringFixed(2))
	s.events.WalletCredited(wallet, gp.Amount, reference)
	return wallet, nil
}
