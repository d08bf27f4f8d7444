package services

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72" // Use specific version
	"github.com/stripe/stripe-go/v72/client"
	"github.com/stripe/stripe-go/v72/webhook"

	"ridehail/backend/models"
)

// Metadata keys set on every PaymentIntent the apps create.
const (
	MetadataUserID  = "user_id"
	MetadataRideID  = "ride_id"
	MetadataPurpose = "purpose"

	PurposeRidePayment   = "ride_payment"
	PurposeWalletDeposit = "wallet_deposit"
)

// StripeService defines the subset of the Stripe API this backend relies on.
// This allows for mocking in tests.
type StripeService interface {
	RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	ConstructWebhookEvent(payload []byte, signatureHeader string, secret string) (stripe.Event, error)
}

// StripeServiceImpl talks to the real Stripe API.
type StripeServiceImpl struct {
	api *client.API
}

// NewStripeServiceImpl builds a client whose HTTP calls are bounded by timeout.
func NewStripeServiceImpl(secretKey string, timeout time.Duration) *StripeServiceImpl {
	httpClient := &http.Client{Timeout: timeout}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{HTTPClient: httpClient}),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, &stripe.BackendConfig{HTTPClient: httpClient}),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, &stripe.BackendConfig{HTTPClient: httpClient}),
	}
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeServiceImpl{api: api}
}

// RetrievePaymentIntent fetches a PaymentIntent; ctx cancels the HTTP call.
func (s *StripeServiceImpl) RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	return s.api.PaymentIntents.Get(id, params)
}

// ConstructWebhookEvent checks the Stripe-Signature header against the raw payload
// before decoding it.
func (s *StripeServiceImpl) ConstructWebhookEvent(payload []byte, signatureHeader string, secret string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signatureHeader, secret)
}

// gatewayPaymentFromIntent converts Stripe's view of a charge into ours. Stripe
// reports amounts in minor units.
func gatewayPaymentFromIntent(pi *stripe.PaymentIntent, raw json.RawMessage) *models.GatewayPayment {
	minor := pi.AmountReceived
	if minor == 0 {
		minor = pi.Amount
	}

	method := "card"
	if pi.PaymentMethod != nil && pi.PaymentMethod.Type != "" {
		method = string(pi.PaymentMethod.Type)
	} else if len(pi.PaymentMethodTypes) > 0 {
		method = pi.PaymentMethodTypes[0]
	}

	if raw == nil {
		if pi.LastResponse != nil && len(pi.LastResponse.RawJSON) > 0 {
			raw = pi.LastResponse.RawJSON
		} else if b, err := json.Marshal(pi); err == nil {
			raw = b
		}
	}

	metadata := pi.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	return &models.GatewayPayment{
		Reference:     pi.ID,
		Succeeded:     pi.Status == stripe.PaymentIntentStatusSucceeded,
		Amount:        decimal.New(minor, -2),
		Currency:      string(pi.Currency),
		PaymentMethod: method,
		Metadata:      metadata,
		Raw:           raw,
	}
}
