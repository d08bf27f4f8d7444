package handlers

import (
	"errors"
	"fmt" // Import fmt
	"log"
	"net/http" // For status codes and request object

	"github.com/gofiber/fiber/v2"

	"ridehail/backend/models"
	"ridehail/backend/services" // Local services
)

// PaymentHandler handles HTTP requests related to payments.
type PaymentHandler struct {
	paymentService *services.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler instance.
func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// VerifyPayment handles POST /api/v1/payments/verify
// The client reports a gateway charge; the gateway is asked before anything is stored.
func (h *PaymentHandler) VerifyPayment(c *fiber.Ctx) error {
	who, ok := currentIdentity(c, "VerifyPayment")
	if !ok {
		return missingIdentity(c)
	}

	var req models.VerifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing payment verification body: %v", err)
		return badRequest(c, "Invalid request body", err)
	}
	log.Printf("Received payment verification for %s from user %s", req.TransactionRef, who.UserID)

	payment, err := h.paymentService.SettleGatewayPayment(c.UserContext(), who.UserID, req)
	if err != nil {
		return respondError(c, err, "verify payment")
	}
	return respondSuccess(c, fiber.StatusOK, "Payment verified successfully", payment)
}

// ListPayments handles GET /api/v1/payments
func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	who, ok := currentIdentity(c, "ListPayments")
	if !ok {
		return missingIdentity(c)
	}

	payments, err := h.paymentService.ListPayments(c.UserContext(), who)
	if err != nil {
		return respondError(c, err, "list payments")
	}
	return respondSuccess(c, fiber.StatusOK, "Payments retrieved successfully", payments)
}

// GetPayment handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	who, ok := currentIdentity(c, "GetPayment")
	if !ok {
		return missingIdentity(c)
	}
	paymentID, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid payment ID format", nil)
	}

	payment, err := h.paymentService.GetPayment(c.UserContext(), paymentID, who)
	if err != nil {
		return respondError(c, err, "retrieve payment")
	}
	return respondSuccess(c, fiber.StatusOK, "Payment retrieved successfully", payment)
}

// HandleStripeWebhook serves POST /api/v1/stripe-webhook as a plain net/http
// handler, mounted on fiber through the adaptor. A bad signature answers 400,
// failures a redelivery could fix answer 500, everything else is acknowledged.
func (h *PaymentHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		log.Printf("Webhook Error: Invalid method %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := h.paymentService.HandleStripeWebhook(r)
	if err != nil {
		log.Printf("Error handling Stripe webhook: %v", err)
		if errors.Is(err, services.ErrInvalidWebhookSignature) {
			http.Error(w, "Webhook signature verification failed", http.StatusBadRequest)
			return
		}
		if errors.Is(err, services.ErrWebhookTooLarge) {
			http.Error(w, "Webhook payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		if services.KindOf(err) == services.KindValidation {
			http.Error(w, "Invalid webhook payload", http.StatusBadRequest)
			return
		}
		http.Error(w, "Webhook processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Webhook received successfully")
}

// SetupPaymentRoutes registers the authenticated payment routes. The webhook is
// mounted separately in main.go through the adaptor.
func SetupPaymentRoutes(api fiber.Router, paymentService *services.PaymentService, authMiddleware, idempotency fiber.Handler) {
	handler := NewPaymentHandler(paymentService)

	paymentGroup := api.Group("/payments", authMiddleware)
	paymentGroup.Post("/verify", idempotency, handler.VerifyPayment)
	paymentGroup.Get("/", handler.ListPayments)
	paymentGroup.Get("/:id", handler.GetPayment)

	log.Println("Payment routes (/payments) setup complete.")
}
