package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"ridehail/backend/middleware"
	"ridehail/backend/models"
	"ridehail/backend/services"
)

// WalletHandler serves wallet balances, deposits and wallet ride payments.
type WalletHandler struct {
	walletService *services.WalletService
}

func NewWalletHandler(walletService *services.WalletService) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

// GetWallet handles GET /api/v1/wallet
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	who, ok := currentIdentity(c, "GetWallet")
	if !ok {
		return missingIdentity(c)
	}

	summary, err := h.walletService.GetWalletBalance(c.UserContext(), who.UserID)
	if err != nil {
		return respondError(c, err, "load wallet")
	}
	return respondSuccess(c, fiber.StatusOK, "Wallet retrieved successfully", summary)
}

// Deposit handles POST /api/v1/wallet/deposit
func (h *WalletHandler) Deposit(c *fiber.Ctx) error {
	who, ok := currentIdentity(c, "Deposit")
	if !ok {
		return missingIdentity(c)
	}

	var req models.DepositRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing deposit body: %v", err)
		return badRequest(c, "Invalid request body", err)
	}
	log.Printf("Received wallet deposit %s from user %s", req.TransactionRef, who.UserID)

	wallet, err := h.walletService.DepositToWallet(c.UserContext(), who.UserID, req)
	if err != nil {
		return respondError(c, err, "credit wallet")
	}
	return respondSuccess(c, fiber.StatusOK, "Wallet credited successfully", wallet)
}

// PayRide handles POST /api/v1/rides/:id/pay/wallet
func (h *WalletHandler) PayRide(c *fiber.Ctx) error {
	who, ok := currentIdentity(c, "PayRide")
	if !ok {
		return missingIdentity(c)
	}
	rideID, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid ride ID format", nil)
	}

	receipt, err := h.walletService.PayRideFromWallet(c.UserContext(), rideID, who.UserID)
	if err != nil {
		return respondError(c, err, "pay ride")
	}
	return respondSuccess(c, fiber.StatusOK, "Ride paid from wallet", receipt)
}

// SetupWalletRoutes registers the wallet routes. rides is the authenticated
// group returned by SetupRideRoutes.
func SetupWalletRoutes(api, rides fiber.Router, walletService *services.WalletService, authMiddleware, idempotency fiber.Handler) {
	handler := NewWalletHandler(walletService)

	walletGroup := api.Group("/wallet", authMiddleware)
	walletGroup.Get("/", handler.GetWallet)
	walletGroup.Post("/deposit", idempotency, handler.Deposit)

	rides.Post("/:id/pay/wallet", middleware.RequireRole(models.RoleRider), idempotency, handler.PayRide)

	log.Println("Wallet routes (/wallet, /rides/:id/pay/wallet) setup complete.")
}
