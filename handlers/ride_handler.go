package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"ridehail/backend/middleware"
	"ridehail/backend/models"
	"ridehail/backend/services"
)

// RideHandler handles HTTP requests related to rides.
type RideHandler struct {
	rideService *services.RideService
}

// NewRideHandler creates a new RideHandler instance.
func NewRideHandler(rideService *services.RideService) *RideHandler {
	return &RideHandler{
		rideService: rideService,
	}
}

// CreateRide handles POST /api/v1/rides
// Riders only.
func (h *RideHandler) CreateRide(c *fiber.Ctx) error {
	// 1. Get authenticated user from context (set by auth middleware)
	who, ok := currentIdentity(c, "CreateRide")
	if !ok {
		return missingIdentity(c)
	}

	// 2. Parse request body
	var req models.CreateRideRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing create ride request body: %v", err)
		return badRequest(c, "Invalid request body", err)
	}
	log.Printf("Received create ride request from rider %s (%s)", who.UserID, req.RideType)

	// 3. Call service to create ride
	ride, err := h.rideService.CreateRide(c.UserContext(), who.UserID, req)
	if err != nil {
		return respondError(c, err, "create ride")
	}

	// 4. Return successful response
	return respondSuccess(c, fiber.StatusCreated, "Ride created successfully", ride)
}

// ListRides handles GET /api/v1/rides
// Returns the caller's own rides; admins see all.
func (h *RideHandler) ListRides(c *fiber.Ctx) error {
	who, ok := currentIdentity(c, "ListRides")
	if !ok {
		return missingIdentity(c)
	}

	rides, err := h.rideService.ListRides(c.UserContext(), who)
	if err != nil {
		return respondError(c, err, "list rides")
	}
	log.Printf("Returning %d rides for user %s", len(rides), who.UserID)
	return respondSuccess(c, fiber.StatusOK, "Rides retrieved successfully", rides)
}

// GetRide handles GET /api/v1/rides/:id
func (h *RideHandler) GetRide(c *fiber.Ctx) error {
	who, ok := currentIdentity(c, "GetRide")
	if !ok {
		return missingIdentity(c)
	}
	rideID, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid ride ID format", nil)
	}

	ride, err := h.rideService.GetRide(c.UserContext(), rideID, who)
	if err != nil {
		return respondError(c, err, "retrieve ride details")
	}
	return respondSuccess(c, fiber.StatusOK, "Ride details retrieved successfully", ride)
}

// AcceptRide handles POST /api/v1/rides/:id/accept
// Drivers only. A lost race answers 409 with code ride_unavailable.
func (h *RideHandler) AcceptRide(c *fiber.Ctx) error {
	who, ok := currentIdentity(c, "AcceptRide")
	if !ok {
		return missingIdentity(c)
	}
	rideID, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid ride ID format", nil)
	}

	log.Printf("Driver %s attempting to accept ride %s", who.UserID, rideID)
	ride, err := h.rideService.AcceptRide(c.UserContext(), rideID, who.UserID)
	if err != nil {
		return respondError(c, err, "accept ride")
	}
	return respondSuccess(c, fiber.StatusOK, "Ride accepted successfully", ride)
}

// AdvanceRideStatus handles POST /api/v1/rides/:id/status
// Drivers only; body {"status": "IN_PROGRESS"|"COMPLETED", "actual_fare"?}.
func (h *RideHandler) AdvanceRideStatus(c *fiber.Ctx) error {
	who, ok := currentIdentity(c, "AdvanceRideStatus")
	if !ok {
		return missingIdentity(c)
	}
	rideID, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid ride ID format", nil)
	}

	var req models.AdvanceRideStatusRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing status update body for ride %s: %v", rideID, err)
		return badRequest(c, "Invalid request body", err)
	}

	ride, err := h.rideService.AdvanceRideStatus(c.UserContext(), rideID, who.UserID, req)
	if err != nil {
		return respondError(c, err, "update ride status")
	}
	return respondSuccess(c, fiber.StatusOK, "Ride status updated successfully", ride)
}

// CancelRide handles POST /api/v1/rides/:id/cancel
// The requesting rider or an admin.
func (h *RideHandler) CancelRide(c *fiber.Ctx) error {
	who, ok := currentIdentity(c, "CancelRide")
	if !ok {
		return missingIdentity(c)
	}
	rideID, err := pathUUID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid ride ID format", nil)
	}

	log.Printf("User %s (%s) attempting to cancel ride %s", who.UserID, who.Role, rideID)
	ride, err := h.rideService.CancelRide(c.UserContext(), rideID, who)
	if err != nil {
		return respondError(c, err, "cancel ride")
	}
	return respondSuccess(c, fiber.StatusOK, "Ride cancelled successfully", ride)
}

// AvailableRides handles GET /api/v1/driver/rides/available
func (h *RideHandler) AvailableRides(c *fiber.Ctx) error {
	who, ok := currentIdentity(c, "AvailableRides")
	if !ok {
		return missingIdentity(c)
	}

	rides, err := h.rideService.AvailableRides(c.UserContext(), who.UserID)
	if err != nil {
		return respondError(c, err, "retrieve available rides")
	}
	log.Printf("Returning %d available rides to driver %s", len(rides), who.UserID)
	return respondSuccess(c, fiber.StatusOK, "Available rides retrieved successfully", rides)
}

// ActiveRide handles GET /api/v1/driver/rides/active
func (h *RideHandler) ActiveRide(c *fiber.Ctx) error {
	who, ok := currentIdentity(c, "ActiveRide")
	if !ok {
		return missingIdentity(c)
	}

	ride, err := h.rideService.ActiveRide(c.UserContext(), who.UserID)
	if err != nil {
		return respondError(c, err, "retrieve active ride")
	}
	return respondSuccess(c, fiber.StatusOK, "Active ride retrieved successfully", ride)
}

// DriverEarnings handles GET /api/v1/driver/earnings
func (h *RideHandler) DriverEarnings(c *fiber.Ctx) error {
	who, ok := currentIdentity(c, "DriverEarnings")
	if !ok {
		return missingIdentity(c)
	}

	earnings, err := h.rideService.DriverEarnings(c.UserContext(), who.UserID)
	if err != nil {
		return respondError(c, err, "compute earnings")
	}
	return respondSuccess(c, fiber.StatusOK, "Earnings retrieved successfully", earnings)
}

// SetupRideRoutes registers the ride and driver routes and returns the
// authenticated /rides group. idempotency guards the state-changing POSTs
// against client retries.
func SetupRideRoutes(api fiber.Router, rideService *services.RideService, authMiddleware, idempotency fiber.Handler) fiber.Router {
	handler := NewRideHandler(rideService)

	riderOrAdmin := middleware.RequireRole(models.RoleRider, models.RoleAdmin)
	driverOnly := middleware.RequireRole(models.RoleDriver)

	rideGroup := api.Group("/rides", authMiddleware) // Apply middleware to group for protected routes
	rideGroup.Post("/", middleware.RequireRole(models.RoleRider), idempotency, handler.CreateRide)
	rideGroup.Get("/", handler.ListRides)
	rideGroup.Get("/:id", handler.GetRide)
	rideGroup.Post("/:id/accept", driverOnly, idempotency, handler.AcceptRide)
	rideGroup.Post("/:id/status", driverOnly, idempotency, handler.AdvanceRideStatus)
	rideGroup.Post("/:id/cancel", riderOrAdmin, idempotency, handler.CancelRide)

	driverGroup := api.Group("/driver", authMiddleware, driverOnly)
	driverGroup.Get("/rides/available", handler.AvailableRides)
	driverGroup.Get("/rides/active", handler.ActiveRide)
	driverGroup.Get("/earnings", handler.DriverEarnings)

	log.Println("Ride routes (/rides, /driver) setup complete.")
	return rideGroup
}
