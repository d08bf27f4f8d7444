package handlers

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"ridehail/backend/middleware"
	"ridehail/backend/models"
	"ridehail/backend/services"
)

// Machine-readable codes for conflicts the client reacts to.
const (
	codeRideUnavailable   = "ride_unavailable"
	codeDriverBusy        = "driver_busy"
	codeInsufficientFunds = "insufficient_funds"
)

// statusForKind maps a service error kind to its HTTP status.
func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation:
		return fiber.StatusBadRequest
	case services.KindUnauthorized:
		return fiber.StatusUnauthorized
	case services.KindForbidden:
		return fiber.StatusForbidden
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindConflict:
		return fiber.StatusConflict
	case services.KindPaymentVerification:
		return fiber.StatusPaymentRequired
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err in the standard error envelope. action names what the
// caller was doing and is only logged or used for internal failures.
func respondError(c *fiber.Ctx, err error, action string) error {
	kind := services.KindOf(err)
	status := statusForKind(kind)
	body := fiber.Map{"status": "error"}

	var insufficient *services.InsufficientFundsError
	var svcErr *services.ServiceError
	switch {
	case errors.As(err, &insufficient):
		body["message"] = "Insufficient wallet balance"
		body["code"] = codeInsufficientFunds
		body["data"] = fiber.Map{
			"balance":  insufficient.Balance.StringFixed(2),
			"required": insufficient.Required.StringFixed(2),
		}
	case kind == services.KindInternal:
		log.Printf("Internal error while trying to %s (%s %s): %v", action, c.Method(), c.Path(), err)
		body["message"] = "Failed to " + action + " due to an internal error"
	case errors.As(err, &svcErr):
		body["message"] = svcErr.Message
		if errors.Is(err, services.ErrRideNotAvailable) {
			body["code"] = codeRideUnavailable
		} else if errors.Is(err, services.ErrDriverBusy) {
			body["code"] = codeDriverBusy
		}
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			body["details"] = validationErrors.Error()
		}
	default:
		body["message"] = err.Error()
	}

	if status != fiber.StatusInternalServerError {
		log.Printf("Request %s %s rejected (%d): %v", c.Method(), c.Path(), status, err)
	}
	return c.Status(status).JSON(body)
}

// respondSuccess writes data in the standard success envelope.
func respondSuccess(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "success",
		"message": message,
		"data":    data,
	})
}

func badRequest(c *fiber.Ctx, message string, err error) error {
	body := fiber.Map{"status": "error", "message": message}
	if err != nil {
		body["details"] = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

// currentIdentity returns the caller verified by middleware.Protected.
func currentIdentity(c *fiber.Ctx, handlerName string) (models.Identity, bool) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		log.Printf("Error: User identity not found in context (%s)", handlerName)
	}
	return who, ok
}

func missingIdentity(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"status":  "error",
		"message": "Unauthorized: Missing user identification.",
	})
}

// pathUUID parses the named path parameter.
func pathUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	raw := c.Params(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		log.Printf("Invalid %s format in URL parameter: %s", name, raw)
	}
	return id, err
}
