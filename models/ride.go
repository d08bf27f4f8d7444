package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RideStatus represents the lifecycle position of a ride.
type RideStatus string

const (
	RideStatusPending    RideStatus = "PENDING"     // Requested by a rider, visible to every driver
	RideStatusAccepted   RideStatus = "ACCEPTED"    // Claimed by exactly one driver
	RideStatusInProgress RideStatus = "IN_PROGRESS" // Rider picked up
	RideStatusCompleted  RideStatus = "COMPLETED"   // Terminal
	RideStatusCancelled  RideStatus = "CANCELLED"   // Terminal
)

// Predecessor returns the only status a driver may advance from to reach s.
// ok is false for statuses a driver cannot advance into.
func (s RideStatus) Predecessor() (RideStatus, bool) {
	switch s {
	case RideStatusInProgress:
		return RideStatusAccepted, true
	case RideStatusCompleted:
		return RideStatusInProgress, true
	}
	return "", false
}

// RideType selects a row of the fare table.
type RideType string

const (
	RideTypeBike        RideType = "BIKE"
	RideTypeFourSeater  RideType = "FOUR_SEATER"
	RideTypeSevenSeater RideType = "SEVEN_SEATER"
)

// Location is a named coordinate.
type Location struct {
	Name string   `json:"name" validate:"required"`
	Lat  *float64 `json:"lat" validate:"required,latitude"`
	Lng  *float64 `json:"lng" validate:"required,longitude"`
}

// Coordinates returns lat/lng, zero when unset. Call only after validation.
func (l Location) Coordinates() (float64, float64) {
	var lat, lng float64
	if l.Lat != nil {
		lat = *l.Lat
	}
	if l.Lng != nil {
		lng = *l.Lng
	}
	return lat, lng
}

// Ride represents the structure for the 'rides' table.
type Ride struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	RiderID       uuid.UUID        `json:"rider_id" db:"rider_id"`
	DriverID      *uuid.UUID       `json:"driver_id,omitempty" db:"driver_id"` // Set on accept, kept after cancel
	Pickup        Location         `json:"pickup" db:"-"`
	Destination   Location         `json:"destination" db:"-"`
	DistanceKm    float64          `json:"distance_km" db:"distance_km"` // Computed at creation, immutable
	RideType      RideType         `json:"ride_type" db:"ride_type"`
	EstimatedFare decimal.Decimal  `json:"estimated_fare" db:"estimated_fare"`
	ActualFare    *decimal.Decimal `json:"actual_fare,omitempty" db:"actual_fare"` // Set at completion
	Status        RideStatus       `json:"status" db:"status"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	AcceptedAt    *time.Time       `json:"accepted_at,omitempty" db:"accepted_at"`
	StartedAt     *time.Time       `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt   *time.Time       `json:"cancelled_at,omitempty" db:"cancelled_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// Fare is the amount owed for the ride: the actual fare once set, the estimate before.
func (r *Ride) Fare() decimal.Decimal {
	if r.ActualFare != nil {
		return *r.ActualFare
	}
	return r.EstimatedFare
}

// --- DTOs (Data Transfer Objects) for API Requests/Responses ---

// CreateRideRequest defines the structure for requesting a new ride.
type CreateRideRequest struct {
	Pickup      Location `json:"pickup" validate:"required"`
	Destination Location `json:"destination" validate:"required"`
	RideType    RideType `json:"ride_type" validate:"required,oneof=BIKE FOUR_SEATER SEVEN_SEATER"`
}

// AdvanceRideStatusRequest is sent by the assigned driver to move a ride forward.
type AdvanceRideStatusRequest struct {
	Status     RideStatus       `json:"status" validate:"required,oneof=IN_PROGRESS COMPLETED"`
	ActualFare *decimal.Decimal `json:"actual_fare,omitempty"` // Only honoured on COMPLETED
}

// DriverEarnings summarises a driver's completed rides.
type DriverEarnings struct {
	DriverID       uuid.UUID       `json:"driver_id"`
	CompletedRides int             `json:"completed_rides"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
}
