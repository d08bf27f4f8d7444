package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"        // For pgx errors
	"github.com/jackc/pgx/v5/pgconn" // For unique-violation detection
	"github.com/shopspring/decimal"

	"ridehail/backend/database"
	"ridehail/backend/models"
)

// pgUniqueViolation is the SQLSTATE Postgres reports for a unique index conflict.
const pgUniqueViolation = "23505"

const rideColumns = `id, rider_id, driver_id, pickup_name, pickup_lat, pickup_lng, destination_name, destination_lat, destination_lng,
		distance_km, ride_type, estimated_fare, actual_fare, status, created_at, accepted_at, started_at, completed_at, cancelled_at, updated_at`

const (
	insertRideSQL = `
		INSERT INTO rides (id, rider_id, pickup_name, pickup_lat, pickup_lng, destination_name, destination_lat, destination_lng, distance_km, ride_type, estimated_fare, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'PENDING')
		RETURNING created_at, updated_at`

	selectRideByIDSQL = `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	// The busy check lives in the same statement as the status check so a driver
	// cannot race two accepts into two active rides. The partial unique index
	// rides_one_active_per_driver catches the window NOT EXISTS cannot see.
	acceptRideSQL = `
		UPDATE rides
		SET driver_id = $2, status = 'ACCEPTED', accepted_at = COALESCE(accepted_at, NOW()), updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		  AND NOT EXISTS (SELECT 1 FROM rides busy WHERE busy.driver_id = $2 AND busy.status IN ('ACCEPTED', 'IN_PROGRESS'))
		RETURNING ` + rideColumns

	driverBusySQL = `SELECT EXISTS(SELECT 1 FROM rides WHERE driver_id = $1 AND status IN ('ACCEPTED', 'IN_PROGRESS'))`

	startRideSQL = `
		UPDATE rides
		SET status = 'IN_PROGRESS', started_at = COALESCE(started_at, NOW()), updated_at = NOW()
		WHERE id = $1 AND driver_id = $2 AND status = 'ACCEPTED'
		RETURNING ` + rideColumns

	completeRideSQL = `
		UPDATE rides
		SET status = 'COMPLETED', completed_at = COALESCE(completed_at, NOW()),
		    actual_fare = COALESCE($3::numeric, actual_fare, estimated_fare), updated_at = NOW()
		WHERE id = $1 AND driver_id = $2 AND status = 'IN_PROGRESS'
		RETURNING ` + rideColumns

	cancelRideSQL = `
		UPDATE rides
		SET status = 'CANCELLED', cancelled_at = COALESCE(cancelled_at, NOW()), updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'ACCEPTED')
		RETURNING ` + rideColumns

	availableRidesSQL = `SELECT ` + rideColumns + ` FROM rides WHERE status = 'PENDING' ORDER BY created_at DESC`

	activeRideSQL = `SELECT ` + rideColumns + ` FROM rides WHERE driver_id = $1 AND status IN ('ACCEPTED', 'IN_PROGRESS')`

	riderRidesSQL  = `SELECT ` + rideColumns + ` FROM rides WHERE rider_id = $1 ORDER BY created_at DESC`
	driverRidesSQL = `SELECT ` + rideColumns + ` FROM rides WHERE driver_id = $1 ORDER BY created_at DESC`
	allRidesSQL    = `SELECT ` + rideColumns + ` FROM rides ORDER BY created_at DESC`

	driverEarningsSQL = `
		SELECT COUNT(*), COALESCE(SUM(COALESCE(actual_fare, estimated_fare)), 0)
		FROM rides
		WHERE driver_id = $1 AND status = 'COMPLETED'`
)

// RideService handles the ride lifecycle and the driver matching surface.
type RideService struct {
	validator *validator.Validate
	db        database.DBPool // Use the DBPool interface
	events    *EventDispatcher
}

// NewRideService creates a new RideService instance.
func NewRideService(db database.DBPool, events *EventDispatcher) *RideService {
	return &RideService{
		validator: validator.New(),
		db:        db,
		events:    events,
	}
}

// scanRide reads one row selected with rideColumns.
func scanRide(row pgx.Row) (*models.Ride, error) {
	var r models.Ride
	var pickupLat, pickupLng, destLat, destLng float64
	err := row.Scan(
		&r.ID, &r.RiderID, &r.DriverID,
		&r.Pickup.Name, &pickupLat, &pickupLng,
		&r.Destination.Name, &destLat, &destLng,
		&r.DistanceKm, &r.RideType, &r.EstimatedFare, &r.ActualFare, &r.Status,
		&r.CreatedAt, &r.AcceptedAt, &r.StartedAt, &r.CompletedAt, &r.CancelledAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Pickup.Lat, r.Pickup.Lng = &pickupLat, &pickupLng
	r.Destination.Lat, r.Destination.Lng = &destLat, &destLng
	return &r, nil
}

func (s *RideService) queryRides(ctx context.Context, query string, args ...any) ([]models.Ride, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database error fetching rides: %w", err)
	}
	defer rows.Close()

	rides := []models.Ride{}
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("error processing ride data: %w", err)
		}
		rides = append(rides, *ride)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ride rows: %w", err)
	}
	return rides, nil
}

func (s *RideService) findRide(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	ride, err := scanRide(s.db.QueryRow(ctx, selectRideByIDSQL, rideID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRideNotFound
		}
		log.Printf("Error fetching ride %s: %v", rideID, err)
		return nil, InternalError("failed to fetch ride", err)
	}
	return ride, nil
}

// CreateRide stores a new PENDING ride with its distance and estimated fare.
func (s *RideService) CreateRide(ctx context.Context, riderID uuid.UUID, req models.CreateRideRequest) (*models.Ride, error) {
	// 1. Validate request data
	if err := s.validator.Struct(req); err != nil {
		log.Printf("Validation error creating ride for rider %s: %v", riderID, err)
		return nil, ValidationError("invalid ride data", err)
	}

	// 2. Price the trip
	pickupLat, pickupLng := req.Pickup.Coordinates()
	destLat, destLng := req.Destination.Coordinates()
	distance := DistanceKm(pickupLat, pickupLng, destLat, destLng)
	fare, err := EstimateFare(req.RideType, distance)
	if err != nil {
		return nil, err
	}

	// 3. Insert
	ride := &models.Ride{
		ID:            uuid.New(),
		RiderID:       riderID,
		Pickup:        req.Pickup,
		Destination:   req.Destination,
		DistanceKm:    distance,
		RideType:      req.RideType,
		EstimatedFare: fare,
		Status:        models.RideStatusPending,
	}
	err = s.db.QueryRow(ctx, insertRideSQL,
		ride.ID, ride.RiderID,
		ride.Pickup.Name, pickupLat, pickupLng,
		ride.Destination.Name, destLat, destLng,
		ride.DistanceKm, string(ride.RideType), ride.EstimatedFare,
	).Scan(&ride.CreatedAt, &ride.UpdatedAt)
	if err != nil {
		log.Printf("Error inserting new ride for rider %s: %v", riderID, err)
		return nil, InternalError("failed to create ride", err)
	}

	log.Printf("Ride %s requested by rider %s (%s, %.2f km, fare %s)", ride.ID, riderID, ride.RideType, distance, fare.StringFixed(2))
	s.events.RideChanged(EventRideCreated, ride)
	return ride, nil
}

// GetRide returns a ride the caller may see: its rider, its driver, an admin,
// or any driver while the ride is still in the open pool.
func (s *RideService) GetRide(ctx context.Context, rideID uuid.UUID, who models.Identity) (*models.Ride, error) {
	ride, err := s.findRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	switch {
	case who.Role == models.RoleAdmin:
	case ride.RiderID == who.UserID:
	case ride.DriverID != nil && *ride.DriverID == who.UserID:
	case who.Role == models.RoleDriver && ride.Status == models.RideStatusPending:
	default:
		log.Printf("User %s (%s) denied access to ride %s", who.UserID, who.Role, rideID)
		return nil, ForbiddenError("you do not have access to this ride")
	}
	return ride, nil
}

// ListRides returns the caller's ride history, newest first. Riders see the rides
// they requested, drivers the rides assigned to them, admins everything.
func (s *RideService) ListRides(ctx context.Context, who models.Identity) ([]models.Ride, error) {
	var (
		rides []models.Ride
		err   error
	)
	switch who.Role {
	case models.RoleAdmin:
		rides, err = s.queryRides(ctx, allRidesSQL)
	case models.RoleDriver:
		rides, err = s.queryRides(ctx, driverRidesSQL, who.UserID)
	default:
		rides, err = s.queryRides(ctx, riderRidesSQL, who.UserID)
	}
	if err != nil {
		log.Printf("Error listing rides for user %s: %v", who.UserID, err)
		return nil, InternalError("failed to list rides", err)
	}
	return rides, nil
}

// AcceptRide assigns a PENDING ride to driverID. Of several drivers racing for
// the same ride exactly one wins; the rest get ErrRideNotAvailable.
func (s *RideService) AcceptRide(ctx context.Context, rideID, driverID uuid.UUID) (*models.Ride, error) {
	ride, err := scanRide(s.db.QueryRow(ctx, acceptRideSQL, rideID, driverID))
	if err == nil {
		log.Printf("Ride %s accepted by driver %s", rideID, driverID)
		s.events.RideChanged(EventRideAccepted, ride)
		return ride, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		log.Printf("Driver %s already holds an active ride, accept of %s rejected by index", driverID, rideID)
		return nil, ErrDriverBusy
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		log.Printf("Error accepting ride %s for driver %s: %v", rideID, driverID, err)
		return nil, InternalError("failed to accept ride", err)
	}

	// Nothing was updated; work out why.
	current, err := s.findRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.RideStatusPending {
		if current.Status == models.RideStatusAccepted && current.DriverID != nil && *current.DriverID == driverID {
			// Retried accept from the winner.
			return current, nil
		}
		log.Printf("Driver %s lost ride %s (status %s)", driverID, rideID, current.Status)
		return nil, ErrRideNotAvailable
	}

	var busy bool
	if err := s.db.QueryRow(ctx, driverBusySQL, driverID).Scan(&busy); err != nil {
		log.Printf("Error checking active ride for driver %s: %v", driverID, err)
		return nil, InternalError("failed to accept ride", err)
	}
	if busy {
		log.Printf("Driver %s tried to accept ride %s while holding another", driverID, rideID)
		return nil, ErrDriverBusy
	}
	// Still PENDING and the driver is free: the ride was released between our
	// statements. Treat it like a lost race so the client refreshes.
	return nil, ErrRideNotAvailable
}

// AdvanceRideStatus moves a ride one step along ACCEPTED -> IN_PROGRESS -> COMPLETED.
// Repeating the current status is a no-op.
func (s *RideService) AdvanceRideStatus(ctx context.Context, rideID, driverID uuid.UUID, req models.AdvanceRideStatusRequest) (*models.Ride, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, ValidationError("invalid status update", err)
	}
	predecessor, ok := req.Status.Predecessor()
	if !ok {
		return nil, ErrInvalidTransition
	}
	if req.ActualFare != nil && req.ActualFare.IsNegative() {
		return nil, ValidationError("actual fare must not be negative", nil)
	}

	var row pgx.Row
	event := EventRideStarted
	if req.Status == models.RideStatusCompleted {
		event = EventRideCompleted
		row = s.db.QueryRow(ctx, completeRideSQL, rideID, driverID, req.ActualFare)
	} else {
		row = s.db.QueryRow(ctx, startRideSQL, rideID, driverID)
	}

	ride, err := scanRide(row)
	if err == nil {
		log.Printf("Ride %s advanced %s -> %s by driver %s", rideID, predecessor, req.Status, driverID)
		s.events.RideChanged(event, ride)
		return ride, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		log.Printf("Error advancing ride %s to %s: %v", rideID, req.Status, err)
		return nil, InternalError("failed to update ride status", err)
	}

	current, err := s.findRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if current.DriverID == nil || *current.DriverID != driverID {
		return nil, ErrNotAssignedDriver
	}
	if current.Status == req.Status {
		return current, nil
	}
	log.Printf("Invalid transition for ride %s: %s -> %s", rideID, current.Status, req.Status)
	return nil, ErrInvalidTransition
}

// CancelRide cancels a PENDING or ACCEPTED ride. Only its rider may do so, unless
// the caller is an admin. A driver assigned before cancellation stays recorded.
func (s *RideService) CancelRide(ctx context.Context, rideID uuid.UUID, who models.Identity) (*models.Ride, error) {
	current, err := s.findRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if who.Role != models.RoleAdmin && current.RiderID != who.UserID {
		return nil, ErrNotRideOwner
	}
	if current.Status != models.RideStatusPending && current.Status != models.RideStatusAccepted {
		return nil, ErrRideNotCancellable
	}

	ride, err := scanRide(s.db.QueryRow(ctx, cancelRideSQL, rideID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The driver started the trip after our read.
			return nil, ErrRideNotCancellable
		}
		log.Printf("Error cancelling ride %s: %v", rideID, err)
		return nil, InternalError("failed to cancel ride", err)
	}

	log.Printf("Ride %s cancelled by %s (%s)", rideID, who.UserID, who.Role)
	s.events.RideChanged(EventRideCancelled, ride)
	return ride, nil
}

// AvailableRides lists the open pool every driver sees, newest first.
func (s *RideService) AvailableRides(ctx context.Context, driverID uuid.UUID) ([]models.Ride, error) {
	rides, err := s.queryRides(ctx, availableRidesSQL)
	if err != nil {
		log.Printf("Error listing available rides for driver %s: %v", driverID, err)
		return nil, InternalError("failed to list available rides", err)
	}
	return rides, nil
}

// ActiveRide returns the ride the driver currently holds, or ErrNoActiveRide.
func (s *RideService) ActiveRide(ctx context.Context, driverID uuid.UUID) (*models.Ride, error) {
	ride, err := scanRide(s.db.QueryRow(ctx, activeRideSQL, driverID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveRide
		}
		log.Printf("Error fetching active ride for driver %s: %v", driverID, err)
		return nil, InternalError("failed to fetch active ride", err)
	}
	return ride, nil
}

// DriverEarnings sums the fares of the driver's completed rides.
func (s *RideService) DriverEarnings(ctx context.Context, driverID uuid.UUID) (*models.DriverEarnings, error) {
	earnings := &models.DriverEarnings{DriverID: driverID, TotalEarned: decimal.Zero}
	if err := s.db.QueryRow(ctx, driverEarningsSQL, driverID).Scan(&earnings.CompletedRides, &earnings.TotalEarned); err != nil {
		log.Printf("Error computing earnings for driver %s: %v", driverID, err)
		return nil, InternalError("failed to compute earnings", err)
	}
	return earnings, nil
}
