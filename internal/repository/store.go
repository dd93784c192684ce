package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/skyreserve/internal/domain"
)

// LockMode selects the row lock taken by a read inside a transaction.
type LockMode int

const (
	LockNone LockMode = iota
	LockShare
	LockUpdate
)

// TxFunc is a unit of work. Returning an error rolls the whole unit back.
type TxFunc func(ctx context.Context, tx Tx) error

// Store runs units of work atomically. Every read that feeds a write must
// happen inside the same WithTx call as the write.
type Store interface {
	WithTx(ctx context.Context, fn TxFunc) error
}

// Tx is the set of operations available inside a unit of work.
type Tx interface {
	GetAircraftType(ctx context.Context, aircraftID int64) (*domain.AircraftType, error)

	InsertFlight(ctx context.Context, flight *domain.Flight) error
	GetFlight(ctx context.Context, id int64, lock LockMode) (*domain.Flight, error)
	UpdateFlightStatus(ctx context.Context, id int64, status domain.FlightStatus) (*domain.Flight, error)

	InsertSeats(ctx context.Context, flightID int64, seatNumbers []string) error
	// LockSeats returns the existing seats among seatNumbers, locked for update
	// and ordered by seat number.
	LockSeats(ctx context.Context, flightID int64, seatNumbers []string) ([]domain.Seat, error)
	SetSeatsAvailable(ctx context.Context, flightID int64, seatNumbers []string, available bool) (int64, error)
	ListSeats(ctx context.Context, flightID int64) ([]domain.Seat, error)

	// InsertReservation stores the reservation and its tickets.
	InsertReservation(ctx context.Context, reservation *domain.Reservation) error
	GetReservation(ctx context.Context, id int64, lock LockMode) (*domain.Reservation, error)
	ListReservationsByUser(ctx context.Context, userID int64) ([]domain.Reservation, error)
	LockActiveReservations(ctx context.Context, flightID int64) ([]domain.Reservation, error)
	ListStalePending(ctx context.Context, createdBefore time.Time) ([]int64, error)
	// UpdateReservationStatus moves the given reservations to status. Moving to
	// CANCELLED also retires their tickets from the active-seat constraint.
	UpdateReservationStatus(ctx context.Context, ids []int64, status domain.ReservationStatus) error

	InsertPayment(ctx context.Context, payment *domain.Payment) error
}
