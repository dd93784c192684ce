package reservation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Domenick1991/skyreserve/internal/domain"
	"github.com/Domenick1991/skyreserve/internal/events"
	"github.com/Domenick1991/skyreserve/internal/repository"
	"github.com/Domenick1991/skyreserve/internal/service/inventory"
	"github.com/Domenick1991/skyreserve/internal/telemetry"
)

type ReservationUseCase interface {
	CreateReservation(ctx context.Context, input CreateReservationInput) (*domain.Reservation, error)
	GetReservation(ctx context.Context, id int64, actor domain.Actor) (*domain.Reservation, error)
	ListForUser(ctx context.Context, userID int64) ([]domain.Reservation, error)
	CancelReservation(ctx context.Context, id int64, actor domain.Actor) (*domain.Reservation, error)
	ExpireStalePending(ctx context.Context, olderThan time.Duration) ([]int64, error)
}

// SeatInventory is the part of the inventory manager the lifecycle drives.
type SeatInventory interface {
	ReserveSeats(ctx context.Context, tx repository.Tx, flightID int64, seatNumbers []string) error
	ReleaseSeats(ctx context.Context, tx repository.Tx, flightID int64, seatNumbers []string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, evts ...events.Event)
}

type CreateReservationInput struct {
	FlightID    int64    `json:"flight_id"`
	UserID      int64    `json:"-"`
	SeatNumbers []string `json:"seat_numbers"`
}

type ReservationServiceOption func(*ReservationService)

func WithClock(now func() time.Time) ReservationServiceOption {
	return func(s *ReservationService) {
		s.now = now
	}
}

type ReservationService struct {
	store     repository.Store
	inventory SeatInventory
	events    EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewReservationService(
	store repository.Store,
	inventory SeatInventory,
	publisher EventPublisher,
	logger *zap.Logger,
	opts ...ReservationServiceOption,
) *ReservationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReservationService{
		store:     store,
		inventory: inventory,
		events:    publisher,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateReservation holds the requested seats and records a PENDING
// reservation with one ticket per seat, all in one unit of work.
func (s *ReservationService) CreateReservation(ctx context.Context, input CreateReservationInput) (_ *domain.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reservation.Create")
	defer func() { telemetry.End(span, err) }()

	seats, err := inventory.NormalizeSeatNumbers(input.SeatNumbers)
	if err != nil {
		return nil, err
	}

	r := &domain.Reservation{
		UserID:   input.UserID,
		FlightID: input.FlightID,
		Status:   domain.ReservationStatusPending,
		Tickets:  make([]domain.Ticket, 0, len(seats)),
	}
	for _, n := range seats {
		r.Tickets = append(r.Tickets, domain.Ticket{SeatNumber: n})
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		flight, err := tx.GetFlight(ctx, input.FlightID, repository.LockShare)
		if err != nil {
			return err
		}
		if flight.Status != domain.FlightStatusActive {
			return fmt.Errorf("%w: flight %d is %s", domain.ErrFlightNotActive, flight.ID, flight.Status)
		}
		if err := s.inventory.ReserveSeats(ctx, tx, input.FlightID, seats); err != nil {
			return err
		}
		return tx.InsertReservation(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reservation created",
		zap.Int64("reservation_id", r.ID),
		zap.Int64("flight_id", r.FlightID),
		zap.Int64("user_id", r.UserID),
		zap.Strings("seats", seats),
	)
	s.publish(ctx, events.ForReservation(events.ReservationCreated, r))
	return r, nil
}

func (s *ReservationService) GetReservation(ctx context.Context, id int64, actor domain.Actor) (*domain.Reservation, error) {
	var r *domain.Reservation
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		r, err = tx.GetReservation(ctx, id, repository.LockNone)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.Owns(r.UserID) {
		return nil, domain.ErrForbidden
	}
	return r, nil
}

func (s *ReservationService) ListForUser(ctx context.Context, userID int64) ([]domain.Reservation, error) {
	var list []domain.Reservation
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		list, err = tx.ListReservationsByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Reservation{}
	}
	return list, nil
}

// CancelReservation cancels a reservation owned by actor (any reservation for
// admins) and frees its seats. Cancelling a cancelled reservation succeeds
// without changing anything.
func (s *ReservationService) CancelReservation(ctx context.Context, id int64, actor domain.Actor) (_ *domain.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reservation.Cancel")
	defer func() { telemetry.End(span, err) }()

	var (
		r       *domain.Reservation
		changed bool
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		r, err = tx.GetReservation(ctx, id, repository.LockUpdate)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !actor.Owns(r.UserID) {
			return domain.ErrForbidden
		}
		if r.Status == domain.ReservationStatusCancelled {
			return nil
		}
		if err := s.CancelTx(ctx, tx, []*domain.Reservation{r}); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("reservation cancelled",
			zap.Int64("reservation_id", r.ID),
			zap.Int64("flight_id", r.FlightID),
			zap.Int64("actor_id", actor.UserID),
		)
		s.publish(ctx, events.ForReservation(events.ReservationCancelled, r))
	}
	return r, nil
}

// ExpireStalePending cancels PENDING reservations created more than olderThan
// ago and returns their ids. Each one is cancelled in its own unit of work so
// a reservation paid in the meantime is left alone.
func (s *ReservationService) ExpireStalePending(ctx context.Context, olderThan time.Duration) ([]int64, error) {
	if olderThan <= 0 {
		return nil, nil
	}
	cutoff := s.now().Add(-olderThan)

	var candidates []int64
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		candidates, err = tx.ListStalePending(ctx, cutoff)
		return err
	})
	if err != nil {
		return nil, err
	}

	expired := make([]int64, 0, len(candidates))
	for _, id := range candidates {
		var r *domain.Reservation
		err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			current, err := tx.GetReservation(ctx, id, repository.LockUpdate)
			if err != nil {
				return err
			}
			if current.Status != domain.ReservationStatusPending {
				return nil
			}
			if err := s.CancelTx(ctx, tx, []*domain.Reservation{current}); err != nil {
				return err
			}
			r = current
			return nil
		})
		if err != nil {
			s.logger.Warn("failed to expire reservation", zap.Int64("reservation_id", id), zap.Error(err))
			continue
		}
		if r == nil {
			continue
		}
		expired = append(expired, id)
		e := events.ForReservation(events.ReservationCancelled, r)
		e.Reason = events.ReasonExpired
		s.publish(ctx, e)
	}

	if len(expired) > 0 {
		s.logger.Info("stale reservations expired", zap.Int64s("reservation_ids", expired))
	}
	return expired, nil
}

// ConfirmTx moves a locked PENDING reservation to CONFIRMED. Seats are already
// held, so inventory is not touched.
func (s *ReservationService) ConfirmTx(ctx context.Context, tx repository.Tx, r *domain.Reservation) error {
	if r.Status != domain.ReservationStatusPending {
		return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, r.Status, domain.ReservationStatusConfirmed)
	}
	if err := tx.UpdateReservationStatus(ctx, []int64{r.ID}, domain.ReservationStatusConfirmed); err != nil {
		return err
	}
	r.Status = domain.ReservationStatusConfirmed
	return nil
}

// CancelTx cancels locked active reservations and releases every seat their
// tickets hold. Reservations that are already cancelled are skipped.
func (s *ReservationService) CancelTx(ctx context.Context, tx repository.Tx, list []*domain.Reservation) error {
	ids := make([]int64, 0, len(list))
	seatsByFlight := make(map[int64][]string)
	for _, r := range list {
		if !r.Status.IsActive() {
			continue
		}
		ids = append(ids, r.ID)
		seatsByFlight[r.FlightID] = append(seatsByFlight[r.FlightID], r.SeatNumbers()...)
	}
	if len(ids) == 0 {
		return nil
	}

	if err := tx.UpdateReservationStatus(ctx, ids, domain.ReservationStatusCancelled); err != nil {
		return err
	}
	for flightID, seats := range seatsByFlight {
		if err := s.inventory.ReleaseSeats(ctx, tx, flightID, seats); err != nil {
			return err
		}
	}
	for _, r := range list {
		if r.Status.IsActive() {
			r.Status = domain.ReservationStatusCancelled
		}
	}
	return nil
}

func (s *ReservationService) publish(ctx context.Context, evts ...events.Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, evts...)
}

var _ ReservationUseCase = (*ReservationService)(nil)
