package flights

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Domenick1991/skyreserve/internal/domain"
	"github.com/Domenick1991/skyreserve/internal/events"
	"github.com/Domenick1991/skyreserve/internal/repository"
	"github.com/Domenick1991/skyreserve/internal/telemetry"
)

type FlightUseCase interface {
	CreateFlight(ctx context.Context, input CreateFlightInput) (*domain.Flight, error)
	GetFlight(ctx context.Context, id int64) (*domain.Flight, error)
	CancelFlight(ctx context.Context, id int64) (*domain.Flight, error)
}

// FlightCache holds flight details between reads. A miss is (nil, nil).
type FlightCache interface {
	GetFlight(ctx context.Context, id int64) (*domain.Flight, error)
	SetFlight(ctx context.Context, flight *domain.Flight) error
	DeleteFlight(ctx context.Context, id int64) error
}

type SeatSeeder interface {
	CreateSeatsForFlight(ctx context.Context, tx repository.Tx, flightID, aircraftID int64) ([]string, error)
}

type ReservationCanceller interface {
	CancelTx(ctx context.Context, tx repository.Tx, list []*domain.Reservation) error
}

type EventPublisher interface {
	Publish(ctx context.Context, evts ...events.Event)
}

type CreateFlightInput struct {
	FlightNumber         string            `json:"flight_number"`
	AircraftID           int64             `json:"aircraft_id"`
	OriginAirportID      int64             `json:"origin_airport_id"`
	DestinationAirportID int64             `json:"destination_airport_id"`
	DepartureTime        time.Time         `json:"departure_time"`
	ArrivalTime          time.Time         `json:"arrival_time"`
	Stopovers            []domain.Stopover `json:"stopovers,omitempty"`
}

type FlightService struct {
	store        repository.Store
	seats        SeatSeeder
	reservations ReservationCanceller
	cache        FlightCache
	events       EventPublisher
	logger       *zap.Logger
}

func NewFlightService(
	store repository.Store,
	seats SeatSeeder,
	reservations ReservationCanceller,
	cache FlightCache,
	publisher EventPublisher,
	logger *zap.Logger,
) *FlightService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlightService{
		store:        store,
		seats:        seats,
		reservations: reservations,
		cache:        cache,
		events:       publisher,
		logger:       logger,
	}
}

// CreateFlight schedules a flight and seeds its seat inventory in the same
// unit of work, so a flight never exists without its seats.
func (s *FlightService) CreateFlight(ctx context.Context, input CreateFlightInput) (_ *domain.Flight, err error) {
	ctx, span := telemetry.StartSpan(ctx, "flights.Create")
	defer func() { telemetry.End(span, err) }()

	if err := validateFlight(&input); err != nil {
		return nil, err
	}

	flight := &domain.Flight{
		FlightNumber:         strings.TrimSpace(input.FlightNumber),
		AircraftID:           input.AircraftID,
		OriginAirportID:      input.OriginAirportID,
		DestinationAirportID: input.DestinationAirportID,
		DepartureTime:        input.DepartureTime,
		ArrivalTime:          input.ArrivalTime,
		Status:               domain.FlightStatusActive,
		Stopovers:            input.Stopovers,
	}

	var seatCount int
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetAircraftType(ctx, input.AircraftID); err != nil {
			return err
		}
		if err := tx.InsertFlight(ctx, flight); err != nil {
			return err
		}
		seats, err := s.seats.CreateSeatsForFlight(ctx, tx, flight.ID, flight.AircraftID)
		if err != nil {
			return err
		}
		seatCount = len(seats)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("flight created",
		zap.Int64("flight_id", flight.ID),
		zap.String("flight_number", flight.FlightNumber),
		zap.Int("seats", seatCount),
	)
	return flight, nil
}

func (s *FlightService) GetFlight(ctx context.Context, id int64) (*domain.Flight, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetFlight(ctx, id); err == nil && cached != nil {
			return cached, nil
		} else if err != nil {
			s.logger.Warn("flight cache read failed", zap.Int64("flight_id", id), zap.Error(err))
		}
	}

	var flight *domain.Flight
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		flight, err = tx.GetFlight(ctx, id, repository.LockNone)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetFlight(ctx, flight); err != nil {
			s.logger.Warn("flight cache write failed", zap.Int64("flight_id", id), zap.Error(err))
		}
	}
	return flight, nil
}

// CancelFlight cancels the flight, every active reservation on it, and frees
// their seats as one unit of work. The flight row is locked first and the
// reservations after it, so bookings and payments racing with the cascade
// either finish before it or observe the cancellation.
// Cancelling a cancelled flight returns it unchanged.
func (s *FlightService) CancelFlight(ctx context.Context, id int64) (_ *domain.Flight, err error) {
	ctx, span := telemetry.StartSpan(ctx, "flights.Cancel")
	defer func() { telemetry.End(span, err) }()

	var (
		flight    *domain.Flight
		cancelled []*domain.Reservation
		released  []string
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		current, err := tx.GetFlight(ctx, id, repository.LockUpdate)
		if err != nil {
			return err
		}
		if current.Status == domain.FlightStatusCancelled {
			flight = current
			return nil
		}

		active, err := tx.LockActiveReservations(ctx, id)
		if err != nil {
			return err
		}
		list := make([]*domain.Reservation, len(active))
		for i := range active {
			list[i] = &active[i]
			released = append(released, active[i].SeatNumbers()...)
		}
		if err := s.reservations.CancelTx(ctx, tx, list); err != nil {
			return err
		}

		flight, err = tx.UpdateFlightStatus(ctx, id, domain.FlightStatusCancelled)
		if err != nil {
			return err
		}
		cancelled = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	if cancelled == nil {
		return flight, nil
	}

	sort.Strings(released)
	s.logger.Info("flight cancelled",
		zap.Int64("flight_id", flight.ID),
		zap.Int("reservations_cancelled", len(cancelled)),
		zap.Int("seats_released", len(released)),
	)

	if s.cache != nil {
		if err := s.cache.DeleteFlight(ctx, id); err != nil {
			s.logger.Warn("flight cache invalidation failed", zap.Int64("flight_id", id), zap.Error(err))
		}
	}
	if s.events != nil {
		evts := make([]events.Event, 0, len(cancelled)+1)
		for _, r := range cancelled {
			e := events.ForReservation(events.ReservationCancelled, r)
			e.Reason = events.ReasonFlightCancelled
			evts = append(evts, e)
		}
		evts = append(evts, events.ForFlight(flight, released))
		s.events.Publish(ctx, evts...)
	}
	return flight, nil
}

// validateFlight checks the schedule and orders stopovers by sequence number.
// Each stopover must sit inside the flight window and after the previous one.
func validateFlight(input *CreateFlightInput) error {
	if strings.TrimSpace(input.FlightNumber) == "" || input.AircraftID <= 0 ||
		input.OriginAirportID <= 0 || input.DestinationAirportID <= 0 ||
		input.OriginAirportID == input.DestinationAirportID {
		return domain.ErrInvalidFlight
	}
	if !input.DepartureTime.Before(input.ArrivalTime) {
		return domain.ErrInvalidSchedule
	}

	stops := append([]domain.Stopover(nil), input.Stopovers...)
	sort.Slice(stops, func(i, j int) bool { return stops[i].Order < stops[j].Order })

	prevDeparture := input.DepartureTime
	for i, st := range stops {
		switch {
		case st.Order < 1:
			return fmt.Errorf("%w: order must be positive, got %d", domain.ErrInvalidStopover, st.Order)
		case i > 0 && stops[i-1].Order == st.Order:
			return fmt.Errorf("%w: order %d used twice", domain.ErrInvalidStopover, st.Order)
		case st.AirportID <= 0:
			return fmt.Errorf("%w: stop %d has no airport", domain.ErrInvalidStopover, st.Order)
		case st.ArrivalTime.After(st.DepartureTime):
			return fmt.Errorf("%w: stop %d departs before it arrives", domain.ErrInvalidStopover, st.Order)
		case !st.ArrivalTime.After(prevDeparture):
			return fmt.Errorf("%w: stop %d arrives before the previous leg departs", domain.ErrInvalidStopover, st.Order)
		case !st.DepartureTime.Before(input.ArrivalTime):
			return fmt.Errorf("%w: stop %d departs after the flight arrives", domain.ErrInvalidStopover, st.Order)
		}
		prevDeparture = st.DepartureTime
	}
	input.Stopovers = stops
	return nil
}

var _ FlightUseCase = (*FlightService)(nil)
