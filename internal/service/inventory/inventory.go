package inventory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Domenick1991/skyreserve/internal/domain"
	"github.com/Domenick1991/skyreserve/internal/repository"
	"github.com/Domenick1991/skyreserve/internal/seatmap"
	"github.com/Domenick1991/skyreserve/internal/telemetry"
)

type InventoryUseCase interface {
	GetSeatMap(ctx context.Context, flightID int64) ([]domain.Seat, error)
}

// Manager owns the seat rows of every flight. The Tx-taking methods run inside
// a unit of work opened by the caller, so seat changes commit or roll back
// together with the reservation or flight change that caused them.
type Manager struct {
	store  repository.Store
	logger *zap.Logger
}

func NewManager(store repository.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger}
}

// NormalizeSeatNumbers upper-cases and trims seat numbers and rejects empty
// requests and repeated seats.
func NormalizeSeatNumbers(seatNumbers []string) ([]string, error) {
	if len(seatNumbers) == 0 {
		return nil, domain.ErrNoSeatsRequested
	}
	seen := make(map[string]struct{}, len(seatNumbers))
	out := make([]string, 0, len(seatNumbers))
	for _, raw := range seatNumbers {
		n := strings.ToUpper(strings.TrimSpace(raw))
		if n == "" {
			return nil, domain.ErrNoSeatsRequested
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateSeat, n)
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

// CreateSeatsForFlight seeds the flight with one available seat per number
// produced from its aircraft type's seat map.
func (m *Manager) CreateSeatsForFlight(ctx context.Context, tx repository.Tx, flightID, aircraftID int64) ([]string, error) {
	aircraftType, err := tx.GetAircraftType(ctx, aircraftID)
	if err != nil {
		return nil, err
	}
	seats, err := seatmap.Generate(aircraftType.SeatCapacity, aircraftType.SeatMap)
	if err != nil {
		return nil, fmt.Errorf("aircraft type %d: %w", aircraftType.ID, err)
	}
	if err := tx.InsertSeats(ctx, flightID, seats); err != nil {
		return nil, err
	}
	m.logger.Debug("seats created",
		zap.Int64("flight_id", flightID),
		zap.String("aircraft_model", aircraftType.Model),
		zap.Int("count", len(seats)),
	)
	return seats, nil
}

// ReserveSeats takes every requested seat or none. Seats are locked before
// they are checked, so two callers racing for the same seat serialize and the
// second one sees it taken.
func (m *Manager) ReserveSeats(ctx context.Context, tx repository.Tx, flightID int64, seatNumbers []string) error {
	seatNumbers, err := NormalizeSeatNumbers(seatNumbers)
	if err != nil {
		return err
	}

	locked, err := tx.LockSeats(ctx, flightID, seatNumbers)
	if err != nil {
		return err
	}
	found := make(map[string]bool, len(locked))
	for _, s := range locked {
		found[s.SeatNumber] = s.IsAvailable
	}
	for _, n := range seatNumbers {
		available, exists := found[n]
		if !exists || !available {
			return fmt.Errorf("%w: %s", domain.ErrSeatUnavailable, n)
		}
	}

	updated, err := tx.SetSeatsAvailable(ctx, flightID, seatNumbers, false)
	if err != nil {
		return err
	}
	if int(updated) != len(seatNumbers) {
		return fmt.Errorf("%w: %d of %d seats updated", domain.ErrConcurrentUpdate, updated, len(seatNumbers))
	}
	return nil
}

// ReleaseSeats marks the seats available again. Seats that are already free
// are left as they are.
func (m *Manager) ReleaseSeats(ctx context.Context, tx repository.Tx, flightID int64, seatNumbers []string) error {
	if len(seatNumbers) == 0 {
		return nil
	}
	_, err := tx.SetSeatsAvailable(ctx, flightID, seatNumbers, true)
	return err
}

func (m *Manager) GetSeatMap(ctx context.Context, flightID int64) (seats []domain.Seat, err error) {
	ctx, span := telemetry.StartSpan(ctx, "inventory.GetSeatMap")
	defer func() { telemetry.End(span, err) }()

	err = m.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetFlight(ctx, flightID, repository.LockNone); err != nil {
			return err
		}
		seats, err = tx.ListSeats(ctx, flightID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return seats, nil
}

var _ InventoryUseCase = (*Manager)(nil)
