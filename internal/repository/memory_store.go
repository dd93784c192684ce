package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/skyreserve/internal/domain"
)

// MemoryStore keeps everything in process. Units of work run one at a time
// against a private copy of the state, which replaces the shared state only
// when the unit succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

type seatKey struct {
	flightID   int64
	seatNumber string
}

type memState struct {
	aircraft      map[int64]domain.AircraftType
	flights       map[int64]domain.Flight
	seats         map[int64][]domain.Seat
	reservations  map[int64]domain.Reservation
	activeTickets map[seatKey]int64
	nextID        int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			aircraft:      make(map[int64]domain.AircraftType),
			flights:       make(map[int64]domain.Flight),
			seats:         make(map[int64][]domain.Seat),
			reservations:  make(map[int64]domain.Reservation),
			activeTickets: make(map[seatKey]int64),
		},
		now: time.Now,
	}
}

// AddAircraft registers an aircraft and its type for catalog lookups.
func (s *MemoryStore) AddAircraft(aircraftID int64, aircraftType domain.AircraftType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.aircraft[aircraftID] = aircraftType
}

// SetClock overrides the clock used for created_at/updated_at stamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) WithTx(ctx context.Context, fn TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	working := s.state.clone()
	if err := fn(ctx, &memTx{state: working, now: s.now}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (st *memState) clone() *memState {
	c := &memState{
		aircraft:      make(map[int64]domain.AircraftType, len(st.aircraft)),
		flights:       make(map[int64]domain.Flight, len(st.flights)),
		seats:         make(map[int64][]domain.Seat, len(st.seats)),
		reservations:  make(map[int64]domain.Reservation, len(st.reservations)),
		activeTickets: make(map[seatKey]int64, len(st.activeTickets)),
		nextID:        st.nextID,
	}
	for k, v := range st.aircraft {
		c.aircraft[k] = v
	}
	for k, v := range st.flights {
		v.Stopovers = slices.Clone(v.Stopovers)
		c.flights[k] = v
	}
	for k, v := range st.seats {
		c.seats[k] = slices.Clone(v)
	}
	for k, v := range st.reservations {
		c.reservations[k] = copyReservation(v)
	}
	for k, v := range st.activeTickets {
		c.activeTickets[k] = v
	}
	return c
}

func copyReservation(r domain.Reservation) domain.Reservation {
	r.Tickets = slices.Clone(r.Tickets)
	if r.Payment != nil {
		p := *r.Payment
		r.Payment = &p
	}
	return r
}

type memTx struct {
	state *memState
	now   func() time.Time
}

func (t *memTx) id() int64 {
	t.state.nextID++
	return t.state.nextID
}

func (t *memTx) GetAircraftType(_ context.Context, aircraftID int64) (*domain.AircraftType, error) {
	at, ok := t.state.aircraft[aircraftID]
	if !ok {
		return nil, domain.ErrAircraftNotFound
	}
	return &at, nil
}

func (t *memTx) InsertFlight(_ context.Context, flight *domain.Flight) error {
	if flight.Status == "" {
		flight.Status = domain.FlightStatusActive
	}
	flight.ID = t.id()
	flight.CreatedAt = t.now()
	flight.UpdatedAt = flight.CreatedAt
	stored := *flight
	stored.Stopovers = slices.Clone(flight.Stopovers)
	t.state.flights[flight.ID] = stored
	return nil
}

func (t *memTx) GetFlight(_ context.Context, id int64, _ LockMode) (*domain.Flight, error) {
	f, ok := t.state.flights[id]
	if !ok {
		return nil, domain.ErrFlightNotFound
	}
	f.Stopovers = slices.Clone(f.Stopovers)
	return &f, nil
}

func (t *memTx) UpdateFlightStatus(ctx context.Context, id int64, status domain.FlightStatus) (*domain.Flight, error) {
	f, ok := t.state.flights[id]
	if !ok {
		return nil, domain.ErrFlightNotFound
	}
	f.Status = status
	f.UpdatedAt = t.now()
	t.state.flights[id] = f
	return t.GetFlight(ctx, id, LockNone)
}

func (t *memTx) InsertSeats(_ context.Context, flightID int64, seatNumbers []string) error {
	for _, n := range seatNumbers {
		t.state.seats[flightID] = append(t.state.seats[flightID], domain.Seat{
			ID:          t.id(),
			FlightID:    flightID,
			SeatNumber:  n,
			IsAvailable: true,
		})
	}
	return nil
}

func (t *memTx) LockSeats(_ context.Context, flightID int64, seatNumbers []string) ([]domain.Seat, error) {
	var out []domain.Seat
	for _, s := range t.state.seats[flightID] {
		if slices.Contains(seatNumbers, s.SeatNumber) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })
	return out, nil
}

func (t *memTx) SetSeatsAvailable(_ context.Context, flightID int64, seatNumbers []string, available bool) (int64, error) {
	var n int64
	seats := t.state.seats[flightID]
	for i := range seats {
		if slices.Contains(seatNumbers, seats[i].SeatNumber) {
			seats[i].IsAvailable = available
			n++
		}
	}
	return n, nil
}

func (t *memTx) ListSeats(_ context.Context, flightID int64) ([]domain.Seat, error) {
	return slices.Clone(t.state.seats[flightID]), nil
}

func (t *memTx) InsertReservation(_ context.Context, r *domain.Reservation) error {
	for _, tk := range r.Tickets {
		key := seatKey{flightID: r.FlightID, seatNumber: tk.SeatNumber}
		if _, taken := t.state.activeTickets[key]; taken {
			return domain.ErrSeatUnavailable
		}
	}

	r.ID = t.id()
	r.CreatedAt = t.now()
	r.UpdatedAt = r.CreatedAt
	for i := range r.Tickets {
		r.Tickets[i].ID = t.id()
		r.Tickets[i].ReservationID = r.ID
		if r.Status.IsActive() {
			t.state.activeTickets[seatKey{flightID: r.FlightID, seatNumber: r.Tickets[i].SeatNumber}] = r.ID
		}
	}
	t.state.reservations[r.ID] = copyReservation(*r)
	return nil
}

func (t *memTx) GetReservation(_ context.Context, id int64, _ LockMode) (*domain.Reservation, error) {
	r, ok := t.state.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	r = copyReservation(r)
	return &r, nil
}

func (t *memTx) ListReservationsByUser(_ context.Context, userID int64) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, r := range t.state.reservations {
		if r.UserID == userID {
			out = append(out, copyReservation(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (t *memTx) LockActiveReservations(_ context.Context, flightID int64) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, r := range t.state.reservations {
		if r.FlightID == flightID && r.Status.IsActive() {
			out = append(out, copyReservation(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) ListStalePending(_ context.Context, createdBefore time.Time) ([]int64, error) {
	var ids []int64
	for _, r := range t.state.reservations {
		if r.Status == domain.ReservationStatusPending && !r.CreatedAt.After(createdBefore) {
			ids = append(ids, r.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (t *memTx) UpdateReservationStatus(_ context.Context, ids []int64, status domain.ReservationStatus) error {
	for _, id := range ids {
		r, ok := t.state.reservations[id]
		if !ok {
			continue
		}
		r.Status = status
		r.UpdatedAt = t.now()
		if status == domain.ReservationStatusCancelled {
			for _, tk := range r.Tickets {
				key := seatKey{flightID: r.FlightID, seatNumber: tk.SeatNumber}
				if t.state.activeTickets[key] == r.ID {
					delete(t.state.activeTickets, key)
				}
			}
		}
		t.state.reservations[id] = r
	}
	return nil
}

func (t *memTx) InsertPayment(_ context.Context, p *domain.Payment) error {
	r, ok := t.state.reservations[p.ReservationID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	if r.Payment != nil {
		return domain.ErrPaymentAlreadyStarted
	}
	p.ID = t.id()
	p.CreatedAt = t.now()
	stored := *p
	r.Payment = &stored
	t.state.reservations[p.ReservationID] = r
	return nil
}

var _ Store = (*MemoryStore)(nil)
var _ Tx = (*memTx)(nil)
