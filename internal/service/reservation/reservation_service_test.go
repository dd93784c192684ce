package reservation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Domenick1991/skyreserve/internal/domain"
	"github.com/Domenick1991/skyreserve/internal/events"
	"github.com/Domenick1991/skyreserve/internal/repository"
	"github.com/Domenick1991/skyreserve/internal/service/inventory"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, evts ...events.Event) {
	args := make([]interface{}, 0, len(evts)+1)
	args = append(args, ctx)
	for _, e := range evts {
		args = append(args, e)
	}
	m.Called(args...)
}

func eventOfType(t events.Type) interface{} {
	return mock.MatchedBy(func(e events.Event) bool { return e.Type == t })
}

type fixture struct {
	store     *repository.MemoryStore
	inventory *inventory.Manager
	publisher *MockPublisher
	service   *ReservationService
	flightID  int64
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     repository.NewMemoryStore(),
		publisher: &MockPublisher{},
		now:       time.Date(2030, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.store.SetClock(func() time.Time { return f.now })
	f.store.AddAircraft(1, domain.AircraftType{ID: 1, Model: "A320", SeatCapacity: 12, SeatMap: domain.SeatMapDescriptor{Layout: "3-3"}})
	f.inventory = inventory.NewManager(f.store, zap.NewNop())
	f.service = NewReservationService(f.store, f.inventory, f.publisher, zap.NewNop(),
		WithClock(func() time.Time { return f.now }))
	f.flightID = f.addFlight(t)
	return f
}

func (f *fixture) addFlight(t *testing.T) int64 {
	t.Helper()
	var id int64
	err := f.store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		flight := &domain.Flight{
			FlightNumber:  "SR42",
			AircraftID:    1,
			DepartureTime: f.now.Add(72 * time.Hour),
			ArrivalTime:   f.now.Add(75 * time.Hour),
		}
		if err := tx.InsertFlight(ctx, flight); err != nil {
			return err
		}
		id = flight.ID
		_, err := f.inventory.CreateSeatsForFlight(ctx, tx, flight.ID, 1)
		return err
	})
	require.NoError(t, err)
	return id
}

// assertSeatsMatchReservations checks that the taken seats of the flight are
// exactly the seats ticketed by its active reservations.
func (f *fixture) assertSeatsMatchReservations(t *testing.T) {
	t.Helper()
	err := f.store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		seats, err := tx.ListSeats(ctx, f.flightID)
		require.NoError(t, err)
		active, err := tx.LockActiveReservations(ctx, f.flightID)
		require.NoError(t, err)

		var taken, held []string
		for _, s := range seats {
			if !s.IsAvailable {
				taken = append(taken, s.SeatNumber)
			}
		}
		for _, r := range active {
			held = append(held, r.SeatNumbers()...)
		}
		sort.Strings(taken)
		sort.Strings(held)
		assert.Equal(t, held, taken)
		return nil
	})
	require.NoError(t, err)
}

func TestReservationService_CreateReservation_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publisher.On("Publish", ctx, eventOfType(events.ReservationCreated)).Once()

	r, err := f.service.CreateReservation(ctx, CreateReservationInput{
		FlightID:    f.flightID,
		UserID:      7,
		SeatNumbers: []string{"1a", "1B"},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusPending, r.Status)
	assert.Equal(t, []string{"1A", "1B"}, r.SeatNumbers())
	assert.Nil(t, r.Payment)
	f.assertSeatsMatchReservations(t)
	f.publisher.AssertExpectations(t)
}

func TestReservationService_CreateReservation_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testCases := []struct {
		name  string
		input CreateReservationInput
		want  error
	}{
		{"no seats", CreateReservationInput{FlightID: f.flightID, UserID: 1}, domain.ErrNoSeatsRequested},
		{"duplicate seat", CreateReservationInput{FlightID: f.flightID, UserID: 1, SeatNumbers: []string{"1A", "1A"}}, domain.ErrDuplicateSeat},
		{"unknown flight", CreateReservationInput{FlightID: 999, UserID: 1, SeatNumbers: []string{"1A"}}, domain.ErrFlightNotFound},
		{"unknown seat", CreateReservationInput{FlightID: f.flightID, UserID: 1, SeatNumbers: []string{"1A", "40F"}}, domain.ErrSeatUnavailable},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := f.service.CreateReservation(ctx, tc.input)
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, r)
		})
	}

	f.assertSeatsMatchReservations(t)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestReservationService_CreateReservation_CancelledFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.UpdateFlightStatus(ctx, f.flightID, domain.FlightStatusCancelled)
		return err
	}))

	_, err := f.service.CreateReservation(ctx, CreateReservationInput{FlightID: f.flightID, UserID: 1, SeatNumbers: []string{"1A"}})
	assert.ErrorIs(t, err, domain.ErrFlightNotActive)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestReservationService_CreateReservation_ConcurrentSameSeat(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("Publish", mock.Anything, eventOfType(events.ReservationCreated))

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := f.service.CreateReservation(context.Background(), CreateReservationInput{
				FlightID:    f.flightID,
				UserID:      userID,
				SeatNumbers: []string{"2C"},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrSeatUnavailable):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
	f.assertSeatsMatchReservations(t)
	f.publisher.AssertNumberOfCalls(t, "Publish", 1)
}

func TestReservationService_CreateReservation_DisjointSeatsBothSucceed(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("Publish", mock.Anything, eventOfType(events.ReservationCreated))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, seat := range []string{"1A", "1B"} {
		wg.Add(1)
		go func(i int, seat string) {
			defer wg.Done()
			_, errs[i] = f.service.CreateReservation(context.Background(), CreateReservationInput{
				FlightID: f.flightID, UserID: int64(i + 1), SeatNumbers: []string{seat},
			})
		}(i, seat)
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	f.assertSeatsMatchReservations(t)
}

func TestReservationService_CancelReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publisher.On("Publish", ctx, eventOfType(events.ReservationCreated)).Once()
	f.publisher.On("Publish", ctx, eventOfType(events.ReservationCancelled)).Once()

	r, err := f.service.CreateReservation(ctx, CreateReservationInput{FlightID: f.flightID, UserID: 7, SeatNumbers: []string{"3A"}})
	require.NoError(t, err)

	_, err = f.service.CancelReservation(ctx, r.ID, domain.Actor{UserID: 8, Role: domain.RolePassenger})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	cancelled, err := f.service.CancelReservation(ctx, r.ID, domain.Actor{UserID: 7, Role: domain.RolePassenger})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, cancelled.Status)
	f.assertSeatsMatchReservations(t)

	again, err := f.service.CancelReservation(ctx, r.ID, domain.Actor{UserID: 7, Role: domain.RolePassenger})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, again.Status)

	// the freed seat can be booked again
	f.publisher.On("Publish", ctx, eventOfType(events.ReservationCreated)).Once()
	_, err = f.service.CreateReservation(ctx, CreateReservationInput{FlightID: f.flightID, UserID: 9, SeatNumbers: []string{"3A"}})
	assert.NoError(t, err)

	f.publisher.AssertExpectations(t)
}

func TestReservationService_CancelReservation_AdminAndNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publisher.On("Publish", ctx, mock.Anything)

	r, err := f.service.CreateReservation(ctx, CreateReservationInput{FlightID: f.flightID, UserID: 7, SeatNumbers: []string{"1C"}})
	require.NoError(t, err)

	admin := domain.Actor{UserID: 1, Role: domain.RoleAdmin}
	cancelled, err := f.service.CancelReservation(ctx, r.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, cancelled.Status)

	_, err = f.service.CancelReservation(ctx, 12345, admin)
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestReservationService_GetAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publisher.On("Publish", ctx, mock.Anything)

	r, err := f.service.CreateReservation(ctx, CreateReservationInput{FlightID: f.flightID, UserID: 7, SeatNumbers: []string{"2A"}})
	require.NoError(t, err)

	got, err := f.service.GetReservation(ctx, r.ID, domain.Actor{UserID: 7})
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	_, err = f.service.GetReservation(ctx, r.ID, domain.Actor{UserID: 8})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	list, err := f.service.ListForUser(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	empty, err := f.service.ListForUser(ctx, 8)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestReservationService_ConfirmTx(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publisher.On("Publish", ctx, mock.Anything)

	r, err := f.service.CreateReservation(ctx, CreateReservationInput{FlightID: f.flightID, UserID: 7, SeatNumbers: []string{"2B"}})
	require.NoError(t, err)

	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		locked, err := tx.GetReservation(ctx, r.ID, repository.LockUpdate)
		if err != nil {
			return err
		}
		return f.service.ConfirmTx(ctx, tx, locked)
	}))

	err = f.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		locked, err := tx.GetReservation(ctx, r.ID, repository.LockUpdate)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusConfirmed, locked.Status)
		return f.service.ConfirmTx(ctx, tx, locked)
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	f.assertSeatsMatchReservations(t)
}

func TestReservationService_ExpireStalePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publisher.On("Publish", ctx, eventOfType(events.ReservationCreated))
	f.publisher.On("Publish", ctx, mock.MatchedBy(func(e events.Event) bool {
		return e.Type == events.ReservationCancelled && e.Reason == events.ReasonExpired
	})).Once()

	stale, err := f.service.CreateReservation(ctx, CreateReservationInput{FlightID: f.flightID, UserID: 1, SeatNumbers: []string{"1A"}})
	require.NoError(t, err)

	f.now = f.now.Add(20 * time.Minute)
	fresh, err := f.service.CreateReservation(ctx, CreateReservationInput{FlightID: f.flightID, UserID: 2, SeatNumbers: []string{"1B"}})
	require.NoError(t, err)

	f.now = f.now.Add(5 * time.Minute)
	expired, err := f.service.ExpireStalePending(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []int64{stale.ID}, expired)

	got, err := f.service.GetReservation(ctx, fresh.ID, domain.Actor{UserID: 2})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusPending, got.Status)
	f.assertSeatsMatchReservations(t)
	f.publisher.AssertExpectations(t)

	none, err := f.service.ExpireStalePending(ctx, 0)
	assert.NoError(t, err)
	assert.Empty(t, none)
}
