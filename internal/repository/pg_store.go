package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Domenick1991/skyreserve/internal/domain"
	"github.com/Domenick1991/skyreserve/internal/telemetry"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	activeSeatIndex     = "tickets_active_seat_uidx"
	paymentPerResUnique = "payments_reservation_id_key"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// WithTx runs fn in a READ COMMITTED transaction. Reads that feed a decision
// take row locks (LockShare/LockUpdate), so concurrent units on the same rows
// serialize and the first to commit wins.
func (s *PGStore) WithTx(ctx context.Context, fn TxFunc) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.tx")
	defer func() { telemetry.End(span, err) }()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return translatePgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translatePgError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// translatePgError turns constraint and concurrency failures into domain errors.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case activeSeatIndex:
			return fmt.Errorf("%w: %w", domain.ErrSeatUnavailable, err)
		case paymentPerResUnique:
			return fmt.Errorf("%w: %w", domain.ErrPaymentAlreadyStarted, err)
		}
	case pgForeignKeyViolation:
		if pgErr.TableName == "tickets" {
			return fmt.Errorf("%w: %w", domain.ErrSeatUnavailable, err)
		}
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: %w", domain.ErrConcurrentUpdate, err)
	}
	return err
}

type pgTx struct {
	tx pgx.Tx
}

func lockClause(lock LockMode) string {
	switch lock {
	case LockShare:
		return " FOR SHARE"
	case LockUpdate:
		return " FOR UPDATE"
	default:
		return ""
	}
}

func (t *pgTx) GetAircraftType(ctx context.Context, aircraftID int64) (*domain.AircraftType, error) {
	row := t.tx.QueryRow(ctx, `SELECT at.id, at.model, at.seat_capacity, at.seat_map
		FROM aircraft a JOIN aircraft_types at ON at.id = a.aircraft_type_id
		WHERE a.id = $1`, aircraftID)

	var (
		at      domain.AircraftType
		seatMap []byte
	)
	if err := row.Scan(&at.ID, &at.Model, &at.SeatCapacity, &seatMap); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAircraftNotFound
		}
		return nil, fmt.Errorf("get aircraft type: %w", err)
	}
	if len(seatMap) > 0 {
		if err := json.Unmarshal(seatMap, &at.SeatMap); err != nil {
			return nil, fmt.Errorf("decode seat map of aircraft type %d: %w", at.ID, err)
		}
	}
	return &at, nil
}

const flightColumns = `id, flight_number, aircraft_id, origin_airport_id, destination_airport_id,
	departure_time, arrival_time, status, created_at, updated_at`

func scanFlight(row pgx.Row) (*domain.Flight, error) {
	var f domain.Flight
	err := row.Scan(&f.ID, &f.FlightNumber, &f.AircraftID, &f.OriginAirportID, &f.DestinationAirportID,
		&f.DepartureTime, &f.ArrivalTime, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFlightNotFound
		}
		return nil, fmt.Errorf("scan flight: %w", err)
	}
	return &f, nil
}

func (t *pgTx) InsertFlight(ctx context.Context, flight *domain.Flight) error {
	if flight.Status == "" {
		flight.Status = domain.FlightStatusActive
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO flights
		(flight_number, aircraft_id, origin_airport_id, destination_airport_id, departure_time, arrival_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		flight.FlightNumber, flight.AircraftID, flight.OriginAirportID, flight.DestinationAirportID,
		flight.DepartureTime, flight.ArrivalTime, flight.Status).
		Scan(&flight.ID, &flight.CreatedAt, &flight.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert flight: %w", err)
	}
	if len(flight.Stopovers) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range flight.Stopovers {
		batch.Queue(`INSERT INTO stopovers (flight_id, airport_id, stop_order, arrival_time, departure_time)
			VALUES ($1, $2, $3, $4, $5)`, flight.ID, s.AirportID, s.Order, s.ArrivalTime, s.DepartureTime)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert stopovers: %w", err)
	}
	return nil
}

func (t *pgTx) GetFlight(ctx context.Context, id int64, lock LockMode) (*domain.Flight, error) {
	f, err := scanFlight(t.tx.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id = $1`+lockClause(lock), id))
	if err != nil {
		return nil, err
	}
	if f.Stopovers, err = t.stopovers(ctx, f.ID); err != nil {
		return nil, err
	}
	return f, nil
}

func (t *pgTx) UpdateFlightStatus(ctx context.Context, id int64, status domain.FlightStatus) (*domain.Flight, error) {
	f, err := scanFlight(t.tx.QueryRow(ctx, `UPDATE flights SET status = $2, updated_at = now()
		WHERE id = $1 RETURNING `+flightColumns, id, status))
	if err != nil {
		return nil, err
	}
	if f.Stopovers, err = t.stopovers(ctx, f.ID); err != nil {
		return nil, err
	}
	return f, nil
}

func (t *pgTx) stopovers(ctx context.Context, flightID int64) ([]domain.Stopover, error) {
	rows, err := t.tx.Query(ctx, `SELECT airport_id, stop_order, arrival_time, departure_time
		FROM stopovers WHERE flight_id = $1 ORDER BY stop_order`, flightID)
	if err != nil {
		return nil, fmt.Errorf("query stopovers: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Stopover, error) {
		var s domain.Stopover
		err := row.Scan(&s.AirportID, &s.Order, &s.ArrivalTime, &s.DepartureTime)
		return s, err
	})
}

func (t *pgTx) InsertSeats(ctx context.Context, flightID int64, seatNumbers []string) error {
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"seats"},
		[]string{"flight_id", "seat_number", "is_available"},
		pgx.CopyFromSlice(len(seatNumbers), func(i int) ([]any, error) {
			return []any{flightID, seatNumbers[i], true}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("insert seats: %w", err)
	}
	return nil
}

func scanSeats(rows pgx.Rows) ([]domain.Seat, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Seat, error) {
		var s domain.Seat
		err := row.Scan(&s.ID, &s.FlightID, &s.SeatNumber, &s.IsAvailable)
		return s, err
	})
}

func (t *pgTx) LockSeats(ctx context.Context, flightID int64, seatNumbers []string) ([]domain.Seat, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, flight_id, seat_number, is_available FROM seats
		WHERE flight_id = $1 AND seat_number = ANY($2)
		ORDER BY seat_number FOR UPDATE`, flightID, seatNumbers)
	if err != nil {
		return nil, fmt.Errorf("lock seats: %w", err)
	}
	return scanSeats(rows)
}

func (t *pgTx) SetSeatsAvailable(ctx context.Context, flightID int64, seatNumbers []string, available bool) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE seats SET is_available = $3
		WHERE flight_id = $1 AND seat_number = ANY($2)`, flightID, seatNumbers, available)
	if err != nil {
		return 0, fmt.Errorf("update seat availability: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) ListSeats(ctx context.Context, flightID int64) ([]domain.Seat, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, flight_id, seat_number, is_available FROM seats
		WHERE flight_id = $1 ORDER BY id`, flightID)
	if err != nil {
		return nil, fmt.Errorf("list seats: %w", err)
	}
	return scanSeats(rows)
}

func (t *pgTx) InsertReservation(ctx context.Context, r *domain.Reservation) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO reservations (user_id, flight_id, status)
		VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`, r.UserID, r.FlightID, r.Status).
		Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	for i := range r.Tickets {
		ticket := &r.Tickets[i]
		ticket.ReservationID = r.ID
		err := t.tx.QueryRow(ctx, `INSERT INTO tickets (reservation_id, flight_id, seat_number)
			VALUES ($1, $2, $3) RETURNING id`, r.ID, r.FlightID, ticket.SeatNumber).Scan(&ticket.ID)
		if err != nil {
			return fmt.Errorf("insert ticket %s: %w", ticket.SeatNumber, err)
		}
	}
	return nil
}

const reservationColumns = `id, user_id, flight_id, status, created_at, updated_at`

func scanReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Reservation, error) {
		var r domain.Reservation
		err := row.Scan(&r.ID, &r.UserID, &r.FlightID, &r.Status, &r.CreatedAt, &r.UpdatedAt)
		return r, err
	})
}

func (t *pgTx) GetReservation(ctx context.Context, id int64, lock LockMode) (*domain.Reservation, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`+lockClause(lock), id)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	list, err := scanReservations(rows)
	if err != nil {
		return nil, fmt.Errorf("scan reservation: %w", err)
	}
	if len(list) == 0 {
		return nil, domain.ErrReservationNotFound
	}
	if err := t.attachDetails(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (t *pgTx) ListReservationsByUser(ctx context.Context, userID int64) ([]domain.Reservation, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	list, err := scanReservations(rows)
	if err != nil {
		return nil, fmt.Errorf("scan reservations: %w", err)
	}
	return list, t.attachDetails(ctx, list)
}

func (t *pgTx) LockActiveReservations(ctx context.Context, flightID int64) ([]domain.Reservation, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE flight_id = $1 AND status = ANY($2)
		ORDER BY id FOR UPDATE`, flightID,
		[]string{string(domain.ReservationStatusPending), string(domain.ReservationStatusConfirmed)})
	if err != nil {
		return nil, fmt.Errorf("lock active reservations: %w", err)
	}
	list, err := scanReservations(rows)
	if err != nil {
		return nil, fmt.Errorf("scan reservations: %w", err)
	}
	return list, t.attachDetails(ctx, list)
}

func (t *pgTx) ListStalePending(ctx context.Context, createdBefore time.Time) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT id FROM reservations
		WHERE status = $1 AND created_at <= $2 ORDER BY id`, domain.ReservationStatusPending, createdBefore)
	if err != nil {
		return nil, fmt.Errorf("list stale reservations: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (t *pgTx) UpdateReservationStatus(ctx context.Context, ids []int64, status domain.ReservationStatus) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.tx.Exec(ctx, `UPDATE reservations SET status = $1, updated_at = now()
		WHERE id = ANY($2)`, status, ids); err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	if status == domain.ReservationStatusCancelled {
		if _, err := t.tx.Exec(ctx, `UPDATE tickets SET active = FALSE
			WHERE reservation_id = ANY($1)`, ids); err != nil {
			return fmt.Errorf("retire tickets: %w", err)
		}
	}
	return nil
}

func (t *pgTx) InsertPayment(ctx context.Context, p *domain.Payment) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO payments
		(reservation_id, method, status, processed_at, card_type, card_last_four, card_expiry, slip_barcode, slip_expiry)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9)
		RETURNING id, created_at`,
		p.ReservationID, p.Method, p.Status, p.ProcessedAt,
		p.CardType, p.CardLastFour, p.CardExpiry, p.SlipBarcode, p.SlipExpiry).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// attachDetails loads tickets and payments for the given reservations in two queries.
func (t *pgTx) attachDetails(ctx context.Context, list []domain.Reservation) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, len(list))
	index := make(map[int64]int, len(list))
	for i, r := range list {
		ids[i] = r.ID
		index[r.ID] = i
	}

	rows, err := t.tx.Query(ctx, `SELECT id, reservation_id, seat_number FROM tickets
		WHERE reservation_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("query tickets: %w", err)
	}
	tickets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Ticket, error) {
		var tk domain.Ticket
		err := row.Scan(&tk.ID, &tk.ReservationID, &tk.SeatNumber)
		return tk, err
	})
	if err != nil {
		return fmt.Errorf("scan tickets: %w", err)
	}
	for _, tk := range tickets {
		r := &list[index[tk.ReservationID]]
		r.Tickets = append(r.Tickets, tk)
	}

	rows, err = t.tx.Query(ctx, `SELECT id, reservation_id, method, status, processed_at,
		COALESCE(card_type, ''), COALESCE(card_last_four, ''), COALESCE(card_expiry, ''),
		COALESCE(slip_barcode, ''), slip_expiry, created_at
		FROM payments WHERE reservation_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("query payments: %w", err)
	}
	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Payment, error) {
		var p domain.Payment
		err := row.Scan(&p.ID, &p.ReservationID, &p.Method, &p.Status, &p.ProcessedAt,
			&p.CardType, &p.CardLastFour, &p.CardExpiry, &p.SlipBarcode, &p.SlipExpiry, &p.CreatedAt)
		return p, err
	})
	if err != nil {
		return fmt.Errorf("scan payments: %w", err)
	}
	for i := range payments {
		p := payments[i]
		list[index[p.ReservationID]].Payment = &p
	}
	return nil
}

var _ Store = (*PGStore)(nil)
var _ Tx = (*pgTx)(nil)
