package events

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Domenick1991/skyreserve/internal/domain"
)

type Type string

const (
	ReservationCreated   Type = "reservation_created"
	ReservationConfirmed Type = "reservation_confirmed"
	ReservationCancelled Type = "reservation_cancelled"
	FlightCancelled      Type = "flight_cancelled"
)

// Reasons attached to reservation_cancelled events.
const (
	ReasonFlightCancelled = "flight_cancelled"
	ReasonExpired         = "expired"
)

// Event is the message written to the reservation events topic.
type Event struct {
	ID            string    `json:"event_id"`
	Type          Type      `json:"event_type"`
	OccurredAt    time.Time `json:"occurred_at"`
	FlightID      int64     `json:"flight_id"`
	ReservationID int64     `json:"reservation_id,omitempty"`
	UserID        int64     `json:"user_id,omitempty"`
	Status        string    `json:"status"`
	Seats         []string  `json:"seats,omitempty"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// ForReservation builds an event describing r after a committed change.
func ForReservation(t Type, r *domain.Reservation) Event {
	e := Event{
		Type:          t,
		FlightID:      r.FlightID,
		ReservationID: r.ID,
		UserID:        r.UserID,
		Status:        string(r.Status),
		Seats:         r.SeatNumbers(),
	}
	if r.Payment != nil {
		e.PaymentMethod = string(r.Payment.Method)
	}
	return e
}

// ForFlight builds a flight_cancelled event. seats lists every seat the
// cascade released.
func ForFlight(f *domain.Flight, seats []string) Event {
	return Event{
		Type:     FlightCancelled,
		FlightID: f.ID,
		Status:   string(f.Status),
		Seats:    seats,
	}
}

// Producer is the Kafka side of the publisher.
type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// SeatBroadcaster pushes availability changes to live seat-map watchers.
type SeatBroadcaster interface {
	BroadcastSeats(flightID int64, seats []string, available bool)
}

type Option func(*Publisher)

func WithNotificationsTopic(topic string) Option {
	return func(p *Publisher) {
		p.notificationsTopic = topic
	}
}

func WithSeatBroadcaster(b SeatBroadcaster) Option {
	return func(p *Publisher) {
		p.seats = b
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// Publisher fans committed changes out to Kafka and to seat-map watchers.
// It runs after the transaction commits, so failures are logged and never
// returned to the caller.
type Publisher struct {
	producer           Producer
	topic              string
	notificationsTopic string
	seats              SeatBroadcaster
	logger             *zap.Logger
	now                func() time.Time
}

func NewPublisher(producer Producer, topic string, logger *zap.Logger, opts ...Option) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Publish(ctx context.Context, evts ...Event) {
	if p == nil {
		return
	}
	for _, e := range evts {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.OccurredAt.IsZero() {
			e.OccurredAt = p.now().UTC()
		}
		p.broadcast(e)
		p.send(ctx, e)
	}
}

func (p *Publisher) broadcast(e Event) {
	if p.seats == nil || len(e.Seats) == 0 {
		return
	}
	switch e.Type {
	case ReservationCreated:
		p.seats.BroadcastSeats(e.FlightID, e.Seats, false)
	case ReservationCancelled, FlightCancelled:
		p.seats.BroadcastSeats(e.FlightID, e.Seats, true)
	}
}

func (p *Publisher) send(ctx context.Context, e Event) {
	if p.producer == nil || p.topic == "" {
		return
	}
	key := strconv.FormatInt(e.FlightID, 10)
	if err := p.producer.Publish(ctx, p.topic, key, e); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("event_type", string(e.Type)),
			zap.String("event_id", e.ID),
			zap.Int64("flight_id", e.FlightID),
			zap.Error(err),
		)
		return
	}
	if p.notificationsTopic == "" || e.Type == ReservationCreated {
		return
	}
	if err := p.producer.Publish(ctx, p.notificationsTopic, key, e); err != nil {
		p.logger.Warn("failed to publish notification",
			zap.String("event_type", string(e.Type)),
			zap.String("event_id", e.ID),
			zap.Error(err),
		)
	}
}
