package email

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Domenick1991/skyreserve/internal/events"
)

// Message is a rendered notification for one user.
type Message struct {
	UserID  int64
	Subject string
	Body    string
}

// Sender delivers notifications. Delivery is a structured log line; a mail
// transport plugs in here.
type Sender struct {
	logger *zap.Logger
}

func NewSender(logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{logger: logger}
}

// Compose renders the notification for e. ok is false for events nobody is
// notified about.
func Compose(e events.Event) (Message, bool) {
	seats := strings.Join(e.Seats, ", ")
	msg := Message{UserID: e.UserID}

	switch e.Type {
	case events.ReservationConfirmed:
		msg.Subject = fmt.Sprintf("Reservation %d confirmed", e.ReservationID)
		msg.Body = fmt.Sprintf("Your seats %s on flight %d are confirmed (paid by %s).", seats, e.FlightID, e.PaymentMethod)
	case events.ReservationCancelled:
		msg.Subject = fmt.Sprintf("Reservation %d cancelled", e.ReservationID)
		switch e.Reason {
		case events.ReasonFlightCancelled:
			msg.Body = fmt.Sprintf("Flight %d was cancelled, so your seats %s were released.", e.FlightID, seats)
		case events.ReasonExpired:
			msg.Body = fmt.Sprintf("Your hold on seats %s of flight %d expired before payment.", seats, e.FlightID)
		default:
			msg.Body = fmt.Sprintf("Your seats %s on flight %d were released.", seats, e.FlightID)
		}
	default:
		return Message{}, false
	}
	if msg.UserID == 0 {
		return Message{}, false
	}
	return msg, true
}

func (s *Sender) Send(ctx context.Context, e events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, ok := Compose(e)
	if !ok {
		s.logger.Debug("no notification for event", zap.String("event_type", string(e.Type)), zap.String("event_id", e.ID))
		return nil
	}
	s.logger.Info("notification sent",
		zap.Int64("user_id", msg.UserID),
		zap.String("subject", msg.Subject),
		zap.String("event_id", e.ID),
	)
	return nil
}
