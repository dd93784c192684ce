package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Domenick1991/skyreserve/config"
	"github.com/Domenick1991/skyreserve/internal/domain"
	"github.com/Domenick1991/skyreserve/internal/events"
	"github.com/Domenick1991/skyreserve/internal/repository"
	"github.com/Domenick1991/skyreserve/internal/telemetry"
)

type PaymentUseCase interface {
	ProcessPayment(ctx context.Context, input ProcessPaymentInput) (*domain.Payment, error)
}

// Confirmer moves a locked reservation from PENDING to CONFIRMED.
type Confirmer interface {
	ConfirmTx(ctx context.Context, tx repository.Tx, r *domain.Reservation) error
}

type EventPublisher interface {
	Publish(ctx context.Context, evts ...events.Event)
}

type ProcessPaymentInput struct {
	ReservationID int64                `json:"-"`
	UserID        int64                `json:"-"`
	Method        domain.PaymentMethod `json:"method"`
	CardType      string               `json:"card_type,omitempty"`
	CardNumber    string               `json:"card_number,omitempty"`
	CardExpiry    string               `json:"card_expiry,omitempty"`
}

type PaymentServiceOption func(*PaymentService)

func WithClock(now func() time.Time) PaymentServiceOption {
	return func(s *PaymentService) {
		s.now = now
	}
}

func WithBarcodeGenerator(g func(now time.Time) string) PaymentServiceOption {
	return func(s *PaymentService) {
		s.barcode = g
	}
}

type PaymentService struct {
	store      repository.Store
	confirmer  Confirmer
	events     EventPublisher
	logger     *zap.Logger
	minSlipAge time.Duration
	slipExpiry time.Duration
	now        func() time.Time
	barcode    func(now time.Time) string
}

func NewPaymentService(
	store repository.Store,
	confirmer Confirmer,
	publisher EventPublisher,
	cfg config.PaymentConfig,
	logger *zap.Logger,
	opts ...PaymentServiceOption,
) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PaymentService{
		store:      store,
		confirmer:  confirmer,
		events:     publisher,
		logger:     logger,
		minSlipAge: time.Duration(cfg.BankSlipMinDays) * 24 * time.Hour,
		slipExpiry: time.Duration(cfg.BankSlipExpiryDays) * 24 * time.Hour,
		now:        time.Now,
		barcode:    NewBarcode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessPayment records the single payment of a PENDING reservation and
// confirms it. Ownership and state are checked on the locked reservation
// before any method-specific work, and nothing is written unless every step
// succeeds.
func (s *PaymentService) ProcessPayment(ctx context.Context, input ProcessPaymentInput) (_ *domain.Payment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "payment.Process")
	defer func() { telemetry.End(span, err) }()

	var (
		payment     *domain.Payment
		reservation *domain.Reservation
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := tx.GetReservation(ctx, input.ReservationID, repository.LockUpdate)
		if err != nil {
			return err
		}
		if r.UserID != input.UserID {
			return domain.ErrForbidden
		}
		if r.Status != domain.ReservationStatusPending {
			return domain.ErrNotPendingPayment
		}
		if r.Payment != nil {
			return domain.ErrPaymentAlreadyStarted
		}

		now := s.now()
		p := &domain.Payment{
			ReservationID: r.ID,
			Method:        input.Method,
			ProcessedAt:   now,
		}
		switch input.Method {
		case domain.PaymentMethodCreditCard:
			if err := s.approveCard(p, input); err != nil {
				return err
			}
		case domain.PaymentMethodBankSlip:
			flight, err := tx.GetFlight(ctx, r.FlightID, repository.LockNone)
			if err != nil {
				return err
			}
			if err := s.approveSlip(p, flight, now); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %q", domain.ErrInvalidPaymentMethod, input.Method)
		}

		if err := s.confirmer.ConfirmTx(ctx, tx, r); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		r.Payment = p
		payment, reservation = p, r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment approved",
		zap.Int64("reservation_id", reservation.ID),
		zap.Int64("payment_id", payment.ID),
		zap.String("method", string(payment.Method)),
	)
	if s.events != nil {
		s.events.Publish(ctx, events.ForReservation(events.ReservationConfirmed, reservation))
	}
	return payment, nil
}

func (s *PaymentService) approveCard(p *domain.Payment, input ProcessPaymentInput) error {
	cardType := strings.TrimSpace(input.CardType)
	number := digitsOnly(input.CardNumber)
	if cardType == "" || number == "" {
		return domain.ErrCardDetailsRequired
	}

	p.Status = domain.PaymentStatusApproved
	p.CardType = cardType
	p.CardLastFour = lastFour(number)
	p.CardExpiry = strings.TrimSpace(input.CardExpiry)
	return nil
}

// approveSlip accepts a bank slip only when departure is strictly more than
// minSlipAge away, measured in real time rather than calendar days.
func (s *PaymentService) approveSlip(p *domain.Payment, flight *domain.Flight, now time.Time) error {
	if flight.DepartureTime.Sub(now) <= s.minSlipAge {
		return domain.ErrBankSlipTooLate
	}

	expiry := now.Add(s.slipExpiry)
	p.Status = domain.PaymentStatusApproved
	p.SlipBarcode = s.barcode(now)
	p.SlipExpiry = &expiry
	return nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lastFour(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}

var _ PaymentUseCase = (*PaymentService)(nil)
