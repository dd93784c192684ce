package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Domenick1991/skyreserve/internal/service/flights"
	"github.com/Domenick1991/skyreserve/internal/service/inventory"
	"github.com/Domenick1991/skyreserve/internal/service/payment"
	"github.com/Domenick1991/skyreserve/internal/service/reservation"
)

type RouterDeps struct {
	Flights        flights.FlightUseCase
	Seats          inventory.InventoryUseCase
	Watcher        SeatWatcher
	Reservations   reservation.ReservationUseCase
	Payments       payment.PaymentUseCase
	Auth           *Authenticator
	Idempotency    IdempotencyStore
	IdempotencyTTL time.Duration
	Logger         *zap.Logger
}

// NewRouter mounts the REST API under /api/v1. Flight reads and the seat map
// are public; everything else needs a bearer token.
func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))

	v1 := r.Group("/api/v1")
	protected := v1.Group("", deps.Auth.Middleware(), Idempotency(deps.Idempotency, deps.IdempotencyTTL, logger))

	NewFlightHandler(deps.Flights, deps.Seats, deps.Watcher, logger).Register(v1, protected)
	NewReservationHandler(deps.Reservations).Register(protected)
	NewPaymentHandler(deps.Payments).Register(protected)
	return r
}
