package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Domenick1991/skyreserve/internal/domain"
	"github.com/Domenick1991/skyreserve/internal/service/flights"
	"github.com/Domenick1991/skyreserve/internal/service/inventory"
)

// SeatWatcher streams live seat availability of one flight over a websocket.
type SeatWatcher interface {
	Serve(w http.ResponseWriter, r *http.Request, flightID int64, snapshot []domain.Seat) error
}

type FlightHandler struct {
	service flights.FlightUseCase
	seats   inventory.InventoryUseCase
	watcher SeatWatcher
	logger  *zap.Logger
}

type seatMapResponse struct {
	FlightID  int64         `json:"flight_id"`
	Available int           `json:"available"`
	Seats     []domain.Seat `json:"seats"`
}

func NewFlightHandler(service flights.FlightUseCase, seats inventory.InventoryUseCase, watcher SeatWatcher, logger *zap.Logger) *FlightHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlightHandler{service: service, seats: seats, watcher: watcher, logger: logger}
}

func (h *FlightHandler) Register(public, protected *gin.RouterGroup) {
	public.GET("/flights/:id", h.get)
	public.GET("/flights/:id/seats", h.seatMap)
	public.GET("/flights/:id/seats/ws", h.watchSeats)

	protected.POST("/flights", AdminOnly(), h.create)
	protected.DELETE("/flights/:id", AdminOnly(), h.cancel)
}

func (h *FlightHandler) create(c *gin.Context) {
	var input flights.CreateFlightInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	flight, err := h.service.CreateFlight(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, flight)
}

func (h *FlightHandler) get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	flight, err := h.service.GetFlight(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flight)
}

// cancel runs the cancellation cascade for the flight.
func (h *FlightHandler) cancel(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	flight, err := h.service.CancelFlight(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flight)
}

func (h *FlightHandler) seatMap(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	seats, err := h.seats.GetSeatMap(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := seatMapResponse{FlightID: id, Seats: seats}
	for _, s := range seats {
		if s.IsAvailable {
			resp.Available++
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *FlightHandler) watchSeats(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if h.watcher == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody("UNAVAILABLE", "live seat map is disabled"))
		return
	}
	snapshot, err := h.seats.GetSeatMap(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.watcher.Serve(c.Writer, c.Request, id, snapshot); err != nil {
		h.logger.Warn("seat map watcher not started", zap.Int64("flight_id", id), zap.Error(err))
	}
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondBadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
