package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Domenick1991/skyreserve/internal/domain"
	"github.com/Domenick1991/skyreserve/internal/service/flights"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code, body.Error.Message
}

func TestFlightHandler_get(t *testing.T) {
	mockService := &MockFlightUseCase{}
	handler := NewFlightHandler(mockService, nil, nil, nil)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "id", Value: "1"}}
	c.Request = httptest.NewRequest("GET", "/api/v1/flights/1", nil)

	flight := &domain.Flight{ID: 1, FlightNumber: "SR100", Status: domain.FlightStatusActive}
	mockService.On("GetFlight", c.Request.Context(), int64(1)).Return(flight, nil)

	handler.get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var got domain.Flight
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "SR100", got.FlightNumber)

	mockService.AssertExpectations(t)
}

func TestFlightHandler_get_notFound(t *testing.T) {
	mockService := &MockFlightUseCase{}
	handler := NewFlightHandler(mockService, nil, nil, nil)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "id", Value: "9"}}
	c.Request = httptest.NewRequest("GET", "/api/v1/flights/9", nil)

	mockService.On("GetFlight", c.Request.Context(), int64(9)).Return(nil, domain.ErrFlightNotFound)

	handler.get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	code, message := decodeError(t, w)
	assert.Equal(t, "NOT_FOUND", code)
	assert.Equal(t, domain.ErrFlightNotFound.Error(), message)
}

func TestFlightHandler_get_invalidID(t *testing.T) {
	mockService := &MockFlightUseCase{}
	handler := NewFlightHandler(mockService, nil, nil, nil)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	c.Request = httptest.NewRequest("GET", "/api/v1/flights/abc", nil)

	handler.get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "GetFlight", mock.Anything, mock.Anything)
}

func TestFlightHandler_create(t *testing.T) {
	mockService := &MockFlightUseCase{}
	handler := NewFlightHandler(mockService, nil, nil, nil)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	departure := time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)
	body := []byte(`{"flight_number":"SR100","aircraft_id":1,"origin_airport_id":10,"destination_airport_id":20,` +
		`"departure_time":"2026-12-01T10:00:00Z","arrival_time":"2026-12-01T14:00:00Z"}`)
	c.Request = httptest.NewRequest("POST", "/api/v1/flights", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	created := &domain.Flight{ID: 5, FlightNumber: "SR100", Status: domain.FlightStatusActive}
	mockService.On("CreateFlight", c.Request.Context(), mock.MatchedBy(func(in flights.CreateFlightInput) bool {
		return in.FlightNumber == "SR100" && in.AircraftID == 1 && in.DepartureTime.Equal(departure)
	})).Return(created, nil)

	handler.create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockService.AssertExpectations(t)
}

func TestFlightHandler_create_invalidSchedule(t *testing.T) {
	mockService := &MockFlightUseCase{}
	handler := NewFlightHandler(mockService, nil, nil, nil)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Request = httptest.NewRequest("POST", "/api/v1/flights", bytes.NewReader([]byte(`{"flight_number":"SR1"}`)))
	c.Request.Header.Set("Content-Type", "application/json")
	mockService.On("CreateFlight", c.Request.Context(), mock.Anything).Return(nil, domain.ErrInvalidSchedule)

	handler.create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	code, _ := decodeError(t, w)
	assert.Equal(t, "BAD_REQUEST", code)
}

func TestFlightHandler_cancel(t *testing.T) {
	mockService := &MockFlightUseCase{}
	handler := NewFlightHandler(mockService, nil, nil, nil)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "id", Value: "3"}}
	c.Request = httptest.NewRequest("DELETE", "/api/v1/flights/3", nil)

	cancelled := &domain.Flight{ID: 3, Status: domain.FlightStatusCancelled}
	mockService.On("CancelFlight", c.Request.Context(), int64(3)).Return(cancelled, nil)

	handler.cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"CANCELLED"`)
	mockService.AssertExpectations(t)
}

func TestFlightHandler_seatMap(t *testing.T) {
	mockSeats := &MockInventoryUseCase{}
	handler := NewFlightHandler(&MockFlightUseCase{}, mockSeats, nil, nil)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "id", Value: "2"}}
	c.Request = httptest.NewRequest("GET", "/api/v1/flights/2/seats", nil)

	seats := []domain.Seat{
		{FlightID: 2, SeatNumber: "1A", IsAvailable: true},
		{FlightID: 2, SeatNumber: "1B", IsAvailable: false},
		{FlightID: 2, SeatNumber: "1C", IsAvailable: true},
	}
	mockSeats.On("GetSeatMap", c.Request.Context(), int64(2)).Return(seats, nil)

	handler.seatMap(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var got seatMapResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(2), got.FlightID)
	assert.Equal(t, 2, got.Available)
	assert.Len(t, got.Seats, 3)
}

func TestFlightHandler_watchSeats(t *testing.T) {
	mockSeats := &MockInventoryUseCase{}
	watcher := &MockSeatWatcher{}
	handler := NewFlightHandler(&MockFlightUseCase{}, mockSeats, watcher, nil)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "id", Value: "2"}}
	c.Request = httptest.NewRequest("GET", "/api/v1/flights/2/seats/ws", nil)

	seats := []domain.Seat{{FlightID: 2, SeatNumber: "1A", IsAvailable: true}}
	mockSeats.On("GetSeatMap", c.Request.Context(), int64(2)).Return(seats, nil)
	watcher.On("Serve", int64(2), seats).Return(nil)

	handler.watchSeats(c)

	watcher.AssertExpectations(t)
}

func TestFlightHandler_watchSeats_disabled(t *testing.T) {
	handler := NewFlightHandler(&MockFlightUseCase{}, &MockInventoryUseCase{}, nil, nil)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "id", Value: "2"}}
	c.Request = httptest.NewRequest("GET", "/api/v1/flights/2/seats/ws", nil)

	handler.watchSeats(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
