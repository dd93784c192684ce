package domain

type Seat struct {
	ID          int64  `json:"id"`
	FlightID    int64  `json:"flight_id"`
	SeatNumber  string `json:"seat_number"`
	IsAvailable bool   `json:"is_available"`
}
