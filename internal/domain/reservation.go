package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

// IsActive reports whether a reservation in this status holds its seats.
func (s ReservationStatus) IsActive() bool {
	return s == ReservationStatusPending || s == ReservationStatusConfirmed
}

type Reservation struct {
	ID        int64             `json:"id"`
	UserID    int64             `json:"user_id"`
	FlightID  int64             `json:"flight_id"`
	Status    ReservationStatus `json:"status"`
	Tickets   []Ticket          `json:"tickets"`
	Payment   *Payment          `json:"payment,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (r *Reservation) SeatNumbers() []string {
	seats := make([]string, 0, len(r.Tickets))
	for _, t := range r.Tickets {
		seats = append(seats, t.SeatNumber)
	}
	return seats
}

type Ticket struct {
	ID            int64  `json:"id"`
	ReservationID int64  `json:"reservation_id"`
	SeatNumber    string `json:"seat_number"`
}
