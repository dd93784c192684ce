package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type FlightStatus string

const (
	FlightStatusActive    FlightStatus = "ACTIVE"
	FlightStatusCancelled FlightStatus = "CANCELLED"
)

type Flight struct {
	ID                   int64        `json:"id"`
	FlightNumber         string       `json:"flight_number"`
	AircraftID           int64        `json:"aircraft_id"`
	OriginAirportID      int64        `json:"origin_airport_id"`
	DestinationAirportID int64        `json:"destination_airport_id"`
	DepartureTime        time.Time    `json:"departure_time"`
	ArrivalTime          time.Time    `json:"arrival_time"`
	Status               FlightStatus `json:"status"`
	Stopovers            []Stopover   `json:"stopovers,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// Stopover is an intermediate landing. Order is the 1-based position in the route.
type Stopover struct {
	AirportID     int64     `json:"airport_id"`
	Order         int       `json:"order"`
	ArrivalTime   time.Time `json:"arrival_time"`
	DepartureTime time.Time `json:"departure_time"`
}

type AircraftType struct {
	ID           int64             `json:"id"`
	Model        string            `json:"model"`
	SeatCapacity int               `json:"seat_capacity"`
	SeatMap      SeatMapDescriptor `json:"seat_map"`
}

// SeatMapDescriptor describes a cabin either as an explicit grid (Rows + Columns)
// or with the "L-R" Layout shorthand.
type SeatMapDescriptor struct {
	Rows    int         `json:"rows,omitempty"`
	Columns SeatColumns `json:"columns,omitempty"`
	Layout  string      `json:"layout,omitempty"`
}

// SeatColumns accepts both ["A","B","C"] and "ABC" when decoded from JSON.
type SeatColumns []string

func (c *SeatColumns) UnmarshalJSON(data []byte) error {
	var letters string
	if err := json.Unmarshal(data, &letters); err == nil {
		*c = strings.Split(letters, "")
		if letters == "" {
			*c = nil
		}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*c = list
	return nil
}
