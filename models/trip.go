package models

import (
	"time"
)

type Trip struct {
	ID        string    `json:"id"`
	RouteName string    `json:"route_name"`
	BusID     string    `json:"bus_id"`
	DepartAt  time.Time `json:"depart_at"`
	ArriveAt  time.Time `json:"arrive_at"`
	SeatCount int       `json:"seat_count"`
	Fare      string    `json:"fare"`
	Status    string    `json:"status"` // scheduled, departed, completed, cancelled
}
