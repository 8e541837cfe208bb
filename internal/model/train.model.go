package model

import (
	"strings"
)

// Train is a scheduled train and its seat inventory.
// 0 <= AvailableSeats <= TotalSeats always holds, and
// TotalSeats - AvailableSeats equals the number of bookings on the train.
type Train struct {
	ID             int64  `json:"id"`
	Number         string `json:"train_number"`
	Source         string `json:"source"`
	Destination    string `json:"destination"`
	TotalSeats     int    `json:"total_seats"`
	AvailableSeats int    `json:"available_seats"`
}

func (t *Train) BookedSeats() int {
	return t.TotalSeats - t.AvailableSeats
}

type TrainCreateRequest struct {
	Number      string `json:"train_number" validate:"required,max=64"`
	Source      string `json:"source"       validate:"required,max=128"`
	Destination string `json:"destination"  validate:"required,max=128"`
	TotalSeats  int    `json:"total_seats"  validate:"min=0"`
}

// Normalize trims surrounding whitespace from the text fields.
func (p *TrainCreateRequest) Normalize() {
	p.Number = strings.TrimSpace(p.Number)
	p.Source = strings.TrimSpace(p.Source)
	p.Destination = strings.TrimSpace(p.Destination)
}

func (p TrainCreateRequest) Validate() error {
	return validateStruct(p)
}

type RouteQuery struct {
	Source      string `json:"source"      validate:"required"`
	Destination string `json:"destination" validate:"required"`
}

func (q RouteQuery) Validate() error {
	return validateStruct(q)
}

type CapacityUpdateRequest struct {
	TotalSeats *int `json:"total_seats" validate:"required,min=0"`
}

func (p CapacityUpdateRequest) Validate() error {
	return validateStruct(p)
}
