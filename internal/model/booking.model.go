package model

import "time"

// Booking is one seat held by a principal on a train. It is created together
// with the seat decrement and never modified afterwards.
type Booking struct {
	ID          int64     `json:"id"`
	PrincipalID string    `json:"principal_id"`
	TrainID     int64     `json:"train_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type ReserveRequest struct {
	PrincipalID string `json:"principal_id" validate:"required,max=128"`
	TrainID     int64  `json:"train_id"     validate:"required,gt=0"`
}

func (p ReserveRequest) Validate() error {
	return validateStruct(p)
}

// BookingCreatedEvent is published on the booking stream after a reservation commits.
type BookingCreatedEvent struct {
	BookingID   int64     `json:"booking_id"`
	TrainID     int64     `json:"train_id"`
	TrainNumber string    `json:"train_number"`
	PrincipalID string    `json:"principal_id"`
	CreatedAt   time.Time `json:"created_at"`
}
