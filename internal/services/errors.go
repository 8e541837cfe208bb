package services

import (
	"errors"
	"fmt"

	"github.com/nimasrn/train-reservation/internal/model"
	"github.com/nimasrn/train-reservation/internal/repository"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrInvalidCapacity     = errors.New("invalid capacity")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrCapacityBelowBooked = errors.New("capacity below booked seats")
	ErrCapacityExhausted   = errors.New("no seats available")
	ErrTrainHasBookings    = errors.New("train has bookings")
	ErrUnavailable         = errors.New("service unavailable")
)

// isPermanent reports whether err is a business outcome that a retry cannot change.
func isPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrInvalidCapacity) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrCapacityBelowBooked) ||
		errors.Is(err, ErrCapacityExhausted) ||
		errors.Is(err, ErrTrainHasBookings)
}

// invalidRequest turns a validation failure into ErrInvalidCapacity when the
// seat count is at fault and ErrInvalidArgument otherwise.
func invalidRequest(err error) error {
	var verr *model.ValidationError
	if errors.As(err, &verr) && verr.HasField("total_seats") {
		return fmt.Errorf("%w: %s", ErrInvalidCapacity, verr.Error())
	}
	return fmt.Errorf("%w: %s", ErrInvalidArgument, err.Error())
}

// guardedUpdateError maps the outcome of a guarded seat update onto the
// service taxonomy. Errors it does not recognise, ErrConcurrentUpdate
// included, pass through and stay retryable.
func guardedUpdateError(err error, trainID int64) error {
	switch {
	case errors.Is(err, repository.ErrTrainNotFound):
		return fmt.Errorf("%w: train %d", ErrNotFound, trainID)
	case errors.Is(err, repository.ErrNoSeatsAvailable):
		return fmt.Errorf("%w: train %d", ErrCapacityExhausted, trainID)
	case errors.Is(err, repository.ErrCapacityBelowBooked):
		return fmt.Errorf("%w: train %d", ErrCapacityBelowBooked, trainID)
	}
	return err
}
