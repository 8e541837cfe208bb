package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nimasrn/train-reservation/internal/model"
	"github.com/nimasrn/train-reservation/internal/repository"
	"github.com/nimasrn/train-reservation/pkg/logger"
	"github.com/nimasrn/train-reservation/pkg/prom"
)

const (
	outcomeSuccess     = "success"
	outcomeExhausted   = "exhausted"
	outcomeNotFound    = "not_found"
	outcomeInvalid     = "invalid"
	outcomeConflict    = "conflict"
	outcomeUnavailable = "unavailable"
	outcomeCanceled    = "canceled"
	outcomeError       = "error"
)

// EventPublisher receives booking events once their transaction has committed.
type EventPublisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// ReservationService turns a request for a seat into either a booking and a
// decremented counter, or an error with nothing changed.
type ReservationService struct {
	trainRepo   TrainRepository
	bookingRepo BookingRepository
	publisher   EventPublisher
	retry       RetryPolicy
	now         func() time.Time
}

func NewReservationService(trainRepo TrainRepository, bookingRepo BookingRepository, publisher EventPublisher, retry RetryPolicy) *ReservationService {
	return &ReservationService{
		trainRepo:   trainRepo,
		bookingRepo: bookingRepo,
		publisher:   publisher,
		retry:       retry,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Reserve books one seat on trainID for principalID. Locking the train row,
// checking the counter, decrementing it and inserting the booking happen in
// one transaction, so concurrent callers on the same train are serialized and
// a failure leaves no trace. Running out of seats is final and never retried.
func (s *ReservationService) Reserve(ctx context.Context, principalID string, trainID int64) (*model.Booking, error) {
	start := time.Now()

	req := model.ReserveRequest{
		PrincipalID: strings.TrimSpace(principalID),
		TrainID:     trainID,
	}
	if err := req.Validate(); err != nil {
		err = invalidRequest(err)
		prom.ObserveReservation(outcomeInvalid, time.Since(start).Seconds())
		return nil, err
	}

	defer prom.TrackInFlight("reserve")()

	var (
		booking *model.Booking
		train   *model.Train
	)
	err := s.retry.run(ctx, "reserve", prom.IncReservationRetry, func(ctx context.Context) error {
		return s.trainRepo.WithinTransaction(ctx, func(ctx context.Context) error {
			locked, err := s.trainRepo.GetForUpdate(ctx, req.TrainID)
			if err != nil {
				if errors.Is(err, repository.ErrTrainNotFound) {
					return fmt.Errorf("%w: train %d", ErrNotFound, req.TrainID)
				}
				return err
			}

			if locked.AvailableSeats <= 0 {
				return fmt.Errorf("%w: train %d", ErrCapacityExhausted, req.TrainID)
			}

			if err := s.trainRepo.DecrementAvailableSeats(ctx, req.TrainID); err != nil {
				return guardedUpdateError(err, req.TrainID)
			}

			created, err := s.bookingRepo.Create(ctx, &model.Booking{
				PrincipalID: req.PrincipalID,
				TrainID:     req.TrainID,
				CreatedAt:   s.now(),
			})
			if err != nil {
				return fmt.Errorf("create booking: %w", err)
			}

			locked.AvailableSeats--
			train = locked
			booking = created
			return nil
		})
	})
	if err != nil {
		prom.ObserveReservation(outcomeOf(err), time.Since(start).Seconds())
		if errors.Is(err, ErrCapacityExhausted) {
			logger.Debug("reservation rejected", "train_id", req.TrainID, "principal_id", req.PrincipalID, "error", err)
		}
		return nil, err
	}

	prom.ObserveReservation(outcomeSuccess, time.Since(start).Seconds())
	logger.Info("seat reserved", "booking_id", booking.ID, "train_id", booking.TrainID, "principal_id", booking.PrincipalID, "available_seats", train.AvailableSeats)

	s.publishCreated(ctx, booking, train)
	return booking, nil
}

// publishCreated emits the booking event. The booking is already durable, so
// a publish failure is logged and not returned to the caller.
func (s *ReservationService) publishCreated(ctx context.Context, booking *model.Booking, train *model.Train) {
	if s.publisher == nil {
		return
	}

	event := model.BookingCreatedEvent{
		BookingID:   booking.ID,
		TrainID:     booking.TrainID,
		TrainNumber: train.Number,
		PrincipalID: booking.PrincipalID,
		CreatedAt:   booking.CreatedAt,
	}
	meta := map[string]string{
		"booking_id": strconv.FormatInt(booking.ID, 10),
		"train_id":   strconv.FormatInt(booking.TrainID, 10),
	}
	if _, err := s.publisher.PublishJSON(ctx, event, meta); err != nil {
		logger.Error("failed to publish booking event", "booking_id", booking.ID, "error", err)
	}
}

// GetBooking returns the booking only to the principal that owns it.
func (s *ReservationService) GetBooking(ctx context.Context, bookingID int64, principalID string) (*model.Booking, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, fmt.Errorf("%w: principal_id is required", ErrInvalidArgument)
	}

	booking, err := s.bookingRepo.GetForPrincipal(ctx, bookingID, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return nil, fmt.Errorf("%w: booking %d", ErrNotFound, bookingID)
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return booking, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrCapacityExhausted):
		return outcomeExhausted
	case errors.Is(err, ErrNotFound):
		return outcomeNotFound
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidCapacity):
		return outcomeInvalid
	case errors.Is(err, ErrCapacityBelowBooked), errors.Is(err, ErrTrainHasBookings):
		return outcomeConflict
	case errors.Is(err, ErrUnavailable):
		return outcomeUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled
	default:
		return outcomeError
	}
}
