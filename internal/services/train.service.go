package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nimasrn/train-reservation/internal/model"
	"github.com/nimasrn/train-reservation/internal/repository"
	"github.com/nimasrn/train-reservation/pkg/logger"
	"github.com/nimasrn/train-reservation/pkg/prom"
)

type TrainRepository interface {
	Create(ctx context.Context, t *model.Train) (*model.Train, error)
	GetByID(ctx context.Context, id int64) (*model.Train, error)
	GetForUpdate(ctx context.Context, id int64) (*model.Train, error)
	ListByRoute(ctx context.Context, source, destination string) ([]*model.Train, error)
	List(ctx context.Context) ([]*model.Train, error)
	DecrementAvailableSeats(ctx context.Context, id int64) error
	SetCapacity(ctx context.Context, id int64, newTotal int) error
	Delete(ctx context.Context, id int64) error
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type BookingRepository interface {
	Create(ctx context.Context, b *model.Booking) (*model.Booking, error)
	GetForPrincipal(ctx context.Context, id int64, principalID string) (*model.Booking, error)
	CountByTrain(ctx context.Context, trainID int64) (int64, error)
	DeleteByTrain(ctx context.Context, trainID int64) (int64, error)
}

// TrainService is the train registry. It is the only writer of total_seats
// and the only path besides reservations that changes available_seats.
type TrainService struct {
	trainRepo   TrainRepository
	bookingRepo BookingRepository
	retry       RetryPolicy
}

func NewTrainService(trainRepo TrainRepository, bookingRepo BookingRepository, retry RetryPolicy) *TrainService {
	return &TrainService{
		trainRepo:   trainRepo,
		bookingRepo: bookingRepo,
		retry:       retry,
	}
}

func (s *TrainService) Create(ctx context.Context, p model.TrainCreateRequest) (*model.Train, error) {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, invalidRequest(err)
	}

	created, err := s.trainRepo.Create(ctx, &model.Train{
		Number:      p.Number,
		Source:      p.Source,
		Destination: p.Destination,
		TotalSeats:  p.TotalSeats,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateTrainNumber) {
			return nil, fmt.Errorf("%w: train number %q", ErrDuplicateKey, p.Number)
		}
		return nil, fmt.Errorf("create train: %w", err)
	}

	logger.Info("train created", "train_id", created.ID, "train_number", created.Number, "total_seats", created.TotalSeats)
	return created, nil
}

// Query returns the trains running from source to destination, compared
// case-insensitively. No match yields an empty slice.
func (s *TrainService) Query(ctx context.Context, source, destination string) ([]*model.Train, error) {
	q := model.RouteQuery{
		Source:      strings.TrimSpace(source),
		Destination: strings.TrimSpace(destination),
	}
	if err := q.Validate(); err != nil {
		return nil, invalidRequest(err)
	}

	trains, err := s.trainRepo.ListByRoute(ctx, q.Source, q.Destination)
	if err != nil {
		return nil, fmt.Errorf("query trains: %w", err)
	}
	return trains, nil
}

func (s *TrainService) List(ctx context.Context) ([]*model.Train, error) {
	trains, err := s.trainRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list trains: %w", err)
	}
	return trains, nil
}

func (s *TrainService) Get(ctx context.Context, id int64) (*model.Train, error) {
	train, err := s.trainRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTrainNotFound) {
			return nil, fmt.Errorf("%w: train %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get train: %w", err)
	}
	return train, nil
}

// UpdateCapacity resizes a train while keeping the booked seat count. The
// train row stays locked from the read of the booked count to the update.
func (s *TrainService) UpdateCapacity(ctx context.Context, id int64, newTotal int) (*model.Train, error) {
	if newTotal < 0 {
		prom.IncCapacityUpdate("invalid")
		return nil, fmt.Errorf("%w: total_seats must be at least 0", ErrInvalidCapacity)
	}

	defer prom.TrackInFlight("update_capacity")()

	var updated *model.Train
	err := s.retry.run(ctx, "update_capacity", nil, func(ctx context.Context) error {
		return s.trainRepo.WithinTransaction(ctx, func(ctx context.Context) error {
			train, err := s.trainRepo.GetForUpdate(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrTrainNotFound) {
					return fmt.Errorf("%w: train %d", ErrNotFound, id)
				}
				return err
			}

			booked := train.BookedSeats()
			if newTotal < booked {
				return fmt.Errorf("%w: %d seats booked, requested %d", ErrCapacityBelowBooked, booked, newTotal)
			}

			if err := s.trainRepo.SetCapacity(ctx, id, newTotal); err != nil {
				return guardedUpdateError(err, id)
			}

			train.TotalSeats = newTotal
			train.AvailableSeats = newTotal - booked
			updated = train
			return nil
		})
	})
	if err != nil {
		prom.IncCapacityUpdate(outcomeOf(err))
		return nil, err
	}

	prom.IncCapacityUpdate(outcomeSuccess)
	logger.Info("train capacity updated", "train_id", id, "total_seats", updated.TotalSeats, "available_seats", updated.AvailableSeats)
	return updated, nil
}

// Delete removes a train. While bookings exist it is refused unless cascade
// is set, in which case the bookings are removed in the same transaction.
func (s *TrainService) Delete(ctx context.Context, id int64, cascade bool) error {
	var removed int64
	err := s.retry.run(ctx, "delete_train", nil, func(ctx context.Context) error {
		return s.trainRepo.WithinTransaction(ctx, func(ctx context.Context) error {
			if _, err := s.trainRepo.GetForUpdate(ctx, id); err != nil {
				if errors.Is(err, repository.ErrTrainNotFound) {
					return fmt.Errorf("%w: train %d", ErrNotFound, id)
				}
				return err
			}

			count, err := s.bookingRepo.CountByTrain(ctx, id)
			if err != nil {
				return err
			}
			if count > 0 && !cascade {
				return fmt.Errorf("%w: %d bookings on train %d", ErrTrainHasBookings, count, id)
			}

			removed = 0
			if count > 0 {
				if removed, err = s.bookingRepo.DeleteByTrain(ctx, id); err != nil {
					return err
				}
			}

			if err := s.trainRepo.Delete(ctx, id); err != nil {
				if errors.Is(err, repository.ErrTrainNotFound) {
					return fmt.Errorf("%w: train %d", ErrNotFound, id)
				}
				return err
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	if removed > 0 {
		logger.Warn("train deleted with its bookings", "train_id", id, "bookings_removed", removed)
	} else {
		logger.Info("train deleted", "train_id", id)
	}
	return nil
}
