package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/nimasrn/train-reservation/internal/model"
	"github.com/nimasrn/train-reservation/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTrainNotFound        = errors.New("train not found")
	ErrDuplicateTrainNumber = errors.New("train number already exists")
	ErrNoSeatsAvailable     = errors.New("no seats available")
	ErrCapacityBelowBooked  = errors.New("capacity below booked seats")
	ErrConcurrentUpdate     = errors.New("concurrent update detected")
)

type TrainRepository struct {
	*pg.DB
}

func NewTrainRepository(db *pg.DB) *TrainRepository {
	return &TrainRepository{
		db,
	}
}

// Create inserts a train with every seat available.
func (r *TrainRepository) Create(ctx context.Context, t *model.Train) (*model.Train, error) {
	entity := toTrainEntity(t)
	entity.ID = 0
	entity.AvailableSeats = entity.TotalSeats

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateTrainNumber
		}
		return nil, err
	}

	return toTrainModel(entity), nil
}

func (r *TrainRepository) GetByID(ctx context.Context, id int64) (*model.Train, error) {
	var entity TrainEntity
	err := r.Read(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrainNotFound
		}
		return nil, err
	}
	return toTrainModel(&entity), nil
}

// GetForUpdate reads the train under an exclusive row lock held until the
// surrounding transaction ends. It must run inside WithinTransaction.
func (r *TrainRepository) GetForUpdate(ctx context.Context, id int64) (*model.Train, error) {
	var entity TrainEntity
	err := r.Write(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrainNotFound
		}
		return nil, err
	}
	return toTrainModel(&entity), nil
}

// ListByRoute matches source and destination case-insensitively and exactly.
func (r *TrainRepository) ListByRoute(ctx context.Context, source, destination string) ([]*model.Train, error) {
	var entities []*TrainEntity
	err := r.Read(ctx).
		Where("LOWER(source) = ? AND LOWER(destination) = ?", strings.ToLower(source), strings.ToLower(destination)).
		Order("id ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toTrainModels(entities), nil
}

func (r *TrainRepository) List(ctx context.Context) ([]*model.Train, error) {
	var entities []*TrainEntity
	if err := r.Read(ctx).Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toTrainModels(entities), nil
}

// DecrementAvailableSeats takes one seat. The update is guarded so it can
// never drive available_seats below zero. When the guard rejects it the row
// is read again: ErrTrainNotFound, ErrNoSeatsAvailable, or ErrConcurrentUpdate
// when neither explains it.
func (r *TrainRepository) DecrementAvailableSeats(ctx context.Context, id int64) error {
	result := r.Write(ctx).
		Model(&TrainEntity{}).
		Where("id = ? AND available_seats > 0", id).
		Update("available_seats", gorm.Expr("available_seats - 1"))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.guardFailure(ctx, id, func(e *TrainEntity) error {
			if e.AvailableSeats <= 0 {
				return ErrNoSeatsAvailable
			}
			return nil
		})
	}
	return nil
}

// SetCapacity sets total_seats and recomputes available_seats so the number
// of booked seats is preserved. The update only applies while the booked
// count still fits in newTotal; otherwise ErrCapacityBelowBooked.
func (r *TrainRepository) SetCapacity(ctx context.Context, id int64, newTotal int) error {
	result := r.Write(ctx).
		Model(&TrainEntity{}).
		Where("id = ? AND (total_seats - available_seats) <= ?", id, newTotal).
		Updates(map[string]any{
			"available_seats": gorm.Expr("? - (total_seats - available_seats)", newTotal),
			"total_seats":     newTotal,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.guardFailure(ctx, id, func(e *TrainEntity) error {
			if e.TotalSeats-e.AvailableSeats > newTotal {
				return ErrCapacityBelowBooked
			}
			return nil
		})
	}
	return nil
}

// guardFailure explains a guarded update that matched no row. check returns
// the business error for the current row state, or nil when the row would
// have passed the guard.
func (r *TrainRepository) guardFailure(ctx context.Context, id int64, check func(*TrainEntity) error) error {
	var entity TrainEntity
	if err := r.Write(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTrainNotFound
		}
		return err
	}
	if err := check(&entity); err != nil {
		return err
	}
	return ErrConcurrentUpdate
}

func (r *TrainRepository) Delete(ctx context.Context, id int64) error {
	result := r.Write(ctx).
		Where("id = ?", id).
		Delete(&TrainEntity{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTrainNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
