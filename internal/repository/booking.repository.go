package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/train-reservation/internal/model"
	"github.com/nimasrn/train-reservation/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
)

type BookingRepository struct {
	*pg.DB
}

func NewBookingRepository(db *pg.DB) *BookingRepository {
	return &BookingRepository{
		db,
	}
}

func (r *BookingRepository) Create(ctx context.Context, b *model.Booking) (*model.Booking, error) {
	entity := toBookingEntity(b)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toBookingModel(entity), nil
}

// GetForPrincipal returns the booking only when it belongs to principalID.
// A booking owned by someone else is reported exactly like a missing one.
func (r *BookingRepository) GetForPrincipal(ctx context.Context, id int64, principalID string) (*model.Booking, error) {
	var entity BookingEntity
	err := r.Read(ctx).
		Where("id = ? AND principal_id = ?", id, principalID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return toBookingModel(&entity), nil
}

func (r *BookingRepository) CountByTrain(ctx context.Context, trainID int64) (int64, error) {
	var count int64
	err := r.Read(ctx).
		Model(&BookingEntity{}).
		Where("train_id = ?", trainID).
		Count(&count).
		Error
	return count, err
}

func (r *BookingRepository) DeleteByTrain(ctx context.Context, trainID int64) (int64, error) {
	result := r.Write(ctx).
		Where("train_id = ?", trainID).
		Delete(&BookingEntity{})
	return result.RowsAffected, result.Error
}
