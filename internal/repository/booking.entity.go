package repository

import (
	"time"

	"github.com/nimasrn/train-reservation/internal/model"
)

type BookingEntity struct {
	ID          int64        `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	PrincipalID string       `db:"principal_id" gorm:"column:principal_id;not null;index:idx_bookings_principal"`
	TrainID     int64        `db:"train_id"     gorm:"column:train_id;not null;index:idx_bookings_train"`
	Train       *TrainEntity `db:"-"            gorm:"foreignKey:TrainID;references:ID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time    `db:"created_at"   gorm:"column:created_at;not null"`
}

func (BookingEntity) TableName() string {
	return "bookings"
}

func toBookingEntity(m *model.Booking) *BookingEntity {
	if m == nil {
		return nil
	}
	return &BookingEntity{
		ID:          m.ID,
		PrincipalID: m.PrincipalID,
		TrainID:     m.TrainID,
		CreatedAt:   m.CreatedAt,
	}
}

func toBookingModel(e *BookingEntity) *model.Booking {
	if e == nil {
		return nil
	}
	return &model.Booking{
		ID:          e.ID,
		PrincipalID: e.PrincipalID,
		TrainID:     e.TrainID,
		CreatedAt:   e.CreatedAt,
	}
}
