package repository

import (
	"github.com/nimasrn/train-reservation/internal/model"
)

type TrainEntity struct {
	ID             int64  `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	Number         string `db:"train_number"    gorm:"column:train_number;not null;uniqueIndex:uq_trains_train_number"`
	Source         string `db:"source"          gorm:"column:source;not null"`
	Destination    string `db:"destination"     gorm:"column:destination;not null"`
	TotalSeats     int    `db:"total_seats"     gorm:"column:total_seats;not null;check:chk_trains_total_seats,total_seats >= 0"`
	AvailableSeats int    `db:"available_seats" gorm:"column:available_seats;not null;check:chk_trains_available_seats,available_seats >= 0 AND available_seats <= total_seats"`
}

func (TrainEntity) TableName() string {
	return "trains"
}

func toTrainEntity(m *model.Train) *TrainEntity {
	if m == nil {
		return nil
	}
	return &TrainEntity{
		ID:             m.ID,
		Number:         m.Number,
		Source:         m.Source,
		Destination:    m.Destination,
		TotalSeats:     m.TotalSeats,
		AvailableSeats: m.AvailableSeats,
	}
}

func toTrainModel(e *TrainEntity) *model.Train {
	if e == nil {
		return nil
	}
	return &model.Train{
		ID:             e.ID,
		Number:         e.Number,
		Source:         e.Source,
		Destination:    e.Destination,
		TotalSeats:     e.TotalSeats,
		AvailableSeats: e.AvailableSeats,
	}
}

func toTrainModels(entities []*TrainEntity) []*model.Train {
	models := make([]*model.Train, len(entities))
	for i, e := range entities {
		models[i] = toTrainModel(e)
	}
	return models
}
