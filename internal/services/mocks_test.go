package services

import (
	"context"
	"sync"

	"github.com/nimasrn/train-reservation/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockTrainRepository struct {
	mock.Mock
}

func (m *MockTrainRepository) Create(ctx context.Context, t *model.Train) (*model.Train, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Train), args.Error(1)
}

func (m *MockTrainRepository) GetByID(ctx context.Context, id int64) (*model.Train, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Train), args.Error(1)
}

func (m *MockTrainRepository) GetForUpdate(ctx context.Context, id int64) (*model.Train, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	t := *args.Get(0).(*model.Train)
	return &t, args.Error(1)
}

func (m *MockTrainRepository) ListByRoute(ctx context.Context, source, destination string) ([]*model.Train, error) {
	args := m.Called(ctx, source, destination)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Train), args.Error(1)
}

func (m *MockTrainRepository) List(ctx context.Context) ([]*model.Train, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Train), args.Error(1)
}

func (m *MockTrainRepository) DecrementAvailableSeats(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTrainRepository) SetCapacity(ctx context.Context, id int64, newTotal int) error {
	args := m.Called(ctx, id, newTotal)
	return args.Error(0)
}

func (m *MockTrainRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTrainRepository) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Create(ctx context.Context, b *model.Booking) (*model.Booking, error) {
	args := m.Called(ctx, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *MockBookingRepository) GetForPrincipal(ctx context.Context, id int64, principalID string) (*model.Booking, error) {
	args := m.Called(ctx, id, principalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *MockBookingRepository) CountByTrain(ctx context.Context, trainID int64) (int64, error) {
	args := m.Called(ctx, trainID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBookingRepository) DeleteByTrain(ctx context.Context, trainID int64) (int64, error) {
	args := m.Called(ctx, trainID)
	return args.Get(0).(int64), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.BookingCreatedEvent
	err    error
}

func (p *recordingPublisher) PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	if ev, ok := data.(model.BookingCreatedEvent); ok {
		p.events = append(p.events, ev)
	}
	return "1-0", nil
}

func (p *recordingPublisher) Events() []model.BookingCreatedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.BookingCreatedEvent(nil), p.events...)
}
