package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nimasrn/train-reservation/internal/model"
	"github.com/nimasrn/train-reservation/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Microsecond}
}

type storeFixture struct {
	db       *repository.TestDB
	trains   *repository.TrainRepository
	bookings *repository.BookingRepository
	registry *TrainService
	engine   *ReservationService
	events   *recordingPublisher
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	db := repository.SetupTestDB(t)
	trains := repository.NewTrainRepository(db.DB)
	bookings := repository.NewBookingRepository(db.DB)
	events := &recordingPublisher{}
	return &storeFixture{
		db:       db,
		trains:   trains,
		bookings: bookings,
		registry: NewTrainService(trains, bookings, fastRetry()),
		engine:   NewReservationService(trains, bookings, events, fastRetry()),
		events:   events,
	}
}

func (f *storeFixture) createTrain(t *testing.T, number, source, destination string, seats int) *model.Train {
	t.Helper()
	train, err := f.registry.Create(context.Background(), model.TrainCreateRequest{
		Number:      number,
		Source:      source,
		Destination: destination,
		TotalSeats:  seats,
	})
	require.NoError(t, err)
	return train
}

// assertInventory checks 0 <= available <= total and that the booked count
// matches the stored bookings.
func (f *storeFixture) assertInventory(t *testing.T, trainID int64) *model.Train {
	t.Helper()
	ctx := context.Background()
	train, err := f.trains.GetByID(ctx, trainID)
	require.NoError(t, err)
	count, err := f.bookings.CountByTrain(ctx, trainID)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, train.AvailableSeats, 0)
	assert.LessOrEqual(t, train.AvailableSeats, train.TotalSeats)
	assert.Equal(t, int64(train.BookedSeats()), count)
	return train
}

func TestTrainService_Create(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		train, err := f.registry.Create(ctx, model.TrainCreateRequest{
			Number:      " 12951 ",
			Source:      "Delhi",
			Destination: "Mumbai",
			TotalSeats:  100,
		})
		require.NoError(t, err)
		assert.Equal(t, "12951", train.Number)
		assert.Equal(t, 100, train.TotalSeats)
		assert.Equal(t, 100, train.AvailableSeats)
	})

	t.Run("duplicate number", func(t *testing.T) {
		_, err := f.registry.Create(ctx, model.TrainCreateRequest{
			Number: "12951", Source: "Pune", Destination: "Goa", TotalSeats: 5,
		})
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("negative capacity", func(t *testing.T) {
		_, err := f.registry.Create(ctx, model.TrainCreateRequest{
			Number: "N-1", Source: "Pune", Destination: "Goa", TotalSeats: -1,
		})
		assert.ErrorIs(t, err, ErrInvalidCapacity)
	})

	t.Run("blank route", func(t *testing.T) {
		_, err := f.registry.Create(ctx, model.TrainCreateRequest{
			Number: "N-2", Source: "   ", Destination: "Goa", TotalSeats: 1,
		})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	trains, err := f.registry.List(ctx)
	require.NoError(t, err)
	assert.Len(t, trains, 1)
}

func TestTrainService_Query(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	delhi := f.createTrain(t, "12951", "Delhi", "Mumbai", 10)
	f.createTrain(t, "12952", "Mumbai", "Delhi", 10)

	t.Run("case insensitive", func(t *testing.T) {
		trains, err := f.registry.Query(ctx, "delhi", "MUMBAI")
		require.NoError(t, err)
		require.Len(t, trains, 1)
		assert.Equal(t, delhi.ID, trains[0].ID)
	})

	t.Run("no match is empty", func(t *testing.T) {
		trains, err := f.registry.Query(ctx, "Delhi", "Chennai")
		require.NoError(t, err)
		assert.NotNil(t, trains)
		assert.Empty(t, trains)
	})

	t.Run("missing destination", func(t *testing.T) {
		_, err := f.registry.Query(ctx, "Delhi", "")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := f.registry.Query(ctx, " ", "Mumbai")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestTrainService_Get(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	train := f.createTrain(t, "1", "A", "B", 3)

	got, err := f.registry.Get(ctx, train.ID)
	require.NoError(t, err)
	assert.Equal(t, train, got)

	_, err = f.registry.Get(ctx, train.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTrainService_UpdateCapacity(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	train := f.createTrain(t, "12951", "Delhi", "Mumbai", 10)
	for i := 0; i < 7; i++ {
		_, err := f.engine.Reserve(ctx, "user", train.ID)
		require.NoError(t, err)
	}

	t.Run("shrink below booked is rejected", func(t *testing.T) {
		_, err := f.registry.UpdateCapacity(ctx, train.ID, 5)
		assert.ErrorIs(t, err, ErrCapacityBelowBooked)

		got := f.assertInventory(t, train.ID)
		assert.Equal(t, 10, got.TotalSeats)
		assert.Equal(t, 3, got.AvailableSeats)
	})

	t.Run("shrink to booked", func(t *testing.T) {
		updated, err := f.registry.UpdateCapacity(ctx, train.ID, 7)
		require.NoError(t, err)
		assert.Equal(t, 7, updated.TotalSeats)
		assert.Equal(t, 0, updated.AvailableSeats)

		got := f.assertInventory(t, train.ID)
		assert.Equal(t, updated, got)
	})

	t.Run("grow", func(t *testing.T) {
		updated, err := f.registry.UpdateCapacity(ctx, train.ID, 12)
		require.NoError(t, err)
		assert.Equal(t, 5, updated.AvailableSeats)
		f.assertInventory(t, train.ID)
	})

	t.Run("negative", func(t *testing.T) {
		_, err := f.registry.UpdateCapacity(ctx, train.ID, -3)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
	})

	t.Run("missing train", func(t *testing.T) {
		_, err := f.registry.UpdateCapacity(ctx, 999, 3)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTrainService_UpdateCapacity_ConcurrentWithReservations(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	train := f.createTrain(t, "1", "A", "B", 5)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.engine.Reserve(ctx, "user", train.ID)
		}()
		go func(n int) {
			defer wg.Done()
			_, _ = f.registry.UpdateCapacity(ctx, train.ID, 5+n)
		}(i)
	}
	wg.Wait()

	f.assertInventory(t, train.ID)
}

func TestTrainService_Delete(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	t.Run("empty train", func(t *testing.T) {
		train := f.createTrain(t, "empty", "A", "B", 2)
		require.NoError(t, f.registry.Delete(ctx, train.ID, false))
		_, err := f.registry.Get(ctx, train.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("refused while booked", func(t *testing.T) {
		train := f.createTrain(t, "booked", "A", "B", 2)
		_, err := f.engine.Reserve(ctx, "alice", train.ID)
		require.NoError(t, err)

		err = f.registry.Delete(ctx, train.ID, false)
		assert.ErrorIs(t, err, ErrTrainHasBookings)
		f.assertInventory(t, train.ID)
	})

	t.Run("cascade removes bookings", func(t *testing.T) {
		train := f.createTrain(t, "cascade", "A", "B", 2)
		booking, err := f.engine.Reserve(ctx, "alice", train.ID)
		require.NoError(t, err)

		require.NoError(t, f.registry.Delete(ctx, train.ID, true))

		_, err = f.registry.Get(ctx, train.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = f.engine.GetBooking(ctx, booking.ID, "alice")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing", func(t *testing.T) {
		assert.ErrorIs(t, f.registry.Delete(ctx, 999, false), ErrNotFound)
		assert.ErrorIs(t, f.registry.Delete(ctx, 999, true), ErrNotFound)
	})
}

func TestTrainService_UpdateCapacity_RetriesTransientFailures(t *testing.T) {
	trainRepo := new(MockTrainRepository)
	bookingRepo := new(MockBookingRepository)
	svc := NewTrainService(trainRepo, bookingRepo, fastRetry())
	ctx := context.Background()

	train := &model.Train{ID: 1, Number: "1", TotalSeats: 10, AvailableSeats: 4}
	trainRepo.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	trainRepo.On("GetForUpdate", mock.Anything, int64(1)).Return(train, nil)
	trainRepo.On("SetCapacity", mock.Anything, int64(1), 8).Return(repository.ErrConcurrentUpdate).Twice()
	trainRepo.On("SetCapacity", mock.Anything, int64(1), 8).Return(nil).Once()

	updated, err := svc.UpdateCapacity(ctx, 1, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, updated.TotalSeats)
	assert.Equal(t, 2, updated.AvailableSeats)
	trainRepo.AssertNumberOfCalls(t, "SetCapacity", 3)
}

func TestTrainService_UpdateCapacity_GuardRejectionIsNotRetried(t *testing.T) {
	trainRepo := new(MockTrainRepository)
	bookingRepo := new(MockBookingRepository)
	svc := NewTrainService(trainRepo, bookingRepo, fastRetry())
	ctx := context.Background()

	// the locked read saw room; a booking landed before the guarded update
	train := &model.Train{ID: 1, Number: "1", TotalSeats: 10, AvailableSeats: 4}
	trainRepo.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	trainRepo.On("GetForUpdate", mock.Anything, int64(1)).Return(train, nil)
	trainRepo.On("SetCapacity", mock.Anything, int64(1), 6).Return(repository.ErrCapacityBelowBooked)

	_, err := svc.UpdateCapacity(ctx, 1, 6)
	assert.ErrorIs(t, err, ErrCapacityBelowBooked)
	trainRepo.AssertNumberOfCalls(t, "SetCapacity", 1)
}

func TestTrainService_UpdateCapacity_Unavailable(t *testing.T) {
	trainRepo := new(MockTrainRepository)
	bookingRepo := new(MockBookingRepository)
	svc := NewTrainService(trainRepo, bookingRepo, fastRetry())
	ctx := context.Background()

	trainRepo.On("WithinTransaction", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	_, err := svc.UpdateCapacity(ctx, 1, 8)
	assert.ErrorIs(t, err, ErrUnavailable)
	trainRepo.AssertNumberOfCalls(t, "WithinTransaction", 4)
}

func TestTrainService_Create_RepositoryError(t *testing.T) {
	trainRepo := new(MockTrainRepository)
	svc := NewTrainService(trainRepo, new(MockBookingRepository), fastRetry())
	ctx := context.Background()

	boom := errors.New("boom")
	trainRepo.On("Create", mock.Anything, mock.Anything).Return(nil, boom)

	_, err := svc.Create(ctx, model.TrainCreateRequest{Number: "1", Source: "A", Destination: "B", TotalSeats: 1})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrDuplicateKey)
}
