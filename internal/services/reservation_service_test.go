package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nimasrn/train-reservation/internal/model"
	"github.com/nimasrn/train-reservation/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReservationService_Reserve(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	train := f.createTrain(t, "12951", "Delhi", "Mumbai", 2)

	booking, err := f.engine.Reserve(ctx, " alice ", train.ID)
	require.NoError(t, err)
	assert.NotZero(t, booking.ID)
	assert.Equal(t, "alice", booking.PrincipalID)
	assert.Equal(t, train.ID, booking.TrainID)
	assert.False(t, booking.CreatedAt.IsZero())
	assert.Equal(t, "UTC", booking.CreatedAt.Location().String())

	got := f.assertInventory(t, train.ID)
	assert.Equal(t, 1, got.AvailableSeats)

	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, booking.ID, events[0].BookingID)
	assert.Equal(t, "12951", events[0].TrainNumber)
	assert.Equal(t, "alice", events[0].PrincipalID)
}

func TestReservationService_Reserve_FailuresChangeNothing(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	full := f.createTrain(t, "full", "A", "B", 1)
	_, err := f.engine.Reserve(ctx, "alice", full.ID)
	require.NoError(t, err)
	before := f.assertInventory(t, full.ID)

	tests := []struct {
		name        string
		principalID string
		trainID     int64
		wantErr     error
	}{
		{"exhausted", "bob", full.ID, ErrCapacityExhausted},
		{"missing train", "bob", full.ID + 100, ErrNotFound},
		{"blank principal", "  ", full.ID, ErrInvalidArgument},
		{"non positive train id", "bob", 0, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			booking, err := f.engine.Reserve(ctx, tt.principalID, tt.trainID)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, booking)

			after := f.assertInventory(t, full.ID)
			assert.Equal(t, before, after)
		})
	}

	assert.Len(t, f.events.Events(), 1)
}

func TestReservationService_Reserve_NoOverselling(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	const (
		seats      = 5
		contenders = 25
	)
	train := f.createTrain(t, "hot", "A", "B", seats)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
		other     []error
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.engine.Reserve(ctx, fmt.Sprintf("user-%d", n), train.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrCapacityExhausted):
				exhausted++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, seats, succeeded)
	assert.Equal(t, contenders-seats, exhausted)

	got := f.assertInventory(t, train.ID)
	assert.Equal(t, 0, got.AvailableSeats)
	assert.Len(t, f.events.Events(), seats)
}

func TestReservationService_LastSeatRace(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	train := f.createTrain(t, "last", "A", "B", 1)

	type result struct {
		principal string
		booking   *model.Booking
		err       error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for _, principal := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			b, err := f.engine.Reserve(ctx, p, train.ID)
			results <- result{principal: p, booking: b, err: err}
		}(principal)
	}
	wg.Wait()
	close(results)

	var winner, loser result
	for r := range results {
		if r.err == nil {
			winner = r
		} else {
			loser = r
		}
	}
	require.NotNil(t, winner.booking)
	assert.ErrorIs(t, loser.err, ErrCapacityExhausted)

	_, err := f.engine.GetBooking(ctx, winner.booking.ID, loser.principal)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := f.engine.GetBooking(ctx, winner.booking.ID, winner.principal)
	require.NoError(t, err)
	assert.Equal(t, winner.booking.ID, got.ID)

	f.assertInventory(t, train.ID)
}

func TestReservationService_DifferentTrainsAreIndependent(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	first := f.createTrain(t, "1", "A", "B", 1)
	second := f.createTrain(t, "2", "A", "B", 1)

	_, err := f.engine.Reserve(ctx, "alice", first.ID)
	require.NoError(t, err)
	_, err = f.engine.Reserve(ctx, "alice", second.ID)
	require.NoError(t, err)

	_, err = f.engine.Reserve(ctx, "bob", first.ID)
	assert.ErrorIs(t, err, ErrCapacityExhausted)
}

func TestReservationService_Reserve_PublishFailureKeepsBooking(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	f.events.err = errors.New("redis down")

	train := f.createTrain(t, "1", "A", "B", 1)

	booking, err := f.engine.Reserve(ctx, "alice", train.ID)
	require.NoError(t, err)
	assert.NotNil(t, booking)
	f.assertInventory(t, train.ID)
}

func TestReservationService_Reserve_RetriesConcurrentUpdate(t *testing.T) {
	trainRepo := new(MockTrainRepository)
	bookingRepo := new(MockBookingRepository)
	svc := NewReservationService(trainRepo, bookingRepo, nil, fastRetry())
	ctx := context.Background()

	train := &model.Train{ID: 7, Number: "7", TotalSeats: 3, AvailableSeats: 1}
	trainRepo.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	trainRepo.On("GetForUpdate", mock.Anything, int64(7)).Return(train, nil)
	trainRepo.On("DecrementAvailableSeats", mock.Anything, int64(7)).Return(repository.ErrConcurrentUpdate).Once()
	trainRepo.On("DecrementAvailableSeats", mock.Anything, int64(7)).Return(nil).Once()
	bookingRepo.On("Create", mock.Anything, mock.MatchedBy(func(b *model.Booking) bool {
		return b.PrincipalID == "alice" && b.TrainID == 7
	})).Return(&model.Booking{ID: 1, PrincipalID: "alice", TrainID: 7}, nil).Once()

	booking, err := svc.Reserve(ctx, "alice", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), booking.ID)
	trainRepo.AssertNumberOfCalls(t, "DecrementAvailableSeats", 2)
	bookingRepo.AssertExpectations(t)
}

func TestReservationService_Reserve_ExhaustedIsNotRetried(t *testing.T) {
	trainRepo := new(MockTrainRepository)
	bookingRepo := new(MockBookingRepository)
	svc := NewReservationService(trainRepo, bookingRepo, nil, fastRetry())
	ctx := context.Background()

	trainRepo.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	trainRepo.On("GetForUpdate", mock.Anything, int64(7)).Return(&model.Train{ID: 7, TotalSeats: 3, AvailableSeats: 0}, nil)

	_, err := svc.Reserve(ctx, "alice", 7)
	assert.ErrorIs(t, err, ErrCapacityExhausted)
	trainRepo.AssertNumberOfCalls(t, "GetForUpdate", 1)
	trainRepo.AssertNotCalled(t, "DecrementAvailableSeats", mock.Anything, mock.Anything)
	bookingRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestReservationService_Reserve_GuardRejectionIsNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		repoErr error
		want    error
	}{
		{name: "seats gone", repoErr: repository.ErrNoSeatsAvailable, want: ErrCapacityExhausted},
		{name: "train gone", repoErr: repository.ErrTrainNotFound, want: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trainRepo := new(MockTrainRepository)
			bookingRepo := new(MockBookingRepository)
			svc := NewReservationService(trainRepo, bookingRepo, nil, fastRetry())

			trainRepo.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
			trainRepo.On("GetForUpdate", mock.Anything, int64(7)).Return(&model.Train{ID: 7, TotalSeats: 3, AvailableSeats: 1}, nil)
			trainRepo.On("DecrementAvailableSeats", mock.Anything, int64(7)).Return(tt.repoErr)

			_, err := svc.Reserve(context.Background(), "alice", 7)
			assert.ErrorIs(t, err, tt.want)
			trainRepo.AssertNumberOfCalls(t, "DecrementAvailableSeats", 1)
			bookingRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestReservationService_Reserve_Unavailable(t *testing.T) {
	trainRepo := new(MockTrainRepository)
	bookingRepo := new(MockBookingRepository)
	svc := NewReservationService(trainRepo, bookingRepo, nil, fastRetry())
	ctx := context.Background()

	trainRepo.On("WithinTransaction", mock.Anything, mock.Anything).Return(nil)
	trainRepo.On("GetForUpdate", mock.Anything, int64(7)).Return(nil, errors.New("lock timeout"))

	_, err := svc.Reserve(ctx, "alice", 7)
	assert.ErrorIs(t, err, ErrUnavailable)
	trainRepo.AssertNumberOfCalls(t, "GetForUpdate", 4)
}

func TestReservationService_Reserve_ContextCanceled(t *testing.T) {
	trainRepo := new(MockTrainRepository)
	svc := NewReservationService(trainRepo, new(MockBookingRepository), nil, fastRetry())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trainRepo.On("WithinTransaction", mock.Anything, mock.Anything).Return(context.Canceled)

	_, err := svc.Reserve(ctx, "alice", 7)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnavailable)
	trainRepo.AssertNumberOfCalls(t, "WithinTransaction", 1)
}

func TestReservationService_GetBooking(t *testing.T) {
	bookingRepo := new(MockBookingRepository)
	svc := NewReservationService(new(MockTrainRepository), bookingRepo, nil, fastRetry())
	ctx := context.Background()

	bookingRepo.On("GetForPrincipal", mock.Anything, int64(1), "alice").Return(&model.Booking{ID: 1, PrincipalID: "alice"}, nil)
	bookingRepo.On("GetForPrincipal", mock.Anything, int64(1), "bob").Return(nil, repository.ErrBookingNotFound)

	got, err := svc.GetBooking(ctx, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.PrincipalID)

	_, err = svc.GetBooking(ctx, 1, "bob")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetBooking(ctx, 1, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestHealthService_Get(t *testing.T) {
	f := newStoreFixture(t)
	assert.NoError(t, NewHealthService(f.db.DB).Get(context.Background()))
}
