package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nimasrn/train-reservation/pkg/logger"
	"github.com/nimasrn/train-reservation/pkg/redis"
)

var (
	ErrAlreadyProcessed  = errors.New("booking already confirmed")
	ErrLockAcquireFailed = errors.New("failed to acquire processing lock")
)

type IdempotencyConfig struct {
	// LockTTL bounds how long a crashed consumer can block a booking.
	LockTTL time.Duration
	// ProcessedTTL is how long a confirmed booking is remembered.
	ProcessedTTL       time.Duration
	LockKeyPrefix      string
	ProcessedKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            30 * time.Second,
		ProcessedTTL:       7 * 24 * time.Hour,
		LockKeyPrefix:      "confirmation:lock:",
		ProcessedKeyPrefix: "confirmation:done:",
	}
}

// IdempotencyService makes sure each booking is confirmed once even when the
// stream delivers its event more than once or to several consumers.
type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(redisAdapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	return &IdempotencyService{
		redis:  redisAdapter,
		config: config,
	}
}

type ProcessingContext struct {
	BookingID    int64
	token        []byte
	lockAcquired bool
}

func (s *IdempotencyService) lockKey(bookingID int64) string {
	return s.config.LockKeyPrefix + strconv.FormatInt(bookingID, 10)
}

func (s *IdempotencyService) processedKey(bookingID int64) string {
	return s.config.ProcessedKeyPrefix + strconv.FormatInt(bookingID, 10)
}

// AcquireProcessingLock returns ErrAlreadyProcessed for a booking that was
// confirmed before and ErrLockAcquireFailed while another consumer holds it.
func (s *IdempotencyService) AcquireProcessingLock(ctx context.Context, bookingID int64) (*ProcessingContext, error) {
	exists, err := s.redis.Exist(ctx, s.processedKey(bookingID))
	if err != nil {
		// the ticketing side also answers duplicates, so a failed check is not fatal
		logger.Warn("failed to check processed marker", "booking_id", bookingID, "error", err)
	} else if exists > 0 {
		return nil, ErrAlreadyProcessed
	}

	token := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	acquired, err := s.redis.SetNX(ctx, s.lockKey(bookingID), token, s.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}
	if !acquired {
		return nil, ErrLockAcquireFailed
	}

	logger.Debug("processing lock acquired", "booking_id", bookingID, "lock_ttl", s.config.LockTTL)
	return &ProcessingContext{
		BookingID:    bookingID,
		token:        token,
		lockAcquired: true,
	}, nil
}

// MarkSuccess stores the ticketing reference as the processed marker and
// releases the lock.
func (s *IdempotencyService) MarkSuccess(ctx context.Context, pc *ProcessingContext, reference string) error {
	if err := s.redis.Set(ctx, s.processedKey(pc.BookingID), []byte(reference), s.config.ProcessedTTL); err != nil {
		return fmt.Errorf("failed to mark as processed: %w", err)
	}
	return s.ReleaseLock(ctx, pc)
}

// ReleaseLock deletes the lock if this context still owns it. A lock that
// expired and was taken by another consumer is left alone.
func (s *IdempotencyService) ReleaseLock(ctx context.Context, pc *ProcessingContext) error {
	if pc == nil || !pc.lockAcquired {
		return nil
	}
	pc.lockAcquired = false

	key := s.lockKey(pc.BookingID)
	current, err := s.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return nil
		}
		return err
	}
	if string(current) != string(pc.token) {
		logger.Warn("processing lock was taken over", "booking_id", pc.BookingID)
		return nil
	}
	return s.redis.Del(ctx, key)
}

// Reference returns the ticketing reference of a confirmed booking.
func (s *IdempotencyService) Reference(ctx context.Context, bookingID int64) (string, bool, error) {
	b, err := s.redis.Get(ctx, s.processedKey(bookingID))
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(b), true, nil
}
