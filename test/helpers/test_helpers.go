package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gateway "github.com/nimasrn/train-reservation/internal/gateways"
	"github.com/nimasrn/train-reservation/internal/queue"
	"github.com/nimasrn/train-reservation/internal/repository"
	"github.com/nimasrn/train-reservation/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	t.Helper()
	mr := miniredis.RunT(t)

	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func TestQueueConfig(name string) queue.QueueConfig {
	return queue.QueueConfig{
		Name:              name,
		ConsumerGroup:     "confirmations",
		ConsumerName:      "e2e",
		MaxRetries:        3,
		VisibilityTimeout: 300 * time.Millisecond,
		PollInterval:      20 * time.Millisecond,
		BatchSize:         10,
		MaxLen:            1000,
		EnableDLQ:         true,
	}
}

func CountBookings(t *testing.T, db *repository.TestDB, trainID int64) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Raw.WithContext(context.Background()).
		Model(&repository.BookingEntity{}).
		Where("train_id = ?", trainID).
		Count(&count).Error)
	return count
}

// TicketingServer is an in-process ticketing system that records every
// confirmation it accepted.
type TicketingServer struct {
	*httptest.Server
	mu        sync.Mutex
	confirmed map[int64]gateway.ConfirmRequest
	failNext  int
}

func NewTicketingServer(t *testing.T) *TicketingServer {
	t.Helper()
	ts := &TicketingServer{confirmed: make(map[int64]gateway.ConfirmRequest)}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(ts.Close)
	return ts
}

// FailNext makes the next n confirmations answer 503.
func (ts *TicketingServer) FailNext(n int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.failNext = n
}

func (ts *TicketingServer) Confirmed() map[int64]gateway.ConfirmRequest {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make(map[int64]gateway.ConfirmRequest, len(ts.confirmed))
	for k, v := range ts.confirmed {
		out[k] = v
	}
	return out
}

func (ts *TicketingServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
		return
	}

	var req gateway.ConfirmRequest
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil || json.Unmarshal(buf.Bytes(), &req) != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ts.mu.Lock()
	if ts.failNext > 0 {
		ts.failNext--
		ts.mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	_, dup := ts.confirmed[req.BookingID]
	ts.confirmed[req.BookingID] = req
	ts.mu.Unlock()

	status := http.StatusCreated
	if dup {
		status = http.StatusConflict
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(gateway.ConfirmResponse{
		BookingID:   req.BookingID,
		Reference:   "TKT-" + req.TrainNumber,
		Status:      gateway.StatusConfirmed,
		ConfirmedAt: time.Now().UTC(),
	})
}
