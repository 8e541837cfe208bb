package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Mock ticketing system the processor confirms bookings against.

type ConfirmationStatus string

const (
	StatusConfirmed ConfirmationStatus = "CONFIRMED"
	StatusRejected  ConfirmationStatus = "REJECTED"
)

type ConfirmRequest struct {
	BookingID   int64     `json:"booking_id"   binding:"required,gt=0"`
	TrainID     int64     `json:"train_id"     binding:"required,gt=0"`
	TrainNumber string    `json:"train_number" binding:"required"`
	PrincipalID string    `json:"principal_id" binding:"required"`
	BookedAt    time.Time `json:"booked_at"`
}

type ConfirmResponse struct {
	BookingID   int64              `json:"booking_id"`
	Reference   string             `json:"reference,omitempty"`
	Status      ConfirmationStatus `json:"status"`
	Reason      string             `json:"reason,omitempty"`
	ConfirmedAt time.Time          `json:"confirmed_at"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	SystemID  string    `json:"system_id"`
	Timestamp time.Time `json:"timestamp"`
	Confirmed int       `json:"confirmed"`
}

// MockTicketing confirms bookings after a random delay. A share of requests
// can fail with 503 or be rejected with 422 to exercise the client.
type MockTicketing struct {
	mu          sync.Mutex
	systemID    string
	failureRate float64
	rejectRate  float64
	minDelay    time.Duration
	maxDelay    time.Duration
	rng         *rand.Rand
	confirmed   map[int64]*ConfirmResponse
}

func NewMockTicketing(failureRate, rejectRate float64, minDelay, maxDelay time.Duration) *MockTicketing {
	return &MockTicketing{
		systemID:    "MOCK_TICKETING_" + uuid.New().String()[:8],
		failureRate: failureRate,
		rejectRate:  rejectRate,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		confirmed:   make(map[int64]*ConfirmResponse),
	}
}

func (m *MockTicketing) randomDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	delta := m.maxDelay - m.minDelay
	if delta <= 0 {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

func (m *MockTicketing) roll() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}

// confirm returns the stored confirmation and true when the booking was
// confirmed before.
func (m *MockTicketing) confirm(req *ConfirmRequest) (*ConfirmResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.confirmed[req.BookingID]; ok {
		return prev, true
	}
	res := &ConfirmResponse{
		BookingID:   req.BookingID,
		Reference:   "TKT-" + strings.ToUpper(uuid.New().String()[:12]),
		Status:      StatusConfirmed,
		ConfirmedAt: time.Now().UTC(),
	}
	m.confirmed[req.BookingID] = res
	return res, false
}

func (m *MockTicketing) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.confirmed)
}

type Handler struct {
	ticketing *MockTicketing
}

func NewHandler(ticketing *MockTicketing) *Handler {
	return &Handler{ticketing: ticketing}
}

func (h *Handler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	time.Sleep(h.ticketing.randomDelay())

	if h.ticketing.roll() < h.ticketing.failureRate {
		log.Warn().Int64("booking_id", req.BookingID).Msg("simulated outage")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ticketing temporarily unavailable"})
		return
	}
	if h.ticketing.roll() < h.ticketing.rejectRate {
		log.Warn().Int64("booking_id", req.BookingID).Msg("booking rejected")
		c.JSON(http.StatusUnprocessableEntity, ConfirmResponse{
			BookingID:   req.BookingID,
			Status:      StatusRejected,
			Reason:      "train closed for ticketing",
			ConfirmedAt: time.Now().UTC(),
		})
		return
	}

	res, duplicate := h.ticketing.confirm(&req)
	if duplicate {
		log.Info().Int64("booking_id", req.BookingID).Str("reference", res.Reference).Msg("booking already confirmed")
		c.JSON(http.StatusConflict, res)
		return
	}

	log.Info().
		Int64("booking_id", req.BookingID).
		Str("train_number", req.TrainNumber).
		Str("principal_id", req.PrincipalID).
		Str("reference", res.Reference).
		Msg("booking confirmed")
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		SystemID:  h.ticketing.systemID,
		Timestamp: time.Now(),
		Confirmed: h.ticketing.count(),
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/confirmations", handler.Confirm)
		v1.GET("/health", handler.HealthCheck)
	}
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8081")
	failureRate := getEnvFloat("FAILURE_RATE", 0)
	rejectRate := getEnvFloat("REJECT_RATE", 0)
	minDelay := getEnvDuration("MIN_DELAY", 50*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 250*time.Millisecond)

	log.Info().
		Str("port", port).
		Float64("failure_rate", failureRate).
		Float64("reject_rate", rejectRate).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Msg("Starting mock ticketing system")

	router := SetupRouter(NewHandler(NewMockTicketing(failureRate, rejectRate, minDelay, maxDelay)))

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && f >= 0 && f <= 1 {
		return f
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
