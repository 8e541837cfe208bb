package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimasrn/train-reservation/pkg/logger"
	"github.com/valyala/fasthttp"
)

const confirmPath = "/api/v1/confirmations"

var (
	ErrNoAvailableEndpoints = errors.New("no available ticketing endpoints")
	// ErrRejected is returned when the ticketing system refuses a confirmation.
	// Sending it again to another endpoint cannot change the answer.
	ErrRejected = errors.New("confirmation rejected")
)

type ConfirmationStatus string

const (
	StatusConfirmed ConfirmationStatus = "CONFIRMED"
	StatusRejected  ConfirmationStatus = "REJECTED"
)

type ConfirmRequest struct {
	BookingID   int64     `json:"booking_id"`
	TrainID     int64     `json:"train_id"`
	TrainNumber string    `json:"train_number"`
	PrincipalID string    `json:"principal_id"`
	BookedAt    time.Time `json:"booked_at"`
}

type ConfirmResponse struct {
	BookingID   int64              `json:"booking_id"`
	Reference   string             `json:"reference"`
	Status      ConfirmationStatus `json:"status"`
	Reason      string             `json:"reason,omitempty"`
	ConfirmedAt time.Time          `json:"confirmed_at"`
	Endpoint    string             `json:"-"`
}

type EndpointMetrics struct {
	TotalRequests    atomic.Int64
	SuccessfulReqs   atomic.Int64
	FailedReqs       atomic.Int64
	TotalLatencyMs   atomic.Int64
	ConsecutiveFails atomic.Int32

	mu        sync.Mutex
	latencies []int64
	window    int
}

func NewEndpointMetrics() *EndpointMetrics {
	return &EndpointMetrics{window: 100}
}

func (m *EndpointMetrics) RecordSuccess(latencyMs int64) {
	m.TotalRequests.Add(1)
	m.SuccessfulReqs.Add(1)
	m.TotalLatencyMs.Add(latencyMs)
	m.ConsecutiveFails.Store(0)

	m.mu.Lock()
	if len(m.latencies) >= m.window {
		m.latencies = m.latencies[1:]
	}
	m.latencies = append(m.latencies, latencyMs)
	m.mu.Unlock()
}

func (m *EndpointMetrics) RecordFailure() int32 {
	m.TotalRequests.Add(1)
	m.FailedReqs.Add(1)
	return m.ConsecutiveFails.Add(1)
}

func (m *EndpointMetrics) SuccessRate() float64 {
	total := m.TotalRequests.Load()
	if total == 0 {
		return 1.0
	}
	return float64(m.SuccessfulReqs.Load()) / float64(total)
}

func (m *EndpointMetrics) AvgLatencyMs() int64 {
	ok := m.SuccessfulReqs.Load()
	if ok == 0 {
		return 0
	}
	return m.TotalLatencyMs.Load() / ok
}

func (m *EndpointMetrics) P95LatencyMs() int64 {
	m.mu.Lock()
	sorted := append([]int64(nil), m.latencies...)
	m.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type EndpointState int32

const (
	StateHealthy EndpointState = iota
	StateUnhealthy
	StateCircuitOpen
)

func (s EndpointState) String() string {
	switch s {
	case StateHealthy:
		return "HEALTHY"
	case StateUnhealthy:
		return "UNHEALTHY"
	case StateCircuitOpen:
		return "CIRCUIT_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Endpoint is one ticketing base URL with its own breaker state.
type Endpoint struct {
	url              string
	client           *fasthttp.Client
	metrics          *EndpointMetrics
	state            atomic.Int32
	circuitOpenUntil atomic.Int64
}

func NewEndpoint(url string, client *fasthttp.Client) *Endpoint {
	return &Endpoint{
		url:     url,
		client:  client,
		metrics: NewEndpointMetrics(),
	}
}

func (e *Endpoint) URL() string {
	return e.url
}

func (e *Endpoint) State() EndpointState {
	return EndpointState(e.state.Load())
}

func (e *Endpoint) setState(s EndpointState) {
	e.state.Store(int32(s))
}

// Available reports whether requests may be sent. An open circuit becomes
// half open once its timeout passed and lets the next request through.
func (e *Endpoint) Available(now time.Time) bool {
	switch e.State() {
	case StateCircuitOpen:
		if now.UnixNano() >= e.circuitOpenUntil.Load() {
			e.setState(StateHealthy)
			return true
		}
		return false
	case StateUnhealthy:
		return false
	default:
		return true
	}
}

func (e *Endpoint) openCircuit(until time.Time) {
	e.circuitOpenUntil.Store(until.UnixNano())
	e.setState(StateCircuitOpen)
}

type Config struct {
	URLs                    []string
	Timeout                 time.Duration
	MaxConns                int
	HealthCheckInterval     time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

func DefaultConfig(urls []string) *Config {
	return &Config{
		URLs:                    urls,
		Timeout:                 5 * time.Second,
		MaxConns:                256,
		HealthCheckInterval:     15 * time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
	}
}

// Client confirms bookings with the external ticketing system. Endpoints are
// tried in configured order; an endpoint that keeps failing is skipped until
// its circuit closes again.
type Client struct {
	config    *Config
	endpoints []*Endpoint
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if len(config.URLs) == 0 {
		return nil, errors.New("at least one ticketing url is required")
	}
	if config.CircuitBreakerThreshold <= 0 {
		config.CircuitBreakerThreshold = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	c := &Client{
		config: config,
		stopCh: make(chan struct{}),
	}
	for _, u := range config.URLs {
		httpClient := &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
		}
		c.endpoints = append(c.endpoints, NewEndpoint(u, httpClient))
	}

	if config.HealthCheckInterval > 0 {
		c.wg.Add(1)
		go c.healthChecker()
	}

	logger.Info("ticketing client initialized", "endpoints", config.URLs, "timeout", config.Timeout)
	return c, nil
}

// Confirm sends the confirmation to the first endpoint that answers. A
// rejection ends the attempt; transport errors and 5xx answers move on to the
// next endpoint.
func (c *Client) Confirm(ctx context.Context, req *ConfirmRequest) (*ConfirmResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error = ErrNoAvailableEndpoints
	for _, ep := range c.endpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !ep.Available(time.Now()) {
			continue
		}

		start := time.Now()
		status, respBody, err := c.doRequest(ctx, ep, fasthttp.MethodPost, confirmPath, body)
		latency := time.Since(start).Milliseconds()

		if err == nil && status >= 500 {
			err = fmt.Errorf("unexpected status code: %d, body: %s", status, respBody)
		}
		if err != nil {
			c.recordFailure(ep)
			logger.Warn("ticketing endpoint failed", "endpoint", ep.url, "booking_id", req.BookingID, "error", err)
			lastErr = err
			continue
		}
		ep.metrics.RecordSuccess(latency)

		// 409 means the booking was confirmed before and carries the original answer
		if status >= 400 && status != fasthttp.StatusConflict {
			return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, status, respBody)
		}

		var resp ConfirmResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		resp.Endpoint = ep.url

		if resp.Status == StatusRejected {
			return &resp, fmt.Errorf("%w: %s", ErrRejected, resp.Reason)
		}
		logger.Debug("booking confirmed", "booking_id", req.BookingID, "reference", resp.Reference, "endpoint", ep.url, "latency_ms", latency)
		return &resp, nil
	}

	return nil, fmt.Errorf("all ticketing endpoints failed: %w", lastErr)
}

func (c *Client) recordFailure(ep *Endpoint) {
	fails := ep.metrics.RecordFailure()
	if int(fails) >= c.config.CircuitBreakerThreshold && ep.State() != StateCircuitOpen {
		ep.openCircuit(time.Now().Add(c.config.CircuitBreakerTimeout))
		logger.Warn("circuit breaker opened", "endpoint", ep.url, "consecutive_fails", fails, "timeout", c.config.CircuitBreakerTimeout)
	}
}

func (c *Client) doRequest(ctx context.Context, ep *Endpoint, method, path string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(ep.url + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok || time.Until(deadline) > c.config.Timeout {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := ep.client.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return resp.StatusCode(), out, nil
}

func (c *Client) healthChecker() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.performHealthChecks()
		case <-c.stopCh:
			return
		}
	}
}

// performHealthChecks marks endpoints that fail GET /health as unhealthy and
// brings them back once they answer again. Open circuits are left alone.
func (c *Client) performHealthChecks() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	for _, ep := range c.endpoints {
		if ep.State() == StateCircuitOpen {
			continue
		}

		healthy := c.checkHealth(ctx, ep)
		old := ep.State()
		next := StateHealthy
		if !healthy {
			next = StateUnhealthy
		}
		if old != next {
			ep.setState(next)
			logger.Info("ticketing endpoint state changed", "endpoint", ep.url, "old_state", old.String(), "new_state", next.String())
		}
	}
}

func (c *Client) checkHealth(ctx context.Context, ep *Endpoint) bool {
	status, body, err := c.doRequest(ctx, ep, fasthttp.MethodGet, "/health", nil)
	if err != nil || status != fasthttp.StatusOK {
		return false
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		return false
	}
	return health.Status == "healthy"
}

type EndpointStats struct {
	URL              string
	State            string
	TotalRequests    int64
	FailedReqs       int64
	SuccessRate      float64
	AvgLatencyMs     int64
	P95LatencyMs     int64
	ConsecutiveFails int32
}

func (c *Client) Stats() []EndpointStats {
	stats := make([]EndpointStats, 0, len(c.endpoints))
	for _, ep := range c.endpoints {
		stats = append(stats, EndpointStats{
			URL:              ep.url,
			State:            ep.State().String(),
			TotalRequests:    ep.metrics.TotalRequests.Load(),
			FailedReqs:       ep.metrics.FailedReqs.Load(),
			SuccessRate:      ep.metrics.SuccessRate(),
			AvgLatencyMs:     ep.metrics.AvgLatencyMs(),
			P95LatencyMs:     ep.metrics.P95LatencyMs(),
			ConsecutiveFails: ep.metrics.ConsecutiveFails.Load(),
		})
	}
	return stats
}

func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	logger.Info("ticketing client closed")
	return nil
}
