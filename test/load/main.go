package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Seat contention test: one train with SEATS seats, RESERVATIONS concurrent
// reservations from distinct principals. Exactly SEATS of them must succeed.

type LoadTestConfig struct {
	BaseURL           string
	APIKey            string
	Seats             int
	Reservations      int
	ConcurrentWorkers int
}

type train struct {
	ID             int64  `json:"id"`
	Number         string `json:"train_number"`
	Source         string `json:"source"`
	Destination    string `json:"destination"`
	TotalSeats     int    `json:"total_seats"`
	AvailableSeats int    `json:"available_seats"`
}

type Stats struct {
	created       atomic.Int64
	exhausted     atomic.Int64
	unavailable   atomic.Int64
	errorCount    atomic.Int64
	responseTimes []float64
	mu            sync.Mutex
}

func (s *Stats) addResponseTime(duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseTimes = append(s.responseTimes, duration)
}

func (s *Stats) getResponseTimes() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	times := make([]float64, len(s.responseTimes))
	copy(times, s.responseTimes)
	return times
}

func createTrain(client *http.Client, config LoadTestConfig) (*train, error) {
	number := "LT" + strconv.FormatInt(time.Now().UnixNano()%1_000_000_000, 10)
	body, _ := json.Marshal(map[string]any{
		"train_number": number,
		"source":       "Loadtown",
		"destination":  "Stressville",
		"total_seats":  config.Seats,
	})
	req, err := http.NewRequest(http.MethodPost, config.BaseURL+"/admin/trains", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", config.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("create train: %d %s", resp.StatusCode, b)
	}
	var t train
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

func fetchTrain(client *http.Client, config LoadTestConfig, t *train) (*train, error) {
	q := url.Values{"source": {t.Source}, "destination": {t.Destination}}
	resp, err := client.Get(config.BaseURL + "/trains?" + q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var list struct {
		Items []train `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}
	for _, item := range list.Items {
		if item.ID == t.ID {
			return &item, nil
		}
	}
	return nil, fmt.Errorf("train %d not found in route listing", t.ID)
}

func reserve(client *http.Client, config LoadTestConfig, trainID int64, principal string, stats *Stats) {
	body, _ := json.Marshal(map[string]int64{"train_id": trainID})
	req, err := http.NewRequest(http.MethodPost, config.BaseURL+"/bookings", bytes.NewReader(body))
	if err != nil {
		stats.errorCount.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Principal-Id", principal)

	start := time.Now()
	resp, err := client.Do(req)
	stats.addResponseTime(time.Since(start).Seconds())
	if err != nil {
		stats.errorCount.Add(1)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusCreated:
		stats.created.Add(1)
	case http.StatusConflict:
		stats.exhausted.Add(1)
	case http.StatusServiceUnavailable:
		stats.unavailable.Add(1)
	default:
		stats.errorCount.Add(1)
	}
}

func worker(client *http.Client, config LoadTestConfig, trainID int64, stats *Stats, jobs <-chan int, wg *sync.WaitGroup) {
	defer wg.Done()
	for i := range jobs {
		reserve(client, config, trainID, "load-"+strconv.Itoa(i), stats)
	}
}

func calculatePercentile(sorted []float64, percentile float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)) * percentile)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func main() {
	config := LoadTestConfig{
		BaseURL:           strings.TrimRight(getEnvOrDefault("TARGET_URL", "http://localhost:8080/api/v1"), "/"),
		APIKey:            getEnvOrDefault("API_KEY", ""),
		Seats:             getEnvIntOrDefault("SEATS", 100),
		Reservations:      getEnvIntOrDefault("RESERVATIONS", 2000),
		ConcurrentWorkers: getEnvIntOrDefault("CONCURRENT_WORKERS", 200),
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        config.ConcurrentWorkers,
			MaxIdleConnsPerHost: config.ConcurrentWorkers,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 30 * time.Second,
	}

	t, err := createTrain(client, config)
	if err != nil {
		fmt.Println("failed:", err)
		os.Exit(1)
	}

	fmt.Println("Starting seat contention test...")
	fmt.Printf("Target: %s\n", config.BaseURL)
	fmt.Printf("Train: %s (id %d) with %d seats\n", t.Number, t.ID, t.TotalSeats)
	fmt.Printf("Reservations: %d\n", config.Reservations)
	fmt.Printf("Concurrent workers: %d\n", config.ConcurrentWorkers)
	fmt.Println(strings.Repeat("-", 50))

	stats := &Stats{}
	jobs := make(chan int, config.Reservations)
	for i := 0; i < config.Reservations; i++ {
		jobs <- i
	}
	close(jobs)

	startTime := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < config.ConcurrentWorkers; i++ {
		wg.Add(1)
		go worker(client, config, t.ID, stats, jobs, &wg)
	}
	wg.Wait()
	duration := time.Since(startTime).Seconds()

	after, err := fetchTrain(client, config, t)
	if err != nil {
		fmt.Println("failed:", err)
		os.Exit(1)
	}

	times := stats.getResponseTimes()
	sort.Float64s(times)

	created := stats.created.Load()
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("SEAT CONTENTION RESULTS")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Duration: %.2f seconds\n", duration)
	fmt.Printf("Created: %d\n", created)
	fmt.Printf("Capacity exhausted: %d\n", stats.exhausted.Load())
	fmt.Printf("Unavailable: %d\n", stats.unavailable.Load())
	fmt.Printf("Other errors: %d\n", stats.errorCount.Load())
	fmt.Printf("Available seats after: %d\n", after.AvailableSeats)
	fmt.Printf("\nResponse times:\n")
	fmt.Printf("  P50: %.2f ms\n", calculatePercentile(times, 0.50)*1000)
	fmt.Printf("  P95: %.2f ms\n", calculatePercentile(times, 0.95)*1000)
	fmt.Printf("  P99: %.2f ms\n", calculatePercentile(times, 0.99)*1000)

	oversold := created > int64(config.Seats)
	drift := int64(after.TotalSeats-after.AvailableSeats) != created
	if oversold || drift {
		fmt.Printf("\nINVARIANT VIOLATED: oversold=%v inventory_drift=%v\n", oversold, drift)
		os.Exit(2)
	}
	fmt.Println("\nInventory consistent")
}
