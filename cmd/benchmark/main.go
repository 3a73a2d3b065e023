package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
)

// Metrics
var (
	totalCycles uint64
	settled     uint64 // full create->confirm->complete cycles
	conflict409 uint64 // CAS losers
	ledger422   uint64 // drained payer balances
	failOther   uint64
)

const (
	totalHosts = 100
	totalUsers = 1000
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// worker drives full protocol cycles: the host opens a cash-in, the payer
// confirms it, the host completes it.
func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		hostID, userIdx := pickActors()
		userID := int64(totalHosts + userIdx)
		amount := int64(100)

		atomic.AddUint64(&totalCycles, 1)

		reqID, code := createCashIn(client, hostID, userIdx, amount)
		if reqID == "" {
			classify(code)
			continue
		}
		if code = post(client, fmt.Sprintf("/api/v1/cashins/%s/confirm", reqID), userID, map[string]string{"decision": "confirm"}); code != 200 {
			classify(code)
			continue
		}
		if code = post(client, fmt.Sprintf("/api/v1/cashins/%s/complete", reqID), hostID, nil); code != 200 {
			classify(code)
			continue
		}
		atomic.AddUint64(&settled, 1)
	}
}

func createCashIn(client *http.Client, hostID int64, userIdx int, amount int64) (string, int) {
	payload := map[string]interface{}{
		"user_phone": fmt.Sprintf("+2296100%04d", userIdx),
		"amount":     amount,
	}
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequest("POST", targetURL+"/api/v1/cashins", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-ID", fmt.Sprintf("%d", hostID))

	resp, err := client.Do(req)
	if err != nil {
		return "", 0
	}
	defer resp.Body.Close()
	if resp.StatusCode != 201 {
		return "", resp.StatusCode
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", 0
	}
	return created.ID, resp.StatusCode
}

func post(client *http.Client, path string, callerID int64, payload interface{}) int {
	var buf bytes.Buffer
	if payload != nil {
		json.NewEncoder(&buf).Encode(payload)
	}
	req, _ := http.NewRequest("POST", targetURL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-ID", fmt.Sprintf("%d", callerID))

	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	resp.Body.Close()
	return resp.StatusCode
}

func classify(code int) {
	switch code {
	case 409:
		atomic.AddUint64(&conflict409, 1)
	case 422:
		atomic.AddUint64(&ledger422, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
}

func pickActors() (int64, int) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic drains user 1 through host 1
		if rand.Float32() < 0.90 {
			return 1, 1
		}
	}
	return int64(rand.Intn(totalHosts) + 1), rand.Intn(totalUsers) + 1
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalCycles)
	ok := atomic.LoadUint64(&settled)
	c409 := atomic.LoadUint64(&conflict409)
	l422 := atomic.LoadUint64(&ledger422)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(ok) / d.Seconds()

	results := map[string]interface{}{
		"workload":         workload,
		"duration_sec":     d.Seconds(),
		"total_cycles":     total,
		"settled":          ok,
		"throughput_tps":   tps,
		"conflicts_409":    c409,
		"ledger_fails_422": l422,
		"errors":           fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
