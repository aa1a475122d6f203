// Package main provides a latency benchmarking tool for the offcache CLI.
// It starts a local origin with a fixed response delay and times `offcache fetch`
// against it: without a cache, on the cold run that fills the cache, and on the
// warm runs that are served from it. Results are written as CSV.
//
// Prerequisites:
// - offcache binary installed and available in PATH
//
// Usage: go run benchmark/main.go [runs]
//
//	runs: Number of fetches per phase (default 5)
package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// BenchmarkResult holds the result of a benchmark run (no-cache average, cold run and average of warm runs).
type BenchmarkResult struct {
	Delay       time.Duration
	Strategy    string
	NoCacheTime string
	ColdTime    string
	WarmTime    string
}

// BenchmarkConfig holds configuration for the benchmark run.
type BenchmarkConfig struct {
	Timeout    time.Duration
	Runs       int
	Delays     []time.Duration
	Strategies []string
	Path       string
}

func main() {
	runs := 5
	if len(os.Args) == 2 {
		n, err := strconv.Atoi(os.Args[1])
		if err != nil || n < 2 {
			fmt.Printf("Usage: %s [runs] (runs must be at least 2)\n", os.Args[0])
			os.Exit(1)
		}
		runs = n
	}

	config := BenchmarkConfig{
		Timeout:    time.Minute,
		Runs:       runs,
		Delays:     []time.Duration{0, 50 * time.Millisecond, 250 * time.Millisecond},
		Strategies: []string{"cache-first", "network-first"},
		Path:       "/app.js",
	}

	if _, err := exec.LookPath("offcache"); err != nil {
		fmt.Printf("Prerequisites check failed: offcache binary not found in PATH\n")
		os.Exit(1)
	}

	results := runBenchmarks(config)

	if err := saveResults(results); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		os.Exit(1)
	}

	printSummary(results)
}

// newOrigin starts an origin that answers every path after delay.
func newOrigin(delay time.Duration) *httptest.Server {
	body := make([]byte, 64<<10)
	for i := range body {
		body[i] = byte('a' + i%26)
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(delay)
		w.Header().Set("Content-Type", "text/javascript")
		_, _ = w.Write(body)
	}))
}

// runBenchmarks executes the no-cache and cache phases for every delay and strategy
func runBenchmarks(config BenchmarkConfig) []BenchmarkResult {
	var results []BenchmarkResult

	fmt.Printf("Starting benchmark: %d delays, %d strategies, %d runs per phase\n",
		len(config.Delays), len(config.Strategies), config.Runs)

	for _, delay := range config.Delays {
		origin := newOrigin(delay)
		for _, strategy := range config.Strategies {
			results = append(results, runBenchmarkSuite(config, origin.URL, delay, strategy))
		}
		origin.Close()
	}

	return results
}

// runBenchmarkSuite runs both no-cache and cache benchmarks for one origin and strategy
func runBenchmarkSuite(config BenchmarkConfig, origin string, delay time.Duration, strategy string) BenchmarkResult {
	fmt.Printf("Running %s with %s origin delay\n", strategy, delay)

	dir, err := os.MkdirTemp("", "offcache-benchmark-*")
	if err != nil {
		fmt.Printf("  Failed to create temp dir: %v\n", err)
		return BenchmarkResult{Delay: delay, Strategy: strategy, NoCacheTime: "ERROR", ColdTime: "ERROR", WarmTime: "ERROR"}
	}
	defer func() { _ = os.RemoveAll(dir) }()

	args := []string{
		"fetch", config.Path,
		"--origin", origin,
		"--strategy", strategy,
		"--cache-name", "benchmark-v1",
		"--color", "no",
	}

	// Helper to run a benchmark phase
	runPhase := func(backendArgs []string, phaseName string) (coldTime float64, avgTime string) {
		fmt.Printf("  %s phase (%d runs)\n", phaseName, config.Runs)
		cold, times := runBenchmark(config, append(args, backendArgs...))
		if len(times) == 0 {
			return cold, "TIMEOUT"
		}
		var sum float64
		for _, t := range times {
			sum += t
		}
		return cold, fmt.Sprintf("%.3fs", sum/float64(len(times)))
	}

	// Phase 1: No-cache runs
	_, noCacheAvg := runPhase([]string{"--cache-backend", "none"}, "No-cache")

	// Phase 2: Cache runs
	dbPath := filepath.Join(dir, "cache.db")
	coldTime, warmAvg := runPhase([]string{"--cache-backend", "sqlite", "--cache-db-connect", dbPath}, "Cache")

	coldTimeStr := "TIMEOUT"
	if coldTime > 0 {
		coldTimeStr = fmt.Sprintf("%.3fs", coldTime)
	}

	fmt.Printf("  No-cache average: %s, Cold time: %s, Warm average: %s\n", noCacheAvg, coldTimeStr, warmAvg)

	return BenchmarkResult{
		Delay:       delay,
		Strategy:    strategy,
		NoCacheTime: noCacheAvg,
		ColdTime:    coldTimeStr,
		WarmTime:    warmAvg,
	}
}

// runBenchmark executes an offcache command multiple times and returns cold time and warm times
func runBenchmark(config BenchmarkConfig, args []string) (coldTime float64, warmTimes []float64) {
	var times []float64
	for range config.Runs {
		start := time.Now()

		cmd := exec.Command("offcache", args...)
		cmd.Stdout = io.Discard

		done := make(chan error, 1)
		go func() {
			done <- cmd.Run()
		}()

		select {
		case err := <-done:
			if err == nil {
				times = append(times, time.Since(start).Seconds())
			}
		case <-time.After(config.Timeout):
			// Timeout - don't add to times
			_ = cmd.Process.Kill()
		}
	}

	if len(times) > 0 {
		coldTime = times[0]
		warmTimes = times[1:]
	}
	return
}

// saveResults writes benchmark results to a timestamped CSV file
func saveResults(results []BenchmarkResult) error {
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(os.TempDir(), fmt.Sprintf("offcache_benchmark_%s.csv", timestamp))

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close file %s: %v\n", filename, closeErr)
		}
	}()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	if err := writer.Write([]string{"origin_delay", "strategy", "no_cache_avg", "cold_time", "warm_avg"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	// Write results
	for _, result := range results {
		if err := writer.Write([]string{result.Delay.String(), result.Strategy, result.NoCacheTime, result.ColdTime, result.WarmTime}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	fmt.Printf("Results saved to %s\n", filename)
	return nil
}

// printSummary displays the final benchmark results summary
func printSummary(results []BenchmarkResult) {
	fmt.Printf("Benchmark complete\n")
	for _, strategy := range []string{"cache-first", "network-first"} {
		fmt.Printf("%s:\n", strategy)
		for _, result := range results {
			if result.Strategy == strategy {
				fmt.Printf("  %-8s: No-cache: %s, Cold: %s, Warm: %s\n", result.Delay, result.NoCacheTime, result.ColdTime, result.WarmTime)
			}
		}
	}
}
