// Command loadtest drives concurrent positions lookups against a running
// searcher and prints a latency report.
//
// Usage:
//
//	go run ./cmd/loadtest -doc <document id> [-words set,sun,moon] [-concurrency 10] [-duration 30s]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// Config holds the command-line options.
type Config struct {
	BaseURL     string
	DocumentID  string
	Concurrency int
	Duration    time.Duration
	Words       []string
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	docID := flag.String("doc", "", "document to query (required)")
	words := flag.String("words", "the,of,and,to,in,is,was,it,for,on,unseen", "comma separated words to look up")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	flag.Parse()

	if *docID == "" {
		fmt.Fprintln(os.Stderr, "-doc is required")
		os.Exit(2)
	}

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		DocumentID:  *docID,
		Concurrency: *concurrency,
		Duration:    *duration,
		Words:       strings.Split(*words, ","),
	}

	fmt.Println("=== Word Positions Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Document:    %s\n", cfg.DocumentID)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Words:       %d unique\n", len(cfg.Words))
	fmt.Println()

	start := time.Now()
	stats := run(cfg)
	summary := stats.Summarize(time.Since(start))
	printReport(summary)
	if summary.Total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func run(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := range cfg.Concurrency {
		wg.Go(func() {
			for i := w; ctx.Err() == nil; i++ {
				word := cfg.Words[i%len(cfg.Words)]
				start := time.Now()
				status, hit, err := lookup(ctx, client, positionsURL(cfg, word))
				if ctx.Err() != nil {
					return
				}
				stats.Record(time.Since(start), status, hit, err)
			}
		})
	}
	wg.Wait()
	return stats
}

func positionsURL(cfg Config, word string) string {
	return fmt.Sprintf("%s/api/v1/documents/%s/positions?word=%s",
		cfg.BaseURL, url.PathEscape(cfg.DocumentID), url.QueryEscape(word))
}

func lookup(ctx context.Context, client *http.Client, target string) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	var body struct {
		CacheHit bool `json:"cache_hit"`
	}
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return resp.StatusCode, false, fmt.Errorf("decoding response: %w", err)
		}
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, body.CacheHit, nil
}

func printReport(s Summary) {
	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", s.Total)
	fmt.Printf("Successful:      %d\n", s.Success)
	fmt.Printf("Errors:          %d\n", s.Failures)
	fmt.Printf("Cache Hits:      %d\n", s.CacheHits)
	if s.Total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(s.Failures)/float64(s.Total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", s.RPS)
	}
	if s.Max > 0 {
		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", s.Min)
		fmt.Printf("Avg:    %s\n", s.Avg)
		fmt.Printf("P50:    %s\n", s.P50)
		fmt.Printf("P90:    %s\n", s.P90)
		fmt.Printf("P95:    %s\n", s.P95)
		fmt.Printf("P99:    %s\n", s.P99)
		fmt.Printf("Max:    %s\n", s.Max)
		fmt.Printf("StdDev: %s\n", s.StdDev)
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, s.StatusCodes[code])
	}
}
