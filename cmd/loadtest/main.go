// Command loadtest drives GET /api/v1/search with a rotating word list and
// prints throughput, latency percentiles and cache-hit counts.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -context 3 -words the,fox,whale
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Context     int
	RPS         float64
	Words       []string
}

var defaultWords = []string{
	"the", "whale", "sea", "ship", "captain", "white", "ahab", "boat",
	"man", "old", "head", "time", "long", "water", "nantucket", "xylophone",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	contextWidth := flag.Int("context", 3, "context width in words per side")
	rps := flag.Float64("rps", 0, "overall request rate cap (0 = unlimited)")
	words := flag.String("words", "", "comma-separated words to query")
	wordsFile := flag.String("words-file", "", "file with one word per line")
	flag.Parse()

	list, err := wordList(*words, *wordsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading word list: %v\n", err)
		os.Exit(2)
	}

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Context:     *contextWidth,
		RPS:         *rps,
		Words:       list,
	}

	fmt.Println("=== Context Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Context:     %d\n", cfg.Context)
	fmt.Printf("Words:       %d unique\n", len(cfg.Words))
	fmt.Println()

	stats := runLoadTest(cfg)
	if !stats.WriteReport(os.Stdout, cfg.Duration) {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func wordList(inline, path string) ([]string, error) {
	var list []string
	for _, w := range strings.Split(inline, ",") {
		if w = strings.TrimSpace(w); w != "" {
			list = append(list, w)
		}
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if w := strings.TrimSpace(sc.Text()); w != "" {
				list = append(list, w)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}
	if len(list) == 0 {
		list = defaultWords
	}
	return list, nil
}

func searchURL(base, word string, contextWidth int) string {
	q := url.Values{}
	q.Set("q", word)
	q.Set("context", fmt.Sprint(contextWidth))
	return base + "/api/v1/search?" + q.Encode()
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Concurrency)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			wordIdx := workerID

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				word := cfg.Words[wordIdx%len(cfg.Words)]
				wordIdx++

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL(cfg.BaseURL, word, cfg.Context), nil)
				if err != nil {
					stats.RecordRequest(0, 0, nil, err)
					continue
				}
				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats.RecordRequest(time.Since(start), 0, nil, err)
					continue
				}
				var outcome searchOutcome
				decodeErr := json.NewDecoder(resp.Body).Decode(&outcome)
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				duration := time.Since(start)

				if decodeErr != nil || resp.StatusCode != http.StatusOK {
					stats.RecordRequest(duration, resp.StatusCode, nil, nil)
					continue
				}
				stats.RecordRequest(duration, resp.StatusCode, &outcome, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}
