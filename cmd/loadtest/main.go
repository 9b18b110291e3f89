package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Mode        string
	// Unique bounds the number of distinct sentences, which controls the
	// result cache hit rate.
	Unique    int
	Sentences int
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	sentences     atomic.Int64
	nullResults   atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

type analysisResponse struct {
	Results []struct {
		Analysis json.RawMessage `json:"analysis"`
	} `json:"results"`
}

func (s *Stats) RecordResults(body []byte) {
	var resp analysisResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return
	}
	s.sentences.Add(int64(len(resp.Results)))
	for _, r := range resp.Results {
		if len(r.Analysis) == 0 || string(r.Analysis) == "null" {
			s.nullResults.Add(1)
		}
	}
}

var (
	subjects = []string{"The service", "Our batcher", "A reviewer", "the engine", "This paragraph", "The cache"}
	verbs    = []string{"analyses", "really improves", "rejects", "prefetches", "reads", "just returns"}
	objects  = []string{"every sentence", "the the document", "neighbouring lines", "stale results", "a short note", "42 items"}
)

func sentence(i int) string {
	return fmt.Sprintf("%s %s %s number %d.",
		subjects[i%len(subjects)],
		verbs[(i/len(subjects))%len(verbs)],
		objects[(i/(len(subjects)*len(verbs)))%len(objects)],
		i,
	)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the analyzer service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	mode := flag.String("mode", "analyze", "workload: analyze (ad-hoc text) or document (windows over stored documents)")
	unique := flag.Int("unique", 500, "number of distinct sentences")
	sentences := flag.Int("sentences", 10, "sentences per request")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Mode:        *mode,
		Unique:      max(*unique, 1),
		Sentences:   max(*sentences, 1),
	}
	if cfg.Mode != "analyze" && cfg.Mode != "document" {
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", cfg.Mode)
		os.Exit(2)
	}

	fmt.Println("=== Sentence Analysis Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Mode:        %s\n", cfg.Mode)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Sentences:   %d per request, %d unique\n", cfg.Sentences, cfg.Unique)
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	if cfg.Mode == "document" {
		if err := seedDocuments(client, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "seeding documents: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(workerID), uint64(time.Now().UnixNano())))

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				var req *http.Request
				if cfg.Mode == "document" {
					req = documentRequest(ctx, cfg, rng)
				} else {
					req = analyzeRequest(ctx, cfg, rng)
				}

				start := time.Now()
				resp, err := client.Do(req)
				duration := time.Since(start)

				if err != nil {
					if ctx.Err() == nil {
						stats.RecordRequest(duration, 0, err)
					}
					continue
				}
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()

				stats.RecordRequest(duration, resp.StatusCode, nil)
				if resp.StatusCode == http.StatusOK {
					stats.RecordResults(body)
				}
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

const documentCount = 20

func seedDocuments(client *http.Client, cfg Config) error {
	perDoc := max(cfg.Unique/documentCount, cfg.Sentences)
	for d := 0; d < documentCount; d++ {
		var body strings.Builder
		for i := 0; i < perDoc; i++ {
			body.WriteString(sentence(d*perDoc + i))
			body.WriteByte(' ')
		}
		payload, _ := json.Marshal(map[string]string{
			"title": fmt.Sprintf("Load test document %d", d),
			"body":  body.String(),
		})
		req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/v1/documents/loadtest-%d", cfg.BaseURL, d), bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("document %d: status %d", d, resp.StatusCode)
		}
	}
	return nil
}

func analyzeRequest(ctx context.Context, cfg Config, rng *rand.Rand) *http.Request {
	var text strings.Builder
	for i := 0; i < cfg.Sentences; i++ {
		text.WriteString(sentence(rng.IntN(cfg.Unique)))
		text.WriteByte(' ')
	}
	payload, _ := json.Marshal(map[string]string{"text": text.String()})
	req := mustNewRequest(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/analyze", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func documentRequest(ctx context.Context, cfg Config, rng *rand.Rand) *http.Request {
	perDoc := max(cfg.Unique/documentCount, cfg.Sentences)
	from := rng.IntN(perDoc - cfg.Sentences + 1)
	rawURL := fmt.Sprintf("%s/api/v1/documents/loadtest-%d/analysis?from=%d&to=%d",
		cfg.BaseURL, rng.IntN(documentCount), from, from+cfg.Sentences)
	return mustNewRequest(ctx, http.MethodGet, rawURL, nil)
}

func mustNewRequest(ctx context.Context, method, rawURL string, body io.Reader) *http.Request {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}
	if n := stats.sentences.Load(); n > 0 {
		fmt.Printf("Sentences/sec:   %.2f\n", float64(n)/duration.Seconds())
		fmt.Printf("Null Results:    %d (%.1f%%)\n", stats.nullResults.Load(), float64(stats.nullResults.Load())/float64(n)*100)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		fmt.Printf("StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the analyzer running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
