//go:build ignore
// +build ignore

// Warm-up Load Test - hammers the quota path with concurrent direct sends
// and dispatch ticks, then checks that no instance sent past its daily
// limit.
//
// Usage:
//
//	go run scripts/warmup_loadtest.go \
//	  --instances=20 \
//	  --workers=16 \
//	  --requests=2000 \
//	  --failure-rate=0.05 \
//	  --redis="redis://localhost:6379/0"
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/whatsapp-warmup/internal/config"
	"github.com/ignite/whatsapp-warmup/internal/gateway"
	"github.com/ignite/whatsapp-warmup/internal/pkg/logger"
	"github.com/ignite/whatsapp-warmup/internal/scheduler"
	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

type loadTestConfig struct {
	Instances   int
	Workers     int
	Requests    int
	Batch       int
	FailureRate float64
	Latency     time.Duration
	RedisURL    string
}

// =============================================================================
// MOCK GATEWAY
// =============================================================================

type mockGateway struct {
	failureRate float64
	latency     time.Duration

	mu       sync.Mutex
	rng      *rand.Rand
	accepted map[string]int64
	failed   int64
}

func (g *mockGateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/instance/{instance}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gateway.InstanceState{
			Instance: r.PathValue("instance"), Status: gateway.StatusOpen, ConnectionState: gateway.ConnectedState,
		})
	})
	send := func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(g.latency)
		instance := r.PathValue("instance")
		g.mu.Lock()
		fail := g.rng.Float64() < g.failureRate
		if fail {
			g.failed++
		} else {
			g.accepted[instance]++
		}
		g.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(gateway.SendResult{Key: gateway.MessageKey{ID: uuid.New().String(), FromMe: true}})
	}
	mux.HandleFunc("POST /api/message/sendText/{instance}", send)
	mux.HandleFunc("POST /api/message/sendMedia/{instance}", send)
	return mux
}

// =============================================================================
// METRICS
// =============================================================================

type loadTestMetrics struct {
	mu        sync.Mutex
	latencies []time.Duration

	requests   int64
	sent       int64
	failed     int64
	limited    int64
	errors     int64
	ticks      int64
	dispatched int64
}

func (m *loadTestMetrics) record(d time.Duration, res scheduler.BatchResult, err error) {
	atomic.AddInt64(&m.requests, 1)
	var limitErr *warmup.DailyLimitError
	switch {
	case errors.As(err, &limitErr):
		atomic.AddInt64(&m.limited, 1)
	case err != nil:
		atomic.AddInt64(&m.errors, 1)
	default:
		atomic.AddInt64(&m.sent, int64(res.MessagesSent))
		atomic.AddInt64(&m.failed, int64(res.Failed))
	}
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

func percentile(durations []time.Duration, p int) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// =============================================================================
// RUN
// =============================================================================

func main() {
	cfg := loadTestConfig{}
	flag.IntVar(&cfg.Instances, "instances", 20, "number of warm-up instances")
	flag.IntVar(&cfg.Workers, "workers", 16, "concurrent senders")
	flag.IntVar(&cfg.Requests, "requests", 2000, "direct send requests in total")
	flag.IntVar(&cfg.Batch, "batch", 3, "messages per direct send request")
	flag.Float64Var(&cfg.FailureRate, "failure-rate", 0.05, "fraction of gateway sends that fail")
	flag.DurationVar(&cfg.Latency, "latency", 5*time.Millisecond, "simulated gateway latency")
	flag.StringVar(&cfg.RedisURL, "redis", "", "redis URL for distributed dispatch leases (optional)")
	flag.Parse()

	logger.SetLevel(logger.ERROR)

	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  WARM-UP QUOTA LOAD TEST                                   ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")
	log.Printf("Instances: %d | Workers: %d | Requests: %d | Batch: %d | Failure rate: %.2f",
		cfg.Instances, cfg.Workers, cfg.Requests, cfg.Batch, cfg.FailureRate)

	mock := &mockGateway{
		failureRate: cfg.FailureRate,
		latency:     cfg.Latency,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		accepted:    make(map[string]int64),
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: mock.handler()}
	go srv.Serve(ln)
	defer srv.Close()

	gw := gateway.NewClient(config.GatewayConfig{
		BaseURL:        "http://" + ln.Addr().String(),
		TimeoutSeconds: 5,
		MaxRetries:     1,
	})

	registry := warmup.NewRegistry(nil, nil)
	sched := scheduler.New(registry, gw, scheduler.Options{SendDelay: time.Millisecond})
	// A second scheduler over the same registry stands in for a second
	// process; with Redis the two share dispatch leases.
	peer := scheduler.New(registry, gw, scheduler.Options{SendDelay: time.Millisecond})
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid redis URL: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		sched.SetRedisClient(client)
		peer.SetRedisClient(client)
		log.Printf("Redis leases enabled: %s", cfg.RedisURL)
	}

	var names []string
	for i := 0; i < cfg.Instances; i++ {
		name := fmt.Sprintf("load-%03d", i)
		contacts := make([]string, 30)
		for j := range contacts {
			contacts[j] = fmt.Sprintf("55119%08d", i*100+j)
		}
		if _, err := registry.CreateConfig(name, contacts); err != nil {
			log.Fatalf("create %s: %v", name, err)
		}
		if _, err := sched.ScheduleDaily(name, 5); err != nil {
			log.Fatalf("plan %s: %v", name, err)
		}
		names = append(names, name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	metrics := &loadTestMetrics{}
	jobs := make(chan string)
	var wg sync.WaitGroup
	start := time.Now()

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				t0 := time.Now()
				res, err := sched.SendNow(ctx, name, cfg.Batch, false)
				metrics.record(time.Since(t0), res, err)
			}
		}()
	}

	// Competing dispatch ticks, pulling planned messages due later today.
	tickCtx, stopTicks := context.WithCancel(ctx)
	var tickWG sync.WaitGroup
	for _, s := range []*scheduler.Scheduler{sched, peer} {
		tickWG.Add(1)
		go func(s *scheduler.Scheduler) {
			defer tickWG.Done()
			for tickCtx.Err() == nil {
				for _, name := range names {
					res := s.Tick(tickCtx, name)
					atomic.AddInt64(&metrics.ticks, 1)
					atomic.AddInt64(&metrics.dispatched, int64(res.Sent))
				}
			}
		}(s)
	}

	for i := 0; i < cfg.Requests; i++ {
		jobs <- names[i%len(names)]
	}
	close(jobs)
	wg.Wait()
	stopTicks()
	tickWG.Wait()
	elapsed := time.Since(start)

	// =========================================================================
	// REPORT
	// =========================================================================

	violations := 0
	for _, name := range names {
		limit, _ := registry.DailyLimit(name)
		today, _ := registry.TodayMetrics(name)
		if today.MessagesSent > limit {
			violations++
			log.Printf("QUOTA VIOLATION %s: sent %d > limit %d", name, today.MessagesSent, limit)
		}
	}

	log.Println("")
	log.Printf("Duration:          %s", elapsed.Round(time.Millisecond))
	log.Printf("Requests:          %d (%.0f/s)", metrics.requests, float64(metrics.requests)/elapsed.Seconds())
	log.Printf("Messages sent:     %d direct, %d dispatched", metrics.sent, metrics.dispatched)
	log.Printf("Gateway failures:  %d", metrics.failed)
	log.Printf("Limit refusals:    %d", metrics.limited)
	log.Printf("Other errors:      %d", metrics.errors)
	log.Printf("Dispatch ticks:    %d", metrics.ticks)
	log.Printf("Latency p50/p99:   %s / %s",
		percentile(metrics.latencies, 50).Round(time.Microsecond),
		percentile(metrics.latencies, 99).Round(time.Microsecond))

	if violations > 0 {
		log.Printf("FAIL: %d instance(s) exceeded their daily limit", violations)
		os.Exit(1)
	}
	log.Println("PASS: every instance stayed within its daily limit")
}
