// Package scheduler turns a warm-up plan into actual sends: it generates
// time-distributed schedules, runs one dispatch loop per instance, applies
// retry with exponential backoff, and serves direct batch sends.
package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/whatsapp-warmup/internal/gateway"
	"github.com/ignite/whatsapp-warmup/internal/warmup"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultInterval is how often each instance's loop looks for due messages.
	DefaultInterval = 60 * time.Second

	// DefaultSendTimeout bounds a single gateway call.
	DefaultSendTimeout = 30 * time.Second

	// DefaultSendDelay is the typing delay passed to the gateway.
	DefaultSendDelay = time.Second
)

// ErrAlreadyRunning is returned when starting a loop that is already active.
var ErrAlreadyRunning = errors.New("scheduler already running for instance")

// Gateway delivers messages. *gateway.Client satisfies it.
type Gateway interface {
	SendText(ctx context.Context, instance string, msg gateway.TextMessage) (gateway.SendResult, error)
	SendMedia(ctx context.Context, instance string, msg gateway.MediaMessage) (gateway.SendResult, error)
}

// Options tune a Scheduler. Zero values take the defaults above.
type Options struct {
	Interval     time.Duration
	SendTimeout  time.Duration
	SendDelay    time.Duration
	AutoPlan     bool
	CleanupAfter time.Duration
}

// Scheduler owns the dispatch loops. All instance state lives in the
// registry; the scheduler only keeps loop handles and counters.
type Scheduler struct {
	registry *warmup.Registry
	gateway  Gateway
	renderer *warmup.Renderer
	opts     Options

	redisClient *redis.Client // optional; nil uses process-local leases

	rngMu sync.Mutex
	rng   *rand.Rand

	mu         sync.Mutex
	loops      map[string]*loop
	plannedFor map[string]string // instance -> date of last auto plan
	wg         sync.WaitGroup

	// Stats
	ticks   int64
	sent    int64
	retried int64
	failed  int64
}

type loop struct {
	cancel context.CancelFunc
}

// New creates a scheduler.
func New(registry *warmup.Registry, gw Gateway, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.SendDelay <= 0 {
		opts.SendDelay = DefaultSendDelay
	}
	return &Scheduler{
		registry:   registry,
		gateway:    gw,
		renderer:   warmup.NewRenderer(),
		opts:       opts,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		loops:      make(map[string]*loop),
		plannedFor: make(map[string]string),
	}
}

// SetRedisClient enables Redis-backed dispatch leases so that two
// processes never dispatch the same instance at once.
func (s *Scheduler) SetRedisClient(client *redis.Client) {
	s.redisClient = client
}

// SetRand replaces the random source used for slot jitter and delays.
func (s *Scheduler) SetRand(rng *rand.Rand) {
	s.rngMu.Lock()
	s.rng = rng
	s.rngMu.Unlock()
}

func (s *Scheduler) withRand(fn func(*rand.Rand)) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	fn(s.rng)
}

// Counters are process-wide totals since start.
type Counters struct {
	Ticks   int64 `json:"ticks"`
	Sent    int64 `json:"sent"`
	Retried int64 `json:"retried"`
	Failed  int64 `json:"failed"`
	Running int   `json:"running"`
}

// Counters returns the scheduler's totals.
func (s *Scheduler) Counters() Counters {
	s.mu.Lock()
	running := len(s.loops)
	s.mu.Unlock()
	return Counters{
		Ticks:   atomic.LoadInt64(&s.ticks),
		Sent:    atomic.LoadInt64(&s.sent),
		Retried: atomic.LoadInt64(&s.retried),
		Failed:  atomic.LoadInt64(&s.failed),
		Running: running,
	}
}
