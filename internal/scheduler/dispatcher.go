package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ignite/whatsapp-warmup/internal/pkg/distlock"
	"github.com/ignite/whatsapp-warmup/internal/pkg/logger"
	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

// Start begins the dispatch loop of one instance. The first tick runs
// immediately, then every Interval.
func (s *Scheduler) Start(name string) error {
	if _, err := s.registry.Config(name); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.loops[name]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.loops[name] = &loop{cancel: cancel}
	s.wg.Add(1)
	s.mu.Unlock()

	logger.Info("scheduler started", "instance", name, "interval", s.opts.Interval, "auto_plan", s.opts.AutoPlan)
	go s.run(ctx, name)
	return nil
}

// Stop cancels an instance's polling and returns without waiting for the
// loop to exit. Scheduled messages are untouched and a send already in
// flight completes in the background; Shutdown waits for it. Returns false
// if no loop was running.
func (s *Scheduler) Stop(name string) bool {
	s.mu.Lock()
	l, ok := s.loops[name]
	if ok {
		delete(s.loops, name)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	l.cancel()
	logger.Info("scheduler stopped", "instance", name)
	return true
}

// Running reports whether an instance has an active loop.
func (s *Scheduler) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[name]
	return ok
}

// Shutdown stops every loop and waits for them to exit.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	loops := s.loops
	s.loops = make(map[string]*loop)
	s.mu.Unlock()
	for _, l := range loops {
		l.cancel()
	}
	s.wg.Wait()
	logger.Info("scheduler shut down", "loops", len(loops))
}

func (s *Scheduler) run(ctx context.Context, name string) {
	defer s.wg.Done()

	s.Tick(ctx, name)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.Tick(ctx, name)
		case <-ctx.Done():
			return
		}
	}
}

// TickResult describes one dispatch pass.
type TickResult struct {
	Skipped   bool `json:"skipped"` // lease held elsewhere
	Planned   int  `json:"planned"`
	Pruned    int  `json:"pruned"`
	Due       int  `json:"due"`
	Sent      int  `json:"sent"`
	Retried   int  `json:"retried"`
	Failed    int  `json:"failed"`
	Deferred  int  `json:"deferred"` // left pending because the quota is used up
	Cancelled bool `json:"cancelled"`
}

// Tick runs one dispatch pass for an instance: it takes the dispatch lease,
// plans the day when auto planning is on, then sends every due message in
// order until the quota runs out.
func (s *Scheduler) Tick(ctx context.Context, name string) TickResult {
	var out TickResult
	atomic.AddInt64(&s.ticks, 1)

	lease := distlock.NewLock(s.redisClient, "dispatch:"+name, s.leaseTTL())
	ok, err := lease.Acquire(ctx)
	if err != nil {
		logger.Warn("dispatch lease unavailable", "instance", name, "error", err)
		out.Skipped = true
		return out
	}
	if !ok {
		logger.Debug("dispatch lease held elsewhere", "instance", name)
		out.Skipped = true
		return out
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, distlock.ErrNotHeld) {
			logger.Warn("dispatch lease release failed", "instance", name, "error", err)
		}
	}()

	out.Planned, out.Pruned = s.daily(name)

	now := s.registry.Now()
	due := s.registry.DueMessages(name, now)
	out.Due = len(due)
	if len(due) == 0 {
		return out
	}
	logger.Info("processing due messages", "instance", name, "due", len(due))

	for i, msg := range due {
		if ctx.Err() != nil {
			out.Cancelled = true
			return out
		}
		if _, err := s.registry.Reserve(name, 1, false); err != nil {
			if errors.Is(err, warmup.ErrDailyLimitExceeded) {
				out.Deferred = len(due) - i
				logger.Warn("daily limit reached, leaving messages pending", "instance", name, "pending", out.Deferred)
				return out
			}
			logger.Error("reserve failed", "instance", name, "error", err)
			return out
		}
		switch s.dispatch(ctx, msg) {
		case outcomeSent:
			out.Sent++
		case outcomeRetry:
			out.Retried++
		case outcomeFailed:
			out.Failed++
		}
	}
	return out
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeSent
	outcomeRetry
	outcomeFailed
)

// dispatch sends one due message holding a reserved slot and settles the
// slot, the message state and the metrics.
func (s *Scheduler) dispatch(ctx context.Context, msg warmup.ScheduledMessage) outcome {
	name := msg.InstanceName
	tpl, err := s.templateFor(msg)
	var sendErr error
	var messageID string
	if err != nil {
		sendErr = err
	} else {
		res, err := s.deliver(ctx, name, msg.Contact, tpl, s.opts.SendDelay)
		sendErr = err
		messageID = res.MessageID()
	}

	if sendErr == nil {
		if err := s.registry.CompleteSend(name, warmup.SentDelta(tpl.Type)); err != nil {
			logger.Error("recording send failed", "instance", name, "error", err)
			return outcomeNone
		}
		if _, err := s.registry.MarkSent(name, msg.ID, messageID, s.registry.Now()); err != nil {
			logger.Warn("mark sent failed", "instance", name, "message_id", msg.ID, "error", err)
		}
		s.registry.Templates().RecordUsage(tpl.ID, s.registry.Now())
		atomic.AddInt64(&s.sent, 1)
		logger.Info("scheduled message sent", "instance", name, "message_id", msg.ID, "template", tpl.ID, "contact", msg.Contact)
		return outcomeSent
	}

	if err := s.registry.CompleteSend(name, warmup.MetricsDelta{}); err != nil {
		logger.Error("releasing send slot failed", "instance", name, "error", err)
	}
	attempt := msg.RetryCount + 1
	if attempt >= msg.MaxRetries {
		if _, err := s.registry.MarkFailed(name, msg.ID, sendErr); err != nil {
			logger.Warn("mark failed failed", "instance", name, "message_id", msg.ID, "error", err)
			return outcomeNone
		}
		atomic.AddInt64(&s.failed, 1)
		logger.Error("scheduled message failed permanently", "instance", name, "message_id", msg.ID, "attempts", attempt, "error", sendErr)
		return outcomeFailed
	}

	next := s.registry.Now().Add(Backoff(attempt))
	if _, err := s.registry.MarkRetry(name, msg.ID, next, sendErr); err != nil {
		logger.Warn("reschedule failed", "instance", name, "message_id", msg.ID, "error", err)
		return outcomeNone
	}
	atomic.AddInt64(&s.retried, 1)
	logger.Warn("scheduled message rescheduled", "instance", name, "message_id", msg.ID,
		"attempt", attempt, "next_at", next.Format(time.RFC3339), "error", sendErr)
	return outcomeRetry
}

// Backoff is the delay before the next attempt after the n-th failure:
// 1 minute after the first, doubling after each further failure.
func Backoff(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	return time.Duration(1<<uint(failures-1)) * time.Minute
}

// leaseTTL outlives a tick that sends a full batch sequentially.
func (s *Scheduler) leaseTTL() time.Duration {
	ttl := 2 * s.opts.Interval
	if ttl < 5*time.Minute {
		ttl = 5 * time.Minute
	}
	return ttl
}

// daily runs the once-per-day work of a loop: auto planning and cleanup.
func (s *Scheduler) daily(name string) (planned, pruned int) {
	today := s.registry.Today()
	s.mu.Lock()
	done := s.plannedFor[name] == today
	if !done {
		s.plannedFor[name] = today
	}
	s.mu.Unlock()
	if done {
		return 0, 0
	}

	if s.opts.CleanupAfter > 0 {
		n, err := s.Cleanup(name, s.opts.CleanupAfter)
		if err != nil {
			logger.Warn("cleanup failed", "instance", name, "error", err)
		}
		pruned = n
	}
	if s.opts.AutoPlan {
		remaining, err := s.unplannedQuota(name)
		if err != nil {
			logger.Warn("auto plan failed", "instance", name, "error", err)
			return 0, pruned
		}
		if remaining > 0 {
			msgs, err := s.ScheduleDaily(name, remaining)
			if err != nil {
				logger.Warn("auto plan failed", "instance", name, "error", err)
			}
			planned = len(msgs)
		}
	}
	return planned, pruned
}

// unplannedQuota is today's limit minus what was already sent and what is
// already pending for today.
func (s *Scheduler) unplannedQuota(name string) (int, error) {
	limit, err := s.registry.DailyLimit(name)
	if err != nil {
		return 0, err
	}
	today, err := s.registry.TodayMetrics(name)
	if err != nil {
		return 0, err
	}
	pending := 0
	for _, m := range s.registry.ScheduledMessages(name) {
		if m.Status == warmup.StatusPending && m.ScheduledAt.In(s.registry.Location()).Format(warmup.DateLayout) == today.Date {
			pending++
		}
	}
	return limit - today.MessagesSent - pending, nil
}
