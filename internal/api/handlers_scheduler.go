package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/whatsapp-warmup/internal/pkg/httputil"
	"github.com/ignite/whatsapp-warmup/internal/scheduler"
	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

type scheduleRequest struct {
	Messages []scheduler.ScheduleRequest `json:"messages"`
}

// ScheduleMessages schedules caller-provided messages.
func (h *Handlers) ScheduleMessages(w http.ResponseWriter, r *http.Request) {
	name := instanceParam(r)
	var req scheduleRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		httputil.BadRequest(w, "messages array is required")
		return
	}

	out, err := h.scheduler.ScheduleExplicit(name, req.Messages)
	if err != nil {
		writeError(w, err)
		return
	}
	if out.Scheduled == nil {
		out.Scheduled = []warmup.ScheduledMessage{}
	}
	httputil.OK(w, map[string]any{
		"scheduled": len(out.Scheduled),
		"messages":  out.Scheduled,
		"skipped":   out.Skipped,
	})
}

type dailyRequest struct {
	Count int `json:"count"`
}

// ScheduleDaily plans today's remaining messages over the stage's time
// anchors. Count defaults to the daily limit.
func (h *Handlers) ScheduleDaily(w http.ResponseWriter, r *http.Request) {
	name := instanceParam(r)
	var req dailyRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Count <= 0 {
		limit, err := h.registry.DailyLimit(name)
		if err != nil {
			writeError(w, err)
			return
		}
		req.Count = limit
	}

	msgs, err := h.scheduler.ScheduleDaily(name, req.Count)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []warmup.ScheduledMessage{}
	}
	httputil.OK(w, map[string]any{
		"scheduled": len(msgs),
		"messages":  msgs,
	})
}

// GetScheduledMessages lists every scheduled message of the instance.
func (h *Handlers) GetScheduledMessages(w http.ResponseWriter, r *http.Request) {
	name := instanceParam(r)
	if _, err := h.registry.Config(name); err != nil {
		writeError(w, err)
		return
	}
	msgs := h.registry.ScheduledMessages(name)
	if msgs == nil {
		msgs = []warmup.ScheduledMessage{}
	}
	httputil.OK(w, map[string]any{
		"instanceName": name,
		"scheduled":    msgs,
	})
}

// CancelScheduledMessage cancels one pending message.
func (h *Handlers) CancelScheduledMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.scheduler.Cancel(instanceParam(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OKMessage(w, "scheduled message cancelled", msg)
}

// CleanupScheduled removes finished messages older than ?days=N (default 7).
func (h *Handlers) CleanupScheduled(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "days must be a non-negative integer")
			return
		}
		days = n
	}
	removed, err := h.scheduler.Cleanup(instanceParam(r), time.Duration(days)*24*time.Hour)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"removed": removed})
}

// GetSchedulerStats counts the instance's scheduled messages.
func (h *Handlers) GetSchedulerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.scheduler.Stats(instanceParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, stats)
}

// StartScheduler starts the instance's dispatch loop.
func (h *Handlers) StartScheduler(w http.ResponseWriter, r *http.Request) {
	name := instanceParam(r)
	if err := h.scheduler.Start(name); err != nil {
		writeError(w, err)
		return
	}
	httputil.OKMessage(w, "scheduler started", map[string]any{"instanceName": name, "running": true})
}

// StopScheduler stops the instance's dispatch loop. Pending messages stay
// scheduled. It responds at once; a send already in flight finishes in the
// background.
func (h *Handlers) StopScheduler(w http.ResponseWriter, r *http.Request) {
	name := instanceParam(r)
	if _, err := h.registry.Config(name); err != nil {
		writeError(w, err)
		return
	}
	if !h.scheduler.Stop(name) {
		httputil.Conflict(w, "scheduler is not running for instance")
		return
	}
	httputil.OKMessage(w, "scheduler stopped", map[string]any{"instanceName": name, "running": false})
}
