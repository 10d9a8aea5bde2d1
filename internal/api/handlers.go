// Package api exposes the warm-up engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/whatsapp-warmup/internal/analytics"
	"github.com/ignite/whatsapp-warmup/internal/gateway"
	"github.com/ignite/whatsapp-warmup/internal/pkg/httputil"
	"github.com/ignite/whatsapp-warmup/internal/scheduler"
	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

// InstanceChecker reports the gateway connection state of an instance.
// *gateway.Client satisfies it.
type InstanceChecker interface {
	InstanceState(ctx context.Context, instance string) (gateway.InstanceState, error)
}

// Archiver stores an export and returns where it went.
// *storage.Archiver satisfies it.
type Archiver interface {
	Archive(ctx context.Context, instance, format string, body []byte) (string, error)
}

// Handlers holds the dependencies of every endpoint.
type Handlers struct {
	registry  *warmup.Registry
	scheduler *scheduler.Scheduler
	analytics *analytics.Engine
	gateway   InstanceChecker
	archiver  Archiver
	started   time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(registry *warmup.Registry, sched *scheduler.Scheduler, gw InstanceChecker) *Handlers {
	return &Handlers{
		registry:  registry,
		scheduler: sched,
		analytics: analytics.NewEngine(registry),
		gateway:   gw,
		started:   time.Now(),
	}
}

// SetArchiver enables archive=true on exports.
func (h *Handlers) SetArchiver(a Archiver) {
	h.archiver = a
}

// HealthCheck reports liveness and a few process counters.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	counters := h.scheduler.Counters()
	httputil.JSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"instances": len(h.registry.Instances()),
		"scheduler": counters,
	})
}

func instanceParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "instance"))
}

// limitDetails explains a refused send.
type limitDetails struct {
	DailyLimit        int `json:"dailyLimit"`
	MessagesSentToday int `json:"messagesSentToday"`
}

// writeError maps engine errors to HTTP responses.
func writeError(w http.ResponseWriter, err error) {
	var limitErr *warmup.DailyLimitError
	switch {
	case errors.As(err, &limitErr):
		httputil.TooManyRequests(w, "Daily limit reached", limitDetails{
			DailyLimit:        limitErr.Limit,
			MessagesSentToday: limitErr.SentToday,
		})
	case errors.Is(err, warmup.ErrConfigNotFound),
		errors.Is(err, warmup.ErrMessageNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, warmup.ErrConfigExists),
		errors.Is(err, warmup.ErrMessageNotPending),
		errors.Is(err, scheduler.ErrAlreadyRunning):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, warmup.ErrInvalidContacts):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
