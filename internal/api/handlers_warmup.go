package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ignite/whatsapp-warmup/internal/analytics"
	"github.com/ignite/whatsapp-warmup/internal/pkg/httputil"
	"github.com/ignite/whatsapp-warmup/internal/pkg/logger"
	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

type startRequest struct {
	InstanceName string   `json:"instanceName"`
	Contacts     []string `json:"contacts"`
}

type configSummary struct {
	InstanceName     string `json:"instanceName"`
	CurrentStage     int    `json:"currentStage"`
	TotalContacts    int    `json:"totalContacts"`
	InternalContacts int    `json:"internalContacts"`
	ExternalContacts int    `json:"externalContacts"`
}

// StartWarmup creates a warm-up config for a connected instance.
func (h *Handlers) StartWarmup(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	req.InstanceName = strings.TrimSpace(req.InstanceName)
	if req.InstanceName == "" || len(req.Contacts) == 0 {
		httputil.BadRequest(w, "instanceName and contacts array are required")
		return
	}

	state, err := h.gateway.InstanceState(r.Context(), req.InstanceName)
	if err != nil {
		logger.Warn("instance state lookup failed", "instance", req.InstanceName, "error", err)
		httputil.BadGateway(w, "could not reach the messaging gateway")
		return
	}
	if !state.Connected() {
		httputil.BadRequest(w, "Instance must be connected before starting warmup")
		return
	}

	cfg, err := h.registry.CreateConfig(req.InstanceName, req.Contacts)
	if err != nil {
		writeError(w, err)
		return
	}
	stage, _ := warmup.StageByID(cfg.CurrentStage)
	limit, _ := h.registry.DailyLimit(cfg.InstanceName)

	httputil.Created(w, "warm-up started", map[string]any{
		"config": configSummary{
			InstanceName:     cfg.InstanceName,
			CurrentStage:     cfg.CurrentStage,
			TotalContacts:    len(cfg.Contacts),
			InternalContacts: len(cfg.InternalContacts),
			ExternalContacts: len(cfg.ExternalContacts),
		},
		"stage":      stage,
		"dailyLimit": limit,
	})
}

type statusResponse struct {
	InstanceName          string            `json:"instanceName"`
	CurrentStage          int               `json:"currentStage"`
	StageName             string            `json:"stageName"`
	StageDescription      string            `json:"stageDescription"`
	DailyLimit            int               `json:"dailyLimit"`
	MessagesSentToday     int               `json:"messagesSentToday"`
	RemainingMessages     int               `json:"remainingMessages"`
	ResponseRate          float64           `json:"responseRate"`
	Metrics               analytics.Summary `json:"metrics"`
	CanAdvanceToNextStage bool              `json:"canAdvanceToNextStage"`
	Advancement           warmup.Evaluation `json:"advancement"`
	SchedulerRunning      bool              `json:"schedulerRunning"`
}

// GetWarmupStatus returns the current stage, today's quota and totals.
func (h *Handlers) GetWarmupStatus(w http.ResponseWriter, r *http.Request) {
	name := instanceParam(r)
	stage, err := h.registry.CurrentStage(name)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := h.registry.DailyLimit(name)
	if err != nil {
		writeError(w, err)
		return
	}
	today, err := h.registry.TodayMetrics(name)
	if err != nil {
		writeError(w, err)
		return
	}
	ev, err := h.registry.CanAdvance(name)
	if err != nil {
		writeError(w, err)
		return
	}

	remaining := limit - today.MessagesSent
	if remaining < 0 {
		remaining = 0
	}
	httputil.OK(w, statusResponse{
		InstanceName:          name,
		CurrentStage:          stage.ID,
		StageName:             stage.Name,
		StageDescription:      stage.Description,
		DailyLimit:            limit,
		MessagesSentToday:     today.MessagesSent,
		RemainingMessages:     remaining,
		ResponseRate:          today.ResponseRate,
		Metrics:               analytics.Summarize(h.registry.Metrics(name)),
		CanAdvanceToNextStage: ev.Allowed,
		Advancement:           ev,
		SchedulerRunning:      h.scheduler.Running(name),
	})
}

// GetMetrics returns the last ?days=N daily records (default 7).
func (h *Handlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	name := instanceParam(r)
	if _, err := h.registry.Config(name); err != nil {
		writeError(w, err)
		return
	}
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "days must be a positive integer")
			return
		}
		days = n
	}

	metrics := h.registry.Metrics(name)
	if len(metrics) > days {
		metrics = metrics[len(metrics)-days:]
	}
	if metrics == nil {
		metrics = []warmup.DailyMetrics{}
	}
	httputil.OK(w, map[string]any{
		"instanceName": name,
		"metrics":      metrics,
		"summary":      analytics.Summarize(metrics),
	})
}

type sendRequest struct {
	Count int  `json:"count"`
	Force bool `json:"force"`
}

// SendWarmupMessages sends a batch immediately, within today's quota
// unless forced.
func (h *Handlers) SendWarmupMessages(w http.ResponseWriter, r *http.Request) {
	name := instanceParam(r)
	req := sendRequest{Count: 1}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Count <= 0 {
		httputil.BadRequest(w, "count must be positive")
		return
	}

	res, err := h.scheduler.SendNow(r.Context(), name, req.Count, req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, res)
}

// AdvanceStage moves the instance to the next stage when its recent
// metrics allow it. A denial is a 400 carrying the evaluation.
func (h *Handlers) AdvanceStage(w http.ResponseWriter, r *http.Request) {
	name := instanceParam(r)
	ev, err := h.registry.AdvanceStage(name)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ev.Allowed {
		httputil.ErrorWithDetails(w, http.StatusBadRequest, "advancement_denied",
			"Cannot advance stage: "+ev.Reason, ev)
		return
	}
	stage, _ := warmup.StageByID(ev.NewStage)
	httputil.OKMessage(w, fmt.Sprintf("Advanced to stage %d", ev.NewStage), map[string]any{
		"newStage":   stage,
		"evaluation": ev,
	})
}

// GetStages lists the stage catalog.
func (h *Handlers) GetStages(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{"stages": warmup.Stages()})
}
