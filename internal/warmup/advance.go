package warmup

import (
	"fmt"

	"github.com/ignite/whatsapp-warmup/internal/pkg/logger"
)

// Evaluation is the outcome of an advancement check. A denial is a normal
// result, not an error; Reason says why.
type Evaluation struct {
	Stage                int     `json:"stage"`
	Allowed              bool    `json:"allowed"`
	Reason               string  `json:"reason"`
	DaysAtStage          int     `json:"daysAtStage"`
	RequiredDays         int     `json:"requiredDays"`
	MeanResponseRate     float64 `json:"meanResponseRate"`
	RequiredResponseRate float64 `json:"requiredResponseRate"`
	ErrorRate            float64 `json:"errorRate"`
	NewStage             int     `json:"newStage,omitempty"`
}

// EvaluateAdvancement decides whether an instance at stage may move on,
// given its full metrics history. Only records created while the instance
// was at this stage count, and only the most recent DurationDays of them.
func EvaluateAdvancement(stage Stage, history []DailyMetrics) Evaluation {
	ev := Evaluation{
		Stage:                stage.ID,
		RequiredDays:         stage.DurationDays,
		RequiredResponseRate: stage.RequiredResponseRate,
	}
	if stage.ID >= MaxStage {
		ev.Reason = "already at maximum stage"
		return ev
	}

	var window []DailyMetrics
	for _, m := range history {
		if m.Stage == stage.ID {
			window = append(window, m)
		}
	}
	ev.DaysAtStage = len(window)
	if len(window) < stage.DurationDays {
		ev.Reason = fmt.Sprintf("needs %d days at stage %d, has %d", stage.DurationDays, stage.ID, len(window))
		return ev
	}
	window = window[len(window)-stage.DurationDays:]

	var rateSum float64
	var sent, errs int
	for _, m := range window {
		rateSum += m.ResponseRate
		sent += m.MessagesSent
		errs += m.Errors
	}
	ev.MeanResponseRate = rateSum / float64(len(window))
	ev.ErrorRate = errorRate(errs, sent)

	switch {
	case ev.MeanResponseRate < stage.RequiredResponseRate:
		ev.Reason = fmt.Sprintf("response rate %.1f%% below required %.1f%%",
			ev.MeanResponseRate*100, stage.RequiredResponseRate*100)
	case ev.ErrorRate >= MaxErrorRate:
		ev.Reason = fmt.Sprintf("error rate %.1f%% not below %.1f%%", ev.ErrorRate*100, MaxErrorRate*100)
	default:
		ev.Allowed = true
		ev.Reason = "requirements met"
	}
	return ev
}

// errorRate is errors/sent. Errors with nothing sent count as a full
// failure rate; no activity at all is a zero rate.
func errorRate(errs, sent int) float64 {
	if sent > 0 {
		return float64(errs) / float64(sent)
	}
	if errs > 0 {
		return 1
	}
	return 0
}

// CanAdvance evaluates the instance's current stage without changing it.
func (r *Registry) CanAdvance(name string) (Evaluation, error) {
	st, err := r.lock(name)
	if err != nil {
		return Evaluation{}, err
	}
	defer st.mu.Unlock()
	stage, ok := StageByID(st.config.CurrentStage)
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: stage %d of %s", ErrStageNotFound, st.config.CurrentStage, name)
	}
	return EvaluateAdvancement(stage, st.metrics), nil
}

// AdvanceStage re-evaluates and, when allowed, moves the instance up exactly
// one stage. Check and increment run under the same lock.
func (r *Registry) AdvanceStage(name string) (Evaluation, error) {
	st, err := r.lock(name)
	if err != nil {
		return Evaluation{}, err
	}
	defer st.mu.Unlock()
	stage, ok := StageByID(st.config.CurrentStage)
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: stage %d of %s", ErrStageNotFound, st.config.CurrentStage, name)
	}
	ev := EvaluateAdvancement(stage, st.metrics)
	if !ev.Allowed {
		logger.Info("stage advancement denied", "instance", name, "stage", stage.ID, "reason", ev.Reason)
		return ev, nil
	}
	st.config.CurrentStage = stage.ID + 1
	ev.NewStage = st.config.CurrentStage
	logger.Info("stage advanced", "instance", name, "from", stage.ID, "to", ev.NewStage)
	return ev, nil
}
