package analytics

import "github.com/ignite/whatsapp-warmup/internal/warmup"

// Dashboard is the single-screen view of an instance.
type Dashboard struct {
	InstanceName string            `json:"instanceName"`
	CurrentStage int               `json:"currentStage"`
	StageName    string            `json:"stageName"`
	HealthScore  int               `json:"healthScore"`
	HealthStatus string            `json:"healthStatus"`
	Today        TodayView         `json:"today"`
	Week         Summary           `json:"week"`
	Overall      Summary           `json:"overall"`
	Advancement  warmup.Evaluation `json:"advancement"`
	StageLimits  StageLimits       `json:"stageLimits"`
}

// TodayView is today's activity against the daily limit.
type TodayView struct {
	MessagesSent      int     `json:"messagesSent"`
	MessagesReceived  int     `json:"messagesReceived"`
	ResponseRate      float64 `json:"responseRate"`
	Errors            int     `json:"errors"`
	RemainingMessages int     `json:"remainingMessages"`
}

// StageLimits are the constraints of the current stage.
type StageLimits struct {
	DailyLimit           int     `json:"dailyLimit"`
	MaxDailyMessages     int     `json:"maxDailyMessages"`
	AllowedMedia         bool    `json:"allowedMedia"`
	MaxExternalContacts  int     `json:"maxExternalContacts"`
	RequiredResponseRate float64 `json:"requiredResponseRate"`
}

// Dashboard builds the dashboard of an instance. The week covers the last
// seven recorded days.
func (e *Engine) Dashboard(name string) (Dashboard, error) {
	cfg, err := e.src.Config(name)
	if err != nil {
		return Dashboard{}, err
	}
	stage, ok := warmup.StageByID(cfg.CurrentStage)
	if !ok {
		return Dashboard{}, warmup.ErrStageNotFound
	}
	limit, err := e.src.DailyLimit(name)
	if err != nil {
		return Dashboard{}, err
	}
	today, err := e.src.TodayMetrics(name)
	if err != nil {
		return Dashboard{}, err
	}
	ev, err := e.src.CanAdvance(name)
	if err != nil {
		return Dashboard{}, err
	}
	history := e.src.Metrics(name)
	score := Score(history)

	remaining := limit - today.MessagesSent
	if remaining < 0 {
		remaining = 0
	}
	return Dashboard{
		InstanceName: name,
		CurrentStage: cfg.CurrentStage,
		StageName:    stage.Name,
		HealthScore:  score,
		HealthStatus: HealthStatus(score),
		Today: TodayView{
			MessagesSent:      today.MessagesSent,
			MessagesReceived:  today.MessagesReceived,
			ResponseRate:      today.ResponseRate,
			Errors:            today.Errors,
			RemainingMessages: remaining,
		},
		Week:        Summarize(lastN(history, 7)),
		Overall:     Summarize(history),
		Advancement: ev,
		StageLimits: StageLimits{
			DailyLimit:           limit,
			MaxDailyMessages:     stage.MaxDailyMessages,
			AllowedMedia:         stage.AllowedMedia,
			MaxExternalContacts:  stage.MaxExternalContacts,
			RequiredResponseRate: stage.RequiredResponseRate,
		},
	}, nil
}

// InstanceView is one side of a comparison.
type InstanceView struct {
	Name string `json:"name"`
	Summary
	HealthScore int `json:"healthScore"`
}

// Differences are first minus second.
type Differences struct {
	MessagesSentDiff int     `json:"messagesSentDiff"`
	ResponseRateDiff float64 `json:"responseRateDiff"`
	ErrorsDiff       int     `json:"errorsDiff"`
	HealthScoreDiff  int     `json:"healthScoreDiff"`
}

// Comparison sets two instances side by side over their whole history.
type Comparison struct {
	First       InstanceView `json:"instance1"`
	Second      InstanceView `json:"instance2"`
	Differences Differences  `json:"differences"`
}

// Compare builds a comparison of two instances.
func (e *Engine) Compare(first, second string) (Comparison, error) {
	a, err := e.view(first)
	if err != nil {
		return Comparison{}, err
	}
	b, err := e.view(second)
	if err != nil {
		return Comparison{}, err
	}
	return Comparison{
		First:  a,
		Second: b,
		Differences: Differences{
			MessagesSentDiff: a.TotalMessagesSent - b.TotalMessagesSent,
			ResponseRateDiff: a.AverageResponseRate - b.AverageResponseRate,
			ErrorsDiff:       a.TotalErrors - b.TotalErrors,
			HealthScoreDiff:  a.HealthScore - b.HealthScore,
		},
	}, nil
}

func (e *Engine) view(name string) (InstanceView, error) {
	if _, err := e.src.Config(name); err != nil {
		return InstanceView{}, err
	}
	history := e.src.Metrics(name)
	return InstanceView{Name: name, Summary: Summarize(history), HealthScore: Score(history)}, nil
}
