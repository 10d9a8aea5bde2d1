// Package analytics derives read-only insight from an instance's metrics
// history: period summaries, trends, a 0-100 health score, dashboards,
// comparisons and exports.
package analytics

import (
	"strings"
	"time"

	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

// Source is the read side of the warm-up registry.
type Source interface {
	Config(name string) (warmup.Config, error)
	Metrics(name string) []warmup.DailyMetrics
	TodayMetrics(name string) (warmup.DailyMetrics, error)
	DailyLimit(name string) (int, error)
	CanAdvance(name string) (warmup.Evaluation, error)
	Now() time.Time
	Location() *time.Location
}

// Engine computes analytics over a Source.
type Engine struct {
	src Source
}

// NewEngine creates an engine.
func NewEngine(src Source) *Engine {
	return &Engine{src: src}
}

// Period selects the slice of history an analysis covers.
type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod maps a query value to a Period. Unknown values mean a week.
func ParsePeriod(s string) Period {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case PeriodMonth:
		return PeriodMonth
	case PeriodAll:
		return PeriodAll
	default:
		return PeriodWeek
	}
}

func (p Period) days() int {
	switch p {
	case PeriodMonth:
		return 30
	case PeriodAll:
		return 0
	default:
		return 7
	}
}

// DayRef points at a single day of history.
type DayRef struct {
	Date         string  `json:"date"`
	ResponseRate float64 `json:"responseRate"`
	MessagesSent int     `json:"messagesSent"`
}

// StageSpan counts the days of history recorded at one stage.
type StageSpan struct {
	Stage       int    `json:"stage"`
	StartDate   string `json:"startDate"`
	DaysInStage int    `json:"daysInStage"`
}

// Summary aggregates a set of days.
type Summary struct {
	TotalMessagesSent     int     `json:"totalMessagesSent"`
	TotalMessagesReceived int     `json:"totalMessagesReceived"`
	AverageResponseRate   float64 `json:"averageResponseRate"`
	TotalErrors           int     `json:"totalErrors"`
	AverageMessagesPerDay float64 `json:"averageMessagesPerDay"`
	DaysActive            int     `json:"daysActive"`
}

// Trends compare the second half of a period against the first, in percent.
type Trends struct {
	ResponseRateTrend float64 `json:"responseRateTrend"`
	VolumeTrend       float64 `json:"volumeTrend"`
	ErrorRateTrend    float64 `json:"errorRateTrend"`
}

// Report is the full analysis of one instance over a period.
type Report struct {
	InstanceName     string      `json:"instanceName"`
	Period           Period      `json:"period"`
	Summary          Summary     `json:"metrics"`
	BestDay          DayRef      `json:"bestDay"`
	WorstDay         DayRef      `json:"worstDay"`
	StageProgression []StageSpan `json:"stageProgression"`
	Trends           Trends      `json:"trends"`
	Recommendations  []string    `json:"recommendations"`
}

// Generate analyses the instance's history over period.
func (e *Engine) Generate(name string, period Period) (Report, error) {
	cfg, err := e.src.Config(name)
	if err != nil {
		return Report{}, err
	}
	days := e.filter(e.src.Metrics(name), period)

	r := Report{
		InstanceName:     name,
		Period:           period,
		StageProgression: []StageSpan{},
	}
	if len(days) == 0 {
		r.Recommendations = []string{recStart}
		return r, nil
	}

	r.Summary = Summarize(days)
	r.BestDay, r.WorstDay = bestAndWorst(days)
	r.StageProgression = stageProgression(days)
	r.Trends = trends(days)
	r.Recommendations = e.recommend(name, cfg.CurrentStage, days)
	return r, nil
}

// filter keeps the days of the period ending today: a week is today and
// the six days before it.
func (e *Engine) filter(history []warmup.DailyMetrics, period Period) []warmup.DailyMetrics {
	n := period.days()
	if n == 0 {
		return history
	}
	cutoff := e.src.Now().In(e.src.Location()).AddDate(0, 0, -n).Format(warmup.DateLayout)
	var out []warmup.DailyMetrics
	for _, m := range history {
		if m.Date > cutoff {
			out = append(out, m)
		}
	}
	return out
}

// Summarize totals a set of days. The response rate is aggregate
// received/sent.
func Summarize(days []warmup.DailyMetrics) Summary {
	var s Summary
	for _, m := range days {
		s.TotalMessagesSent += m.MessagesSent
		s.TotalMessagesReceived += m.MessagesReceived
		s.TotalErrors += m.Errors
	}
	s.DaysActive = len(days)
	s.AverageResponseRate = responseRate(days)
	s.AverageMessagesPerDay = volume(days)
	return s
}

// bestAndWorst picks the days with the highest and lowest response rate.
// Ties keep the earlier day.
func bestAndWorst(days []warmup.DailyMetrics) (best, worst DayRef) {
	b, w := days[0], days[0]
	for _, m := range days[1:] {
		if m.ResponseRate > b.ResponseRate {
			b = m
		}
		if m.ResponseRate < w.ResponseRate {
			w = m
		}
	}
	return dayRef(b), dayRef(w)
}

func dayRef(m warmup.DailyMetrics) DayRef {
	return DayRef{Date: m.Date, ResponseRate: m.ResponseRate, MessagesSent: m.MessagesSent}
}

func stageProgression(days []warmup.DailyMetrics) []StageSpan {
	var out []StageSpan
	index := map[int]int{}
	for _, m := range days {
		i, ok := index[m.Stage]
		if !ok {
			index[m.Stage] = len(out)
			out = append(out, StageSpan{Stage: m.Stage, StartDate: m.Date, DaysInStage: 1})
			continue
		}
		out[i].DaysInStage++
	}
	return out
}

func trends(days []warmup.DailyMetrics) Trends {
	if len(days) < 2 {
		return Trends{}
	}
	first, second := days[:len(days)/2], days[len(days)/2:]
	return Trends{
		ResponseRateTrend: change(responseRate(first), responseRate(second)),
		VolumeTrend:       change(volume(first), volume(second)),
		ErrorRateTrend:    change(errorRate(first), errorRate(second)),
	}
}

// change is the percent change from a to b, 0 when a is 0.
func change(a, b float64) float64 {
	if a == 0 {
		return 0
	}
	return (b - a) / a * 100
}

// responseRate is aggregate received/sent.
func responseRate(days []warmup.DailyMetrics) float64 {
	var sent, received int
	for _, m := range days {
		sent += m.MessagesSent
		received += m.MessagesReceived
	}
	if sent == 0 {
		return 0
	}
	return float64(received) / float64(sent)
}

func errorRate(days []warmup.DailyMetrics) float64 {
	var sent, errs int
	for _, m := range days {
		sent += m.MessagesSent
		errs += m.Errors
	}
	if sent == 0 {
		return 0
	}
	return float64(errs) / float64(sent)
}

func volume(days []warmup.DailyMetrics) float64 {
	if len(days) == 0 {
		return 0
	}
	sent := 0
	for _, m := range days {
		sent += m.MessagesSent
	}
	return float64(sent) / float64(len(days))
}

func mediaRate(days []warmup.DailyMetrics) float64 {
	var sent, media int
	for _, m := range days {
		sent += m.MessagesSent
		media += m.MediaCount
	}
	if sent == 0 {
		return 0
	}
	return float64(media) / float64(sent)
}

func lastN(days []warmup.DailyMetrics, n int) []warmup.DailyMetrics {
	if len(days) > n {
		return days[len(days)-n:]
	}
	return days
}
