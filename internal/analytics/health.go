package analytics

import (
	"fmt"
	"math"

	"github.com/ignite/whatsapp-warmup/internal/pkg/logger"
	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

// healthWindow is how many recent days the health score looks at.
const healthWindow = 7

// HealthScore rates the last week of an instance from 0 to 100: up to 50
// points for response rate and up to 50 for a low error rate. An instance
// with no history scores 50.
func (e *Engine) HealthScore(name string) (int, error) {
	if _, err := e.src.Config(name); err != nil {
		return 0, err
	}
	return Score(e.src.Metrics(name)), nil
}

// Score computes the health score of a metrics history.
func Score(history []warmup.DailyMetrics) int {
	if len(history) == 0 {
		return 50
	}
	recent := lastN(history, healthWindow)
	responsePts := responseRate(recent) * 50
	errorPts := math.Max(0, 50-errorRate(recent)*500)
	return int(math.Min(100, math.Round(responsePts+errorPts)))
}

// HealthStatus labels a health score.
func HealthStatus(score int) string {
	switch {
	case score >= 80:
		return "Excellent"
	case score >= 60:
		return "Good"
	case score >= 40:
		return "Fair"
	default:
		return "Poor"
	}
}

const (
	recStart      = "Start sending messages to collect data and analytics."
	recLowResp    = "Low response rate. Review message content and contact targeting."
	recHighResp   = "Excellent response rate! Consider advancing to the next stage."
	recHighErrors = "High error rate. Check the gateway connection and contact validity."
	recReady      = "Metrics suggest the instance is ready to advance to the next warm-up stage."
	recMedia      = "Consider adding more varied content (images, documents) to improve engagement."
)

// recommend builds the rule-based advice for a period of history.
func (e *Engine) recommend(name string, stageID int, days []warmup.DailyMetrics) []string {
	recent := lastN(days, healthWindow)
	var recs []string

	rr := responseRate(recent)
	switch {
	case rr < 0.5:
		recs = append(recs, recLowResp)
	case rr > 0.8:
		recs = append(recs, recHighResp)
	}
	if errorRate(recent) > warmup.MaxErrorRate {
		recs = append(recs, recHighErrors)
	}
	if stage, ok := warmup.StageByID(stageID); ok && volume(recent) < float64(stage.MaxDailyMessages)*0.5 {
		recs = append(recs, fmt.Sprintf("Volume below expectations for stage %d. Consider gradually increasing the number of messages.", stageID))
	}
	if ev, err := e.src.CanAdvance(name); err != nil {
		logger.Warn("advancement check failed", "instance", name, "error", err)
	} else if ev.Allowed {
		recs = append(recs, recReady)
	}
	if stageID > 2 && mediaRate(recent) < 0.1 {
		recs = append(recs, recMedia)
	}
	return recs
}
