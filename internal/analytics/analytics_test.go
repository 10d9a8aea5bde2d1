package analytics

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func day(date string, stage, sent, received, media, errs int) warmup.DailyMetrics {
	m := warmup.DailyMetrics{
		Date:             date,
		Stage:            stage,
		MessagesSent:     sent,
		MessagesReceived: received,
		MediaCount:       media,
		Errors:           errs,
	}
	if sent > 0 {
		m.ResponseRate = float64(received) / float64(sent)
	}
	return m
}

func newTestEngine(t *testing.T, stage int, history map[string][]warmup.DailyMetrics) (*Engine, *warmup.Registry) {
	t.Helper()
	r := warmup.NewRegistry(nil, nil)
	r.SetClock(func() time.Time { return testNow })
	for name, metrics := range history {
		require.NoError(t, r.Restore(warmup.InstanceSnapshot{
			Config:  warmup.Config{InstanceName: name, CurrentStage: stage, StartDate: testNow.AddDate(0, 0, -30)},
			Metrics: metrics,
		}))
	}
	return NewEngine(r), r
}

func tenDays() []warmup.DailyMetrics {
	var out []warmup.DailyMetrics
	for i := 1; i <= 10; i++ {
		out = append(out, day(fmt.Sprintf("2024-03-%02d", i), 1, 5, 5, 0, 0))
	}
	return out
}

// ===== PERIODS =====

func TestParsePeriod(t *testing.T) {
	assert.Equal(t, PeriodWeek, ParsePeriod("week"))
	assert.Equal(t, PeriodMonth, ParsePeriod(" Month "))
	assert.Equal(t, PeriodAll, ParsePeriod("all"))
	assert.Equal(t, PeriodWeek, ParsePeriod(""))
	assert.Equal(t, PeriodWeek, ParsePeriod("fortnight"))
}

func TestGeneratePeriodFilter(t *testing.T) {
	e, _ := newTestEngine(t, 1, map[string][]warmup.DailyMetrics{"sales": tenDays()})

	tests := []struct {
		period    Period
		wantDays  int
		wantFirst string
	}{
		{PeriodWeek, 7, "2024-03-04"},
		{PeriodMonth, 10, "2024-03-01"},
		{PeriodAll, 10, "2024-03-01"},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			rep, err := e.Generate("sales", tt.period)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDays, rep.Summary.DaysActive)
			assert.Equal(t, tt.wantDays*5, rep.Summary.TotalMessagesSent)
			require.Len(t, rep.StageProgression, 1)
			assert.Equal(t, tt.wantFirst, rep.StageProgression[0].StartDate)
			assert.Equal(t, tt.wantDays, rep.StageProgression[0].DaysInStage)
		})
	}
}

func TestGenerateUnknownInstance(t *testing.T) {
	e, _ := newTestEngine(t, 1, nil)
	_, err := e.Generate("ghost", PeriodWeek)
	assert.True(t, errors.Is(err, warmup.ErrConfigNotFound))
}

func TestGenerateNoHistory(t *testing.T) {
	e, _ := newTestEngine(t, 1, map[string][]warmup.DailyMetrics{"sales": nil})
	rep, err := e.Generate("sales", PeriodAll)
	require.NoError(t, err)
	assert.Zero(t, rep.Summary.DaysActive)
	assert.Empty(t, rep.StageProgression)
	assert.Equal(t, []string{recStart}, rep.Recommendations)
}

// ===== AGGREGATES =====

func TestGenerateSummaryAndExtremes(t *testing.T) {
	history := []warmup.DailyMetrics{
		day("2024-03-06", 1, 4, 2, 0, 0),
		day("2024-03-07", 1, 5, 5, 0, 0),
		day("2024-03-08", 2, 10, 10, 1, 1),
		day("2024-03-09", 2, 10, 2, 0, 0),
		day("2024-03-10", 2, 6, 6, 0, 0),
	}
	e, _ := newTestEngine(t, 2, map[string][]warmup.DailyMetrics{"sales": history})

	rep, err := e.Generate("sales", PeriodAll)
	require.NoError(t, err)

	assert.Equal(t, 35, rep.Summary.TotalMessagesSent)
	assert.Equal(t, 25, rep.Summary.TotalMessagesReceived)
	assert.InDelta(t, 25.0/35.0, rep.Summary.AverageResponseRate, 1e-9)
	assert.Equal(t, 1, rep.Summary.TotalErrors)
	assert.InDelta(t, 7.0, rep.Summary.AverageMessagesPerDay, 1e-9)

	// 03-07, 03-08 and 03-10 all reach 1.0; the earliest wins.
	assert.Equal(t, "2024-03-07", rep.BestDay.Date)
	assert.Equal(t, "2024-03-09", rep.WorstDay.Date)

	assert.Equal(t, []StageSpan{
		{Stage: 1, StartDate: "2024-03-06", DaysInStage: 2},
		{Stage: 2, StartDate: "2024-03-08", DaysInStage: 3},
	}, rep.StageProgression)
}

func TestTrends(t *testing.T) {
	tests := []struct {
		name string
		days []warmup.DailyMetrics
		want Trends
	}{
		{
			name: "single day",
			days: []warmup.DailyMetrics{day("2024-03-10", 1, 5, 5, 0, 0)},
			want: Trends{},
		},
		{
			name: "improving",
			days: []warmup.DailyMetrics{
				day("2024-03-07", 1, 10, 5, 0, 1),
				day("2024-03-08", 1, 10, 5, 0, 1),
				day("2024-03-09", 1, 20, 20, 0, 1),
				day("2024-03-10", 1, 20, 20, 0, 1),
			},
			want: Trends{ResponseRateTrend: 100, VolumeTrend: 100, ErrorRateTrend: -50},
		},
		{
			name: "no baseline",
			days: []warmup.DailyMetrics{
				day("2024-03-09", 1, 0, 0, 0, 0),
				day("2024-03-10", 1, 5, 5, 0, 0),
			},
			want: Trends{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := trends(tt.days)
			assert.InDelta(t, tt.want.ResponseRateTrend, got.ResponseRateTrend, 1e-9)
			assert.InDelta(t, tt.want.VolumeTrend, got.VolumeTrend, 1e-9)
			assert.InDelta(t, tt.want.ErrorRateTrend, got.ErrorRateTrend, 1e-9)
		})
	}
}

// ===== RECOMMENDATIONS =====

func TestRecommendationsHealthyStageOne(t *testing.T) {
	history := []warmup.DailyMetrics{
		day("2024-03-08", 1, 5, 5, 0, 0),
		day("2024-03-09", 1, 5, 5, 0, 0),
		day("2024-03-10", 1, 5, 5, 0, 0),
	}
	e, _ := newTestEngine(t, 1, map[string][]warmup.DailyMetrics{"sales": history})

	rep, err := e.Generate("sales", PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, []string{recHighResp, recReady}, rep.Recommendations)
}

func TestRecommendationsStruggling(t *testing.T) {
	history := []warmup.DailyMetrics{
		day("2024-03-09", 3, 4, 1, 0, 1),
		day("2024-03-10", 3, 4, 1, 0, 1),
	}
	e, _ := newTestEngine(t, 3, map[string][]warmup.DailyMetrics{"sales": history})

	rep, err := e.Generate("sales", PeriodWeek)
	require.NoError(t, err)
	require.Len(t, rep.Recommendations, 4)
	assert.Equal(t, recLowResp, rep.Recommendations[0])
	assert.Equal(t, recHighErrors, rep.Recommendations[1])
	assert.Contains(t, rep.Recommendations[2], "stage 3")
	assert.Equal(t, recMedia, rep.Recommendations[3])
}

// ===== HEALTH =====

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		history []warmup.DailyMetrics
		want    int
	}{
		{"no history", nil, 50},
		{"perfect", []warmup.DailyMetrics{day("2024-03-10", 1, 10, 10, 0, 0)}, 100},
		{"half response with errors", []warmup.DailyMetrics{day("2024-03-10", 1, 10, 5, 0, 1)}, 25},
		{"error rate beyond penalty", []warmup.DailyMetrics{day("2024-03-10", 1, 10, 10, 0, 5)}, 50},
		{"only last seven days count", append(
			[]warmup.DailyMetrics{day("2024-03-01", 1, 10, 0, 0, 10)},
			tenDays()[3:]...,
		), 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.history))
		})
	}
}

func TestHealthStatus(t *testing.T) {
	assert.Equal(t, "Excellent", HealthStatus(80))
	assert.Equal(t, "Good", HealthStatus(79))
	assert.Equal(t, "Good", HealthStatus(60))
	assert.Equal(t, "Fair", HealthStatus(40))
	assert.Equal(t, "Poor", HealthStatus(39))
}

func TestHealthScoreUnknownInstance(t *testing.T) {
	e, _ := newTestEngine(t, 1, nil)
	_, err := e.HealthScore("ghost")
	assert.ErrorIs(t, err, warmup.ErrConfigNotFound)
}

// ===== DASHBOARD & COMPARE =====

func TestDashboard(t *testing.T) {
	e, _ := newTestEngine(t, 1, map[string][]warmup.DailyMetrics{"sales": tenDays()})

	d, err := e.Dashboard("sales")
	require.NoError(t, err)

	assert.Equal(t, 1, d.CurrentStage)
	assert.Equal(t, 100, d.HealthScore)
	assert.Equal(t, "Excellent", d.HealthStatus)
	assert.Equal(t, 5, d.Today.MessagesSent)
	assert.Equal(t, 0, d.Today.RemainingMessages)
	assert.Equal(t, 7, d.Week.DaysActive)
	assert.Equal(t, 35, d.Week.TotalMessagesSent)
	assert.Equal(t, 50, d.Overall.TotalMessagesSent)
	assert.True(t, d.Advancement.Allowed)
	assert.Equal(t, 5, d.StageLimits.DailyLimit)
	assert.False(t, d.StageLimits.AllowedMedia)
}

func TestDashboardNothingSentToday(t *testing.T) {
	e, _ := newTestEngine(t, 2, map[string][]warmup.DailyMetrics{"sales": nil})

	d, err := e.Dashboard("sales")
	require.NoError(t, err)
	assert.Equal(t, 15, d.Today.RemainingMessages)
	assert.Equal(t, 50, d.HealthScore)
	assert.False(t, d.Advancement.Allowed)
}

func TestCompare(t *testing.T) {
	e, _ := newTestEngine(t, 1, map[string][]warmup.DailyMetrics{
		"sales":   {day("2024-03-10", 1, 10, 10, 0, 0)},
		"support": {day("2024-03-10", 1, 4, 2, 0, 1)},
	})

	c, err := e.Compare("sales", "support")
	require.NoError(t, err)
	assert.Equal(t, "sales", c.First.Name)
	assert.Equal(t, "support", c.Second.Name)
	assert.Equal(t, 6, c.Differences.MessagesSentDiff)
	assert.InDelta(t, 0.5, c.Differences.ResponseRateDiff, 1e-9)
	assert.Equal(t, -1, c.Differences.ErrorsDiff)
	assert.Equal(t, c.First.HealthScore-c.Second.HealthScore, c.Differences.HealthScoreDiff)

	_, err = e.Compare("sales", "ghost")
	assert.ErrorIs(t, err, warmup.ErrConfigNotFound)
}

// ===== EXPORT =====

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []warmup.DailyMetrics{
		day("2024-03-09", 1, 3, 2, 0, 0),
		day("2024-03-10", 2, 4, 4, 1, 1),
	})
	require.NoError(t, err)

	want := "Date,Stage,Messages Sent,Messages Received,Response Rate,Media Count,Unique Contacts,Errors\n" +
		"2024-03-09,1,3,2,0.667,0,0,0\n" +
		"2024-03-10,2,4,4,1.000,1,0,1\n"
	assert.Equal(t, want, buf.String())
}

func TestExport(t *testing.T) {
	e, _ := newTestEngine(t, 1, map[string][]warmup.DailyMetrics{"sales": tenDays(), "empty": nil})

	exp, err := e.Export("sales")
	require.NoError(t, err)
	assert.Equal(t, "sales", exp.InstanceName)
	assert.Len(t, exp.Metrics, 10)
	assert.True(t, exp.ExportedAt.Equal(testNow))

	exp, err = e.Export("empty")
	require.NoError(t, err)
	assert.NotNil(t, exp.Metrics)
	assert.Empty(t, exp.Metrics)
}
