package warmup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(date string, stage, sent, received, errs int) DailyMetrics {
	m := DailyMetrics{Date: date, Stage: stage}
	m.apply(MetricsDelta{MessagesSent: sent, MessagesReceived: received, Errors: errs})
	return m
}

func TestEvaluateAdvancement(t *testing.T) {
	stage1, _ := StageByID(1)
	stage2, _ := StageByID(2)
	stage6, _ := StageByID(6)

	tests := []struct {
		name    string
		stage   Stage
		history []DailyMetrics
		allowed bool
	}{
		{
			name:  "mean below required",
			stage: stage1,
			history: []DailyMetrics{
				day("2024-03-01", 1, 10, 10, 0),
				day("2024-03-02", 1, 10, 10, 0),
				day("2024-03-03", 1, 10, 9, 0),
			},
			allowed: false,
		},
		{
			name: "too few days",
			stage: stage1,
			history: []DailyMetrics{
				day("2024-03-01", 1, 5, 5, 0),
				day("2024-03-02", 1, 5, 5, 0),
			},
			allowed: false,
		},
		{
			name:  "perfect window",
			stage: stage1,
			history: []DailyMetrics{
				day("2024-03-01", 1, 5, 5, 0),
				day("2024-03-02", 1, 5, 5, 0),
				day("2024-03-03", 1, 5, 5, 0),
			},
			allowed: true,
		},
		{
			name:  "only latest window counts",
			stage: stage1,
			history: []DailyMetrics{
				day("2024-03-01", 1, 5, 0, 0),
				day("2024-03-02", 1, 5, 5, 0),
				day("2024-03-03", 1, 5, 5, 0),
				day("2024-03-04", 1, 5, 5, 0),
			},
			allowed: true,
		},
		{
			name:  "error rate at threshold",
			stage: stage2,
			history: []DailyMetrics{
				day("2024-03-01", 2, 10, 10, 1),
				day("2024-03-02", 2, 10, 10, 1),
				day("2024-03-03", 2, 10, 10, 1),
				day("2024-03-04", 2, 10, 10, 1),
			},
			allowed: false,
		},
		{
			name:  "error rate just below threshold",
			stage: stage2,
			history: []DailyMetrics{
				day("2024-03-01", 2, 10, 9, 1),
				day("2024-03-02", 2, 10, 8, 0),
				day("2024-03-03", 2, 10, 8, 0),
				day("2024-03-04", 2, 10, 8, 2),
			},
			allowed: true,
		},
		{
			name:  "records from earlier stage ignored",
			stage: stage2,
			history: []DailyMetrics{
				day("2024-03-01", 1, 5, 5, 0),
				day("2024-03-02", 1, 5, 5, 0),
				day("2024-03-03", 1, 5, 5, 0),
				day("2024-03-04", 2, 10, 10, 0),
				day("2024-03-05", 2, 10, 10, 0),
				day("2024-03-06", 2, 10, 10, 0),
			},
			allowed: false,
		},
		{
			name:  "errors with nothing sent",
			stage: stage1,
			history: []DailyMetrics{
				day("2024-03-01", 1, 0, 0, 1),
				day("2024-03-02", 1, 0, 0, 0),
				day("2024-03-03", 1, 0, 0, 0),
			},
			allowed: false,
		},
		{
			name:  "maximum stage",
			stage: stage6,
			history: []DailyMetrics{
				day("2024-03-01", 6, 10, 10, 0),
			},
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := EvaluateAdvancement(tt.stage, tt.history)
			assert.Equal(t, tt.allowed, ev.Allowed, ev.Reason)
			assert.NotEmpty(t, ev.Reason)
		})
	}
}

func TestEvaluateAdvancementMean(t *testing.T) {
	stage1, _ := StageByID(1)
	ev := EvaluateAdvancement(stage1, []DailyMetrics{
		day("2024-03-01", 1, 10, 10, 0),
		day("2024-03-02", 1, 10, 10, 0),
		day("2024-03-03", 1, 10, 9, 0),
	})
	assert.InDelta(t, 0.9667, ev.MeanResponseRate, 0.0001)
	assert.False(t, ev.Allowed)
	assert.Equal(t, 3, ev.DaysAtStage)
}

func TestAdvanceStage(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Restore(InstanceSnapshot{
		Config: Config{InstanceName: "sales", CurrentStage: 1, Contacts: testContacts,
			InternalContacts: testContacts[:5], ExternalContacts: testContacts[5:]},
		Metrics: []DailyMetrics{
			day("2024-03-01", 1, 5, 5, 0),
			day("2024-03-02", 1, 5, 5, 0),
			day("2024-03-03", 1, 5, 5, 0),
		},
	}))

	ok, err := r.CanAdvance("sales")
	require.NoError(t, err)
	assert.True(t, ok.Allowed)

	ev, err := r.AdvanceStage("sales")
	require.NoError(t, err)
	assert.True(t, ev.Allowed)
	assert.Equal(t, 2, ev.NewStage)

	// the stage-1 history does not count towards stage 2
	ev, err = r.AdvanceStage("sales")
	require.NoError(t, err)
	assert.False(t, ev.Allowed)

	stage, err := r.CurrentStage("sales")
	require.NoError(t, err)
	assert.Equal(t, 2, stage.ID)
	limit, err := r.DailyLimit("sales")
	require.NoError(t, err)
	assert.Equal(t, 15, limit)
}

func TestAdvanceStageNeverPassesMaximum(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Restore(InstanceSnapshot{
		Config: Config{InstanceName: "prod", CurrentStage: MaxStage, Contacts: testContacts},
	}))

	for i := 0; i < 3; i++ {
		ev, err := r.AdvanceStage("prod")
		require.NoError(t, err)
		assert.False(t, ev.Allowed)
		assert.Equal(t, "already at maximum stage", ev.Reason)
	}
	stage, err := r.CurrentStage("prod")
	require.NoError(t, err)
	assert.Equal(t, MaxStage, stage.ID)
}

func TestAdvanceStageUnknownInstance(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.AdvanceStage("ghost")
	assert.ErrorIs(t, err, ErrConfigNotFound)
}
