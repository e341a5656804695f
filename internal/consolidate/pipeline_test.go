package consolidate

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/glucomem/internal/delta"
	"github.com/rcliao/glucomem/internal/model"
	"github.com/rcliao/glucomem/internal/store"
)

func newTestConsolidator(s store.Store) *Consolidator {
	return NewConsolidator(s, zerolog.Nop(), newTestReconciler(s), newTestDetector(s))
}

func TestProcessTurnYesterdayRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := newTestConsolidator(s)

	out := c.ProcessTurn(ctx, Input{
		UserID:      testUser,
		UserMessage: "我昨天跑步了30分钟",
		RawAssistantText: "真棒！坚持运动对血糖控制很有帮助。\n" + delta.Marker + "\n" +
			`{"events":[{"type":"exercise","summary":"跑步30分钟","data":{"exercise_type":"跑步","duration_minutes":30,"intensity":"moderate","time_expression":"昨天"}}]}`,
		Now: now,
	})

	assert.Equal(t, StatusSuccess, out.Status)
	assert.True(t, out.DeltaFound)
	assert.False(t, out.Malformed)
	assert.NotEmpty(t, out.SessionID)
	assert.Equal(t, 1, out.EventsApplied)
	assert.Equal(t, DomainRecordCounts{Exercise: 1}, out.DomainRecordCounts)
	require.NotNil(t, out.Habits)

	events, err := s.RecentEvents(ctx, testUser, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventExercise, events[0].Type)

	records, err := s.ListExerciseSince(ctx, testUser, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].ExerciseTime.Equal(now.AddDate(0, 0, -1)), "got %s", records[0].ExerciseTime)
	assert.Equal(t, 30, records[0].DurationMinutes)
	assert.Equal(t, model.IntensityModerate, records[0].Intensity)

	logs, err := s.ListTurnLogs(ctx, testUser, 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, out.SessionID, logs[0].SessionID)
	assert.Equal(t, StatusSuccess, logs[0].Status)
	assert.Equal(t, 1, logs[0].DataRecorded["exercise"])
}

func TestProcessTurnUsesMessageTimeForEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := newTestConsolidator(s)

	c.ProcessTurn(ctx, Input{
		UserID:           testUser,
		UserMessage:      "今天下午3点测了血糖8.2",
		RawAssistantText: delta.Marker + `{"events":[{"type":"blood_sugar","data":{"value":8.2,"measurement_type":"after_meal"}}]}`,
		Now:              now,
	})

	readings, err := s.RecentBloodSugar(ctx, testUser, 5)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 15, readings[0].MeasuredAt.Hour())
	assert.Equal(t, now.Day(), readings[0].MeasuredAt.Day())
}

func TestProcessTurnMalformedStillDetectsHabits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addExercise(t, s, "跑步", 3)
	c := newTestConsolidator(s)

	out := c.ProcessTurn(ctx, Input{
		UserID:           testUser,
		UserMessage:      "好的",
		RawAssistantText: "收到。\n" + delta.Marker + "\n{\"events\": [",
		Now:              now,
	})

	assert.Equal(t, StatusMalformed, out.Status)
	assert.True(t, out.Malformed)
	assert.NotEmpty(t, out.MalformedReason)
	assert.Zero(t, out.EventsApplied)
	require.NotNil(t, out.Habits)
	assert.Equal(t, 1, domainReport(t, *out.Habits, DomainExercise).Created)
	assert.Len(t, habitPrefs(t, s), 1)
}

func TestProcessTurnNoDelta(t *testing.T) {
	s := newTestStore(t)
	out := newTestConsolidator(s).ProcessTurn(context.Background(), Input{
		UserID:           testUser,
		UserMessage:      "你好",
		RawAssistantText: "你好！今天感觉怎么样？",
		Now:              now,
	})
	assert.Equal(t, StatusNoDelta, out.Status)
	assert.False(t, out.DeltaFound)
	assert.NotNil(t, out.Habits)
}

func TestProcessTurnCancelledSkipsWork(t *testing.T) {
	s := newTestStore(t)
	addExercise(t, s, "跑步", 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newTestConsolidator(s).ProcessTurn(ctx, Input{
		UserID:           testUser,
		UserMessage:      "我吃了早饭",
		RawAssistantText: delta.Marker + `{"events":[{"type":"meal","data":{"food_items":"包子","meal_type":"breakfast"}}]}`,
		Now:              now,
	})

	assert.Equal(t, StatusCancelled, out.Status)
	assert.Nil(t, out.Habits)
	assert.Empty(t, habitPrefs(t, s))

	logs, err := s.ListTurnLogs(context.Background(), testUser, 5)
	require.NoError(t, err)
	require.Len(t, logs, 1, "the turn is still logged")
	assert.Equal(t, StatusCancelled, logs[0].Status)
}

func TestProcessTurnLogFailureIsNotFatal(t *testing.T) {
	s := newTestStore(t)
	fs := &failingStore{Store: s, failTurnLog: true}
	c := NewConsolidator(fs, zerolog.Nop(), nil, nil)

	out := c.ProcessTurn(context.Background(), Input{
		UserID:           testUser,
		UserMessage:      "早上空腹血糖6.0",
		RawAssistantText: delta.Marker + `{"events":[{"type":"blood_sugar","data":{"value":6.0,"measurement_type":"fasting"}}]}`,
		Now:              now,
	})
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, 1, out.DomainRecordCounts.BloodSugar)
}
