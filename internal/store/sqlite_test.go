package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/glucomem/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err, "create store")
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func TestInsertEventAndRecent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i, summary := range []string{"早餐", "午餐", "晚餐"} {
		_, err := s.InsertEvent(ctx, model.MemoryEvent{
			UserID: "u1", Type: model.EventMeal, Summary: summary,
			Data: map[string]any{"food_items": "米饭"}, Tags: []string{"meal"},
			Importance: 5, EventTime: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	_, err := s.InsertEvent(ctx, model.MemoryEvent{UserID: "u2", Type: model.EventMedication, Importance: 50, EventTime: base})
	require.NoError(t, err)

	events, err := s.RecentEvents(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "晚餐", events[0].Summary)
	assert.Equal(t, "午餐", events[1].Summary)
	assert.Equal(t, "米饭", events[0].Data["food_items"])
	assert.Equal(t, []string{"meal"}, events[0].Tags)
	assert.True(t, base.Add(2*time.Hour).Equal(events[0].EventTime))

	other, err := s.RecentEvents(ctx, "u2", 10)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, 10, other[0].Importance)

	_, err = s.InsertEvent(ctx, model.MemoryEvent{UserID: "u1", Type: "dance"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestDomainRecordValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.InsertBloodSugar(ctx, model.BloodSugarRecord{UserID: "u1", Value: 0, MeasurementType: model.MeasurementFasting})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = s.InsertBloodSugar(ctx, model.BloodSugarRecord{UserID: "u1", Value: 6.1, MeasurementType: "lunch"})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = s.InsertMeal(ctx, model.MealRecord{UserID: "u1", MealType: model.MealLunch})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = s.InsertExercise(ctx, model.ExerciseRecord{UserID: "u1", ExerciseType: "跑步", DurationMinutes: -1, Intensity: model.IntensityLight})
	assert.ErrorIs(t, err, model.ErrValidation)

	bs, err := s.InsertBloodSugar(ctx, model.BloodSugarRecord{UserID: "u1", Value: 6.1, MeasurementType: model.MeasurementFasting, MeasuredAt: base})
	require.NoError(t, err)
	assert.NotEmpty(t, bs.ID)
}

func TestListSinceWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, days := range []int{1, 10, 29, 31, 60} {
		at := base.AddDate(0, 0, -days)
		_, err := s.InsertExercise(ctx, model.ExerciseRecord{UserID: "u1", ExerciseType: "跑步", DurationMinutes: 30, Intensity: model.IntensityModerate, ExerciseTime: at})
		require.NoError(t, err)
		_, err = s.InsertMeal(ctx, model.MealRecord{UserID: "u1", MealType: model.MealLunch, FoodItems: "米饭", MealTime: at})
		require.NoError(t, err)
		_, err = s.InsertBloodSugar(ctx, model.BloodSugarRecord{UserID: "u1", Value: 6, MeasurementType: model.MeasurementFasting, MeasuredAt: at})
		require.NoError(t, err)
	}

	since := base.AddDate(0, 0, -30)
	ex, err := s.ListExerciseSince(ctx, "u1", since)
	require.NoError(t, err)
	assert.Len(t, ex, 3)
	meals, err := s.ListMealsSince(ctx, "u1", since)
	require.NoError(t, err)
	assert.Len(t, meals, 3)
	bs, err := s.ListBloodSugarSince(ctx, "u1", since)
	require.NoError(t, err)
	assert.Len(t, bs, 3)

	recent, err := s.RecentBloodSugar(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, base.AddDate(0, 0, -1).Equal(recent[0].MeasuredAt))
}

func TestInsertPreferenceConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p1, created, err := s.InsertPreference(ctx, model.Preference{UserID: "u1", Type: model.PreferenceAllergy, Content: "花生过敏", NaturalKey: "花生过敏"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.ConfidenceHigh, p1.Confidence)
	assert.Equal(t, model.SourceUserStated, p1.Source)

	p2, created, err := s.InsertPreference(ctx, model.Preference{UserID: "u1", Type: model.PreferenceAllergy, Content: "花生过敏", NaturalKey: "花生过敏"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p1.ID, p2.ID)

	// Same key under another type or user is a different row.
	_, created, err = s.InsertPreference(ctx, model.Preference{UserID: "u1", Type: model.PreferenceDislike, Content: "花生过敏", NaturalKey: "花生过敏"})
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = s.InsertPreference(ctx, model.Preference{UserID: "u2", Type: model.PreferenceAllergy, Content: "花生过敏", NaturalKey: "花生过敏"})
	require.NoError(t, err)
	assert.True(t, created)

	prefs, err := s.ListPreferences(ctx, ListPreferencesParams{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, prefs, 2)
}

func TestInsertPreferenceConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := s.InsertPreference(ctx, model.Preference{
				UserID: "u1", Type: model.PreferenceHabit, Content: "坚持跑步运动", NaturalKey: "exercise:跑步",
				Source: model.SourceInferred, Confidence: model.ConfidenceMedium,
			})
			if err != nil {
				return
			}
			mu.Lock()
			if created {
				createdCount++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	prefs, err := s.ListPreferences(ctx, ListPreferencesParams{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, prefs, 1)
}

func TestFindPreference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _, err := s.InsertPreference(ctx, model.Preference{UserID: "u1", Type: model.PreferenceHabit, Content: "坚持跑步运动，已完成3次", NaturalKey: "exercise:跑步"})
	require.NoError(t, err)
	_, _, err = s.InsertPreference(ctx, model.Preference{UserID: "u1", Type: model.PreferenceHabit, Content: "100% whole_grain bread"})
	require.NoError(t, err)

	got, err := s.FindPreference(ctx, PreferenceQuery{UserID: "u1", Type: model.PreferenceHabit, Fragment: "坚持跑步运动"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "exercise:跑步", got.NaturalKey)

	got, err = s.FindPreference(ctx, PreferenceQuery{UserID: "u1", Type: model.PreferenceHabit, NaturalKey: "exercise:跑步"})
	require.NoError(t, err)
	require.NotNil(t, got)

	// Wildcards in the fragment are literal.
	got, err = s.FindPreference(ctx, PreferenceQuery{UserID: "u1", Type: model.PreferenceHabit, Fragment: "0% w"})
	require.NoError(t, err)
	require.NotNil(t, got)
	got, err = s.FindPreference(ctx, PreferenceQuery{UserID: "u1", Type: model.PreferenceHabit, Fragment: "1_0"})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.FindPreference(ctx, PreferenceQuery{UserID: "u1", Type: model.PreferenceAllergy, Fragment: "坚持"})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.FindPreference(ctx, PreferenceQuery{UserID: "u1", Type: model.PreferenceHabit})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRefreshPreference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, _, err := s.InsertPreference(ctx, model.Preference{UserID: "u1", Type: model.PreferenceHabit, Content: "坚持跑步运动，已完成3次",
		NaturalKey: "exercise:跑步", Confidence: model.ConfidenceMedium, Source: model.SourceInferred})
	require.NoError(t, err)

	require.NoError(t, s.RefreshPreference(ctx, PreferenceRefresh{ID: p.ID, Content: "坚持跑步运动，已完成5次", Confidence: model.ConfidenceHigh, At: base}))
	got, err := s.FindPreference(ctx, PreferenceQuery{UserID: "u1", Type: model.PreferenceHabit, NaturalKey: "exercise:跑步"})
	require.NoError(t, err)
	assert.Equal(t, "坚持跑步运动，已完成5次", got.Content)
	assert.Equal(t, model.ConfidenceHigh, got.Confidence)

	require.NoError(t, s.RefreshPreference(ctx, PreferenceRefresh{ID: p.ID, Content: "坚持跑步运动，已完成6次", At: base}))
	got, _ = s.FindPreference(ctx, PreferenceQuery{UserID: "u1", Type: model.PreferenceHabit, NaturalKey: "exercise:跑步"})
	assert.Equal(t, model.ConfidenceHigh, got.Confidence)

	err = s.RefreshPreference(ctx, PreferenceRefresh{ID: "missing", Content: "x"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestInsertPatternReinforce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	in := InsertPatternParams{Pattern: model.BehaviorPattern{
		UserID: "u1", Type: model.PatternFoodReaction, Description: "吃白粥后血糖明显升高",
		NaturalKey: "吃白粥后血糖明显升高", Confidence: model.ConfidenceLow, LastObservedAt: base,
	}}
	p1, created, err := s.InsertPattern(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, p1.EvidenceCount)

	in.Pattern.Confidence = model.ConfidenceHigh
	p2, created, err := s.InsertPattern(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, 2, p2.EvidenceCount)
	assert.Equal(t, model.ConfidenceHigh, p2.Confidence)

	in.Pattern.Confidence = model.ConfidenceLow
	p3, _, err := s.InsertPattern(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 3, p3.EvidenceCount)
	assert.Equal(t, model.ConfidenceHigh, p3.Confidence, "confidence never drops")

	require.NoError(t, s.ReinforcePattern(ctx, PatternReinforce{ID: p1.ID, Confidence: model.ConfidenceMedium, At: base}))
	got, err := s.FindPattern(ctx, PatternQuery{UserID: "u1", Type: model.PatternFoodReaction, Fragment: "白粥"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.EvidenceCount)
	assert.Equal(t, model.ConfidenceHigh, got.Confidence)
}

func TestInsertPatternRefresh(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	in := InsertPatternParams{Merge: MergeRefresh, Pattern: model.BehaviorPattern{
		UserID: "u1", Type: model.PatternActivityImpact, Description: "规律进行跑步运动，有助于血糖控制",
		NaturalKey: "exercise:跑步", Confidence: model.ConfidenceHigh, EvidenceCount: 5,
		Data: map[string]any{"count": 5}, LastObservedAt: base,
	}}
	p1, created, err := s.InsertPattern(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 5, p1.EvidenceCount)

	in.Pattern.EvidenceCount = 5
	p2, created, err := s.InsertPattern(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 5, p2.EvidenceCount, "re-running with the same count is a no-op")

	in.Pattern.EvidenceCount = 7
	p3, _, err := s.InsertPattern(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 7, p3.EvidenceCount)

	require.NoError(t, s.RefreshPattern(ctx, PatternRefresh{ID: p1.ID, EvidenceCount: 4, At: base}))
	got, err := s.FindPattern(ctx, PatternQuery{UserID: "u1", Type: model.PatternActivityImpact, NaturalKey: "exercise:跑步"})
	require.NoError(t, err)
	assert.Equal(t, 7, got.EvidenceCount, "evidence never decreases")
	assert.EqualValues(t, 5, got.Data["count"])
}

func TestListPatterns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i, desc := range []string{"a pattern", "b pattern", "c pattern"} {
		_, _, err := s.InsertPattern(ctx, InsertPatternParams{Merge: MergeRefresh, Pattern: model.BehaviorPattern{
			UserID: "u1", Type: model.PatternTimePattern, Description: desc, EvidenceCount: i + 1, LastObservedAt: base,
		}})
		require.NoError(t, err)
	}

	patterns, err := s.ListPatterns(ctx, ListPatternsParams{UserID: "u1", MinEvidence: 2})
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.Equal(t, "c pattern", patterns[0].Description)
	assert.Equal(t, 3, patterns[0].EvidenceCount)
}

func TestResolveFeedback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	f, err := s.InsertFeedback(ctx, model.FeedbackRecord{UserID: "u1", SuggestionContent: "晚餐米饭减半", Category: model.CategoryDiet})
	require.NoError(t, err)
	assert.False(t, f.Resolved())

	pending, err := s.ListFeedback(ctx, ListFeedbackParams{UserID: "u1", PendingOnly: true})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = s.ResolveFeedback(ctx, ResolveFeedbackParams{UserID: "u1", FeedbackID: f.ID, ActionTaken: true})
	assert.ErrorIs(t, err, model.ErrValidation, "outcome required when acted on")

	bad := 11
	_, err = s.ResolveFeedback(ctx, ResolveFeedbackParams{UserID: "u1", FeedbackID: f.ID, ActionTaken: false, EffectivenessScore: &bad})
	assert.ErrorIs(t, err, model.ErrValidation)

	before, after, score := 9.2, 7.1, 8
	got, err := s.ResolveFeedback(ctx, ResolveFeedbackParams{
		UserID: "u1", FeedbackID: f.ID, ActionTaken: true, OutcomeDescription: "餐后血糖下降",
		BloodSugarBefore: &before, BloodSugarAfter: &after, EffectivenessScore: &score, At: base,
	})
	require.NoError(t, err)
	require.True(t, got.Resolved())
	assert.True(t, *got.ActionTaken)
	assert.Equal(t, 8, *got.EffectivenessScore)
	assert.InDelta(t, 7.1, *got.BloodSugarAfter, 1e-9)
	require.NotNil(t, got.ResolvedAt)

	_, err = s.ResolveFeedback(ctx, ResolveFeedbackParams{UserID: "u1", FeedbackID: f.ID, ActionTaken: false})
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = s.ResolveFeedback(ctx, ResolveFeedbackParams{UserID: "u2", FeedbackID: f.ID, ActionTaken: false})
	assert.ErrorIs(t, err, model.ErrNotFound)

	resolved, err := s.ListFeedback(ctx, ListFeedbackParams{UserID: "u1", ResolvedOnly: true})
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
}

func TestMergeProfile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = s.MergeProfile(ctx, ProfileUpdate{UserID: "u1", DiabetesType: "type2", Medication: "二甲双胍", At: base})
	require.NoError(t, err)
	assert.Equal(t, "type2", p.DiabetesType)

	p, err = s.MergeProfile(ctx, ProfileUpdate{UserID: "u1", HealthNotes: "高血压", TargetBloodSugarMin: 4.4, TargetBloodSugarMax: 7.0, At: base})
	require.NoError(t, err)
	assert.Equal(t, "type2", p.DiabetesType, "empty fields keep stored values")
	assert.Equal(t, "二甲双胍", p.Medication)
	assert.Equal(t, "高血压", p.HealthNotes)
	assert.Equal(t, 4.4, p.TargetBloodSugarMin)

	_, err = s.MergeProfile(ctx, ProfileUpdate{UserID: "u1", TargetBloodSugarMin: 8, TargetBloodSugarMax: 7})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestTurnLog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.InsertTurnLog(ctx, model.TurnLog{
		UserID: "u1", UserMessage: "我昨天跑步了30分钟", Status: "success",
		DataRecorded: map[string]int{"exercise": 1}, ProcessingTimeMS: 12,
	})
	require.NoError(t, err)

	logs, err := s.ListTurnLogs(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 1, logs[0].DataRecorded["exercise"])
	assert.Equal(t, "success", logs[0].Status)
}

func TestStatsAndExport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "stats.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.InsertEvent(ctx, model.MemoryEvent{UserID: "u1", Type: model.EventConversation, Summary: "聊天", EventTime: base})
	require.NoError(t, err)
	_, err = s.InsertMeal(ctx, model.MealRecord{UserID: "u1", MealType: model.MealLunch, FoodItems: "面条", MealTime: base})
	require.NoError(t, err)
	_, err = s.InsertFeedback(ctx, model.FeedbackRecord{UserID: "u1", SuggestionContent: "多喝水"})
	require.NoError(t, err)
	_, err = s.InsertEvent(ctx, model.MemoryEvent{UserID: "u2", Type: model.EventConversation, EventTime: base})
	require.NoError(t, err)

	st, err := s.Stats(ctx, dbPath, "")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Users)
	assert.Equal(t, 1, st.PendingFeedback)
	counts := map[string]int{}
	for _, ts := range st.Tables {
		counts[ts.Table] = ts.Count
	}
	assert.Equal(t, 2, counts["memory_events"])
	assert.Equal(t, 1, counts["meal_records"])

	st, err = s.Stats(ctx, dbPath, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Users)
	assert.Equal(t, 0, st.PendingFeedback)

	ex, err := s.ExportAll(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, ex.Events, 1)
	assert.Len(t, ex.Meals, 1)
	assert.Len(t, ex.Feedback, 1)
	assert.Nil(t, ex.Profile)
}
