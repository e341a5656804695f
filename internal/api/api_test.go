package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/glucomem/internal/consolidate"
	"github.com/rcliao/glucomem/internal/delta"
	"github.com/rcliao/glucomem/internal/model"
	"github.com/rcliao/glucomem/internal/recall"
	"github.com/rcliao/glucomem/internal/store"
)

var fixedNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (http.Handler, *store.SQLiteStore) {
	t.Helper()
	return newTestServerIn(t, nil)
}

func newTestServerIn(t *testing.T, loc *time.Location) (http.Handler, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	log := zerolog.Nop()
	h := NewHandler(s, consolidate.NewConsolidator(s, log, nil, nil), recall.NewAssembler(s, time.UTC), log)
	h.now = func() time.Time { return fixedNow }
	return NewRouter(h.WithLocation(loc)), s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProcessTurnEndpoint(t *testing.T) {
	h, s := newTestServer(t)

	block := `{"events":[{"type":"exercise","summary":"跑步30分钟","data":{"exercise_type":"跑步","duration_minutes":30,"intensity":"moderate","time_expression":"昨天"}}]}`
	body, err := json.Marshal(map[string]string{
		"userMessage":      "我昨天跑步了30分钟",
		"rawAssistantText": "很好！\n" + delta.Marker + "\n" + block,
	})
	require.NoError(t, err)

	rec := do(t, h, http.MethodPost, "/v1/users/u1/turns", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.EqualValues(t, 1, out["eventsApplied"])
	assert.EqualValues(t, 0, out["patternsApplied"])
	assert.EqualValues(t, 0, out["preferencesApplied"])
	assert.Equal(t, false, out["profileUpdated"])
	assert.Equal(t, map[string]any{"bloodSugar": 0.0, "meal": 0.0, "exercise": 1.0}, out["domainRecordCounts"])
	assert.Equal(t, "success", out["status"])

	records, err := s.ListExerciseSince(context.Background(), "u1", fixedNow.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].ExerciseTime.Equal(fixedNow.AddDate(0, 0, -1)))
}

func TestProcessTurnResolvesClientTimeInUserZone(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)
	block := delta.Marker + `{"events":[{"type":"meal","data":{"food_items":"米饭","meal_type":"lunch"}}]}`

	tests := []struct {
		name    string
		message string
		now     string
		want    time.Time
	}{
		{"afternoon hour", "今天下午3点吃了米饭", "2024-06-15T02:00:00Z", time.Date(2024, 6, 15, 15, 0, 0, 0, shanghai)},
		{"yesterday past UTC midnight", "昨天晚上吃了米饭", "2024-06-14T17:30:00Z", time.Date(2024, 6, 14, 19, 0, 0, 0, shanghai)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, s := newTestServerIn(t, shanghai)
			body, err := json.Marshal(map[string]string{
				"userMessage":      tt.message,
				"rawAssistantText": block,
				"now":              tt.now,
			})
			require.NoError(t, err)

			rec := do(t, h, http.MethodPost, "/v1/users/u1/turns", string(body))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			meals, err := s.ListMealsSince(context.Background(), "u1", tt.want.AddDate(0, 0, -7))
			require.NoError(t, err)
			require.Len(t, meals, 1)
			assert.True(t, meals[0].MealTime.Equal(tt.want), "got %s, want %s", meals[0].MealTime, tt.want)
		})
	}
}

func TestProcessTurnBadRequest(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/users/u1/turns", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/users/u1/turns", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessTurnMalformedDeltaIsNotAnError(t *testing.T) {
	h, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{
		"userMessage":      "好",
		"rawAssistantText": delta.Marker + "{broken",
	})
	rec := do(t, h, http.MethodPost, "/v1/users/u1/turns", string(body))
	require.Equal(t, http.StatusOK, rec.Code)

	var out consolidate.Output
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Malformed)
	assert.Equal(t, consolidate.StatusMalformed, out.Status)
}

func TestGetContext(t *testing.T) {
	h, s := newTestServer(t)
	ctx := context.Background()
	_, _, err := s.InsertPreference(ctx, model.Preference{UserID: "u1", Type: model.PreferenceAllergy, Content: "对海鲜过敏", CreatedAt: fixedNow})
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/v1/users/u1/context", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var b recall.Bundle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	require.Len(t, b.Preferences.Allergies, 1)

	rec = do(t, h, http.MethodGet, "/v1/users/u1/context?format=text", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "### 过敏源:\n- 对海鲜过敏")

	rec = do(t, h, http.MethodGet, "/v1/users/u1/context?events=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveFeedbackEndpoint(t *testing.T) {
	h, s := newTestServer(t)
	f, err := s.InsertFeedback(context.Background(), model.FeedbackRecord{UserID: "u1", SuggestionContent: "晚饭少吃主食", CreatedAt: fixedNow})
	require.NoError(t, err)
	path := "/v1/users/u1/feedback/" + f.ID

	rec := do(t, h, http.MethodPost, path, `{"actionTaken":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "outcome required when taken")

	rec = do(t, h, http.MethodPost, path, `{"outcomeDescription":"ok"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "actionTaken required")

	rec = do(t, h, http.MethodPost, path,
		`{"actionTaken":true,"outcomeDescription":"第二天空腹好多了","bloodSugarBefore":7.8,"bloodSugarAfter":6.2,"effectivenessScore":8}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got model.FeedbackRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.ActionTaken)
	assert.True(t, *got.ActionTaken)
	require.NotNil(t, got.EffectivenessScore)
	assert.Equal(t, 8, *got.EffectivenessScore)

	rec = do(t, h, http.MethodPost, path, `{"actionTaken":false}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/users/u1/feedback/missing", `{"actionTaken":false}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/users/u1/feedback?status=resolved", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.FeedbackRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"UP"`)

	// Touch a counter so the namespace shows up.
	body, _ := json.Marshal(map[string]string{"userMessage": "你好", "rawAssistantText": "你好"})
	do(t, h, http.MethodPost, "/v1/users/u1/turns", string(body))

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "glucomem_turns_total")
}

func TestRecoverMiddleware(t *testing.T) {
	handler := Recover(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error","code":500}`, rec.Body.String())
}
