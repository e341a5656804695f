package delta

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/glucomem/internal/model"
)

func decodeObj(t *testing.T, s string) map[string]any {
	t.Helper()
	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &obj))
	return obj
}

func TestNormalizeMealAliases(t *testing.T) {
	d := Normalize(decodeObj(t, `{"events":[
		{"type":"meal","summary":"早餐","data":{"food":"油条、豆浆","meal_type":"breakfast"}},
		{"type":"meal","summary":"午餐","data":{"food_list":["米饭","青菜"],"meal_type":"brunch"}}
	]}`))

	require.Len(t, d.Events, 2)
	require.Empty(t, d.Dropped)

	assert.Equal(t, "油条、豆浆", d.Events[0].Meal.FoodItems)
	assert.Equal(t, model.MealBreakfast, d.Events[0].Meal.MealType)
	assert.Equal(t, "油条、豆浆", d.Events[0].Data["food_items"])
	assert.NotContains(t, d.Events[0].Data, "food")

	assert.Equal(t, "米饭、青菜", d.Events[1].Meal.FoodItems)
	assert.Equal(t, model.MealSnack, d.Events[1].Meal.MealType)
}

func TestNormalizeMealWithoutFoodDropped(t *testing.T) {
	d := Normalize(decodeObj(t, `{"events":[{"type":"meal","data":{"meal_type":"lunch"}}]}`))
	assert.Empty(t, d.Events)
	require.Len(t, d.Dropped, 1)
	assert.Equal(t, SectionEvents, d.Dropped[0].Section)
	assert.Contains(t, d.Dropped[0].Reason, "food_items")
}

func TestNormalizeExerciseCoercion(t *testing.T) {
	d := Normalize(decodeObj(t, `{"events":[
		{"type":"exercise","data":{"exercise_type":"游泳","duration_minutes":"45","intensity":"VIGOROUS"}},
		{"type":"exercise","data":{"exercise_type":"散步","duration_minutes":"很久","intensity":"extreme"}},
		{"type":"exercise","data":{"exercise_type":"跑步","duration_minutes":-5}},
		{"type":"exercise","data":{"duration_minutes":20}}
	]}`))

	require.Len(t, d.Events, 3)
	assert.Equal(t, 45, d.Events[0].Exercise.DurationMinutes)
	assert.Equal(t, model.IntensityVigorous, d.Events[0].Exercise.Intensity)

	assert.Equal(t, 30, d.Events[1].Exercise.DurationMinutes)
	assert.Equal(t, model.IntensityModerate, d.Events[1].Exercise.Intensity)

	assert.Equal(t, 30, d.Events[2].Exercise.DurationMinutes)

	require.Len(t, d.Dropped, 1)
	assert.Equal(t, 3, d.Dropped[0].Index)
}

func TestNormalizeBloodSugar(t *testing.T) {
	d := Normalize(decodeObj(t, `{"events":[
		{"type":"blood_sugar","data":{"value":"7.2","measurement_type":"after_lunch"}},
		{"type":"blood_sugar","data":{"value":8.1,"measurement_type":"fasting"}},
		{"type":"blood_sugar","data":{"value":0}},
		{"type":"blood_sugar","data":{"value":"high"}}
	]}`))

	require.Len(t, d.Events, 2)
	assert.InDelta(t, 7.2, d.Events[0].BloodSugar.Value, 1e-9)
	assert.Equal(t, model.MeasurementRandom, d.Events[0].BloodSugar.MeasurementType)
	assert.Equal(t, model.MeasurementFasting, d.Events[1].BloodSugar.MeasurementType)
	assert.Len(t, d.Dropped, 2)
}

func TestNormalizeEventDefaults(t *testing.T) {
	d := Normalize(decodeObj(t, `{"events":[
		{"type":"medication","summary":"二甲双胍","importance":42,"tags":["药",3,""]},
		{"type":"conversation","data":{"time_expression":"昨天"}},
		{"type":"dance"},
		"not an object"
	]}`))

	require.Len(t, d.Events, 2)
	assert.Equal(t, 10, d.Events[0].Importance)
	assert.Equal(t, []string{"药", "3"}, d.Events[0].Tags)
	assert.Equal(t, 5, d.Events[1].Importance)
	assert.Equal(t, "昨天", d.Events[1].TimeExpression)
	assert.Len(t, d.Dropped, 2)
}

func TestNormalizeMissingSections(t *testing.T) {
	d := Normalize(decodeObj(t, `{"unknown":[1,2,3],"events":"nope"}`))
	assert.True(t, d.Empty())
	assert.Empty(t, d.Dropped)

	assert.True(t, Normalize(nil).Empty())
}

func TestNormalizePatternsPreferencesSuggestions(t *testing.T) {
	d := Normalize(decodeObj(t, `{
		"patterns":[
			{"type":"food_reaction","description":"吃白粥后血糖明显升高","confidence":"HIGH"},
			{"type":"food_reaction","description":"  "},
			{"type":"mood","description":"x"}
		],
		"preferences":[
			{"type":"allergy","content":"花生"},
			{"type":"dislike","content":"苦瓜","source":"inferred"},
			{"type":"habit","content":"晚饭后散步","source":"guess","confidence":"low"},
			{"type":"favourite","content":"x"}
		],
		"suggestions":[
			{"content":"晚餐米饭减半","category":"diet"},
			{"content":"睡前测血糖","category":"sleep"},
			{"category":"diet"}
		]
	}`))

	require.Len(t, d.Patterns, 1)
	assert.Equal(t, model.ConfidenceHigh, d.Patterns[0].Confidence)

	require.Len(t, d.Preferences, 3)
	assert.Equal(t, model.SourceUserStated, d.Preferences[0].Source)
	assert.Equal(t, model.ConfidenceHigh, d.Preferences[0].Confidence)
	assert.Equal(t, model.SourceInferred, d.Preferences[1].Source)
	assert.Equal(t, model.SourceUserStated, d.Preferences[2].Source)
	assert.Equal(t, model.ConfidenceLow, d.Preferences[2].Confidence)

	require.Len(t, d.Suggestions, 2)
	assert.Equal(t, model.CategoryLifestyle, d.Suggestions[1].Category)

	assert.Len(t, d.Dropped, 4)
}

func TestNormalizeProfile(t *testing.T) {
	d := Normalize(decodeObj(t, `{"profile":{"diabetes_type":"type2","medication":"","health_notes":"  高血压  "}}`))
	assert.Equal(t, "type2", d.Profile.DiabetesType)
	assert.Empty(t, d.Profile.Medication)
	assert.Equal(t, "高血压", d.Profile.HealthNotes)

	d = Normalize(decodeObj(t, `{"profile":{"target_blood_sugar_min":4.4,"target_blood_sugar_max":7}}`))
	assert.Equal(t, 4.4, d.Profile.TargetBloodSugarMin)
	assert.Equal(t, 7.0, d.Profile.TargetBloodSugarMax)

	d = Normalize(decodeObj(t, `{"profile":{"target_blood_sugar_min":9,"target_blood_sugar_max":7}}`))
	assert.True(t, d.Profile.Empty())
	assert.Len(t, d.Dropped, 1)
}

func TestDecodePartialFailure(t *testing.T) {
	text := "记下了\n---MEMORY_UPDATE---\n" +
		`{"events":[{"type":"meal","data":{"meal_type":"lunch"}},{"type":"exercise","data":{"exercise_type":"跑步"}}]}`
	d, found, err := Decode(text)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, d.Events, 1)
	assert.Len(t, d.Dropped, 1)
}
