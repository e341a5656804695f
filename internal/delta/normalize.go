package delta

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rcliao/glucomem/internal/model"
)

const (
	defaultImportance = 5
	defaultDuration   = 30
)

// foodAliases are the keys a meal payload may carry its food text under, in
// lookup order. The first one is canonical.
var foodAliases = []string{"food_items", "food", "food_list", "foods", "items"}

// Normalize validates a loosely-typed delta object. It never fails: invalid
// entries are dropped with a reason and invalid enum values fall back to
// their defaults. Unknown or missing top-level keys yield empty sections.
func Normalize(obj map[string]any) *Delta {
	d := &Delta{}
	if obj == nil {
		return d
	}

	for i, item := range asList(obj[SectionEvents]) {
		ev, reason := normalizeEvent(item)
		if reason != "" {
			d.Dropped = append(d.Dropped, Drop{Section: SectionEvents, Index: i, Reason: reason})
			continue
		}
		d.Events = append(d.Events, ev)
	}

	for i, item := range asList(obj[SectionPatterns]) {
		p, reason := normalizePattern(item)
		if reason != "" {
			d.Dropped = append(d.Dropped, Drop{Section: SectionPatterns, Index: i, Reason: reason})
			continue
		}
		d.Patterns = append(d.Patterns, p)
	}

	for i, item := range asList(obj[SectionPreferences]) {
		p, reason := normalizePreference(item)
		if reason != "" {
			d.Dropped = append(d.Dropped, Drop{Section: SectionPreferences, Index: i, Reason: reason})
			continue
		}
		d.Preferences = append(d.Preferences, p)
	}

	for i, item := range asList(obj[SectionSuggestions]) {
		s, reason := normalizeSuggestion(item)
		if reason != "" {
			d.Dropped = append(d.Dropped, Drop{Section: SectionSuggestions, Index: i, Reason: reason})
			continue
		}
		d.Suggestions = append(d.Suggestions, s)
	}

	if m, ok := obj[SectionProfile].(map[string]any); ok {
		var reason string
		d.Profile, reason = normalizeProfile(m)
		if reason != "" {
			d.Dropped = append(d.Dropped, Drop{Section: SectionProfile, Reason: reason})
		}
	}

	return d
}

// Decode extracts, parses, and normalizes the delta block of an assistant reply.
func Decode(text string) (*Delta, bool, error) {
	obj, found, err := Parse(text)
	if err != nil || !found {
		return nil, found, err
	}
	return Normalize(obj), true, nil
}

func normalizeEvent(item any) (Event, string) {
	m, ok := item.(map[string]any)
	if !ok {
		return Event{}, "event is not an object"
	}

	typ := model.EventType(enumValue(m["type"]))
	if typ == "" {
		return Event{}, "event type missing"
	}
	if !model.ValidEventTypes[typ] {
		return Event{}, "unknown event type " + strconv.Quote(string(typ))
	}

	data := map[string]any{}
	if raw, ok := m["data"].(map[string]any); ok {
		for k, v := range raw {
			data[k] = v
		}
	}

	ev := Event{
		Type:       typ,
		Summary:    stringValue(m["summary"]),
		Tags:       stringList(m["tags"]),
		Importance: defaultImportance,
	}
	if n, ok := intValue(m["importance"]); ok {
		ev.Importance = clamp(n, 1, 10)
	}
	ev.TimeExpression = stringValue(data["time_expression"])
	if ev.TimeExpression == "" {
		ev.TimeExpression = stringValue(m["time_expression"])
	}

	notes := stringValue(data["notes"])

	switch typ {
	case model.EventBloodSugar:
		v, ok := floatValue(data["value"])
		if !ok || v <= 0 {
			return Event{}, "blood_sugar value missing or not a positive number"
		}
		mt := enumValue(data["measurement_type"])
		if !model.ValidMeasurementTypes[mt] {
			mt = model.MeasurementRandom
		}
		ev.BloodSugar = &BloodSugarData{Value: v, MeasurementType: mt, Notes: notes}
		data["value"] = v
		data["measurement_type"] = mt

	case model.EventMeal:
		food := foodText(data)
		if food == "" {
			return Event{}, "meal food_items missing"
		}
		mt := enumValue(data["meal_type"])
		if !model.ValidMealTypes[mt] {
			mt = model.MealSnack
		}
		ev.Meal = &MealData{MealType: mt, FoodItems: food, Notes: notes}
		for _, alias := range foodAliases[1:] {
			delete(data, alias)
		}
		data[foodAliases[0]] = food
		data["meal_type"] = mt

	case model.EventExercise:
		et := stringValue(data["exercise_type"])
		if et == "" {
			return Event{}, "exercise_type missing"
		}
		dur, ok := intValue(data["duration_minutes"])
		if !ok {
			dur, ok = intValue(data["duration"])
		}
		if !ok || dur < 0 {
			dur = defaultDuration
		}
		in := enumValue(data["intensity"])
		if !model.ValidIntensities[in] {
			in = model.IntensityModerate
		}
		ev.Exercise = &ExerciseData{ExerciseType: et, DurationMinutes: dur, Intensity: in, Notes: notes}
		data["exercise_type"] = et
		data["duration_minutes"] = dur
		data["intensity"] = in
	}

	if len(data) > 0 {
		ev.Data = data
	}
	return ev, ""
}

func normalizePattern(item any) (Pattern, string) {
	m, ok := item.(map[string]any)
	if !ok {
		return Pattern{}, "pattern is not an object"
	}
	typ := enumValue(m["type"])
	if !model.ValidPatternTypes[typ] {
		return Pattern{}, "unknown pattern type " + strconv.Quote(typ)
	}
	desc := stringValue(m["description"])
	if desc == "" {
		return Pattern{}, "pattern description missing"
	}
	conf := enumValue(m["confidence"])
	if !model.ValidConfidences[conf] {
		conf = model.ConfidenceMedium
	}
	return Pattern{Type: typ, Description: desc, Confidence: conf, Evidence: stringValue(m["evidence"])}, ""
}

func normalizePreference(item any) (Preference, string) {
	m, ok := item.(map[string]any)
	if !ok {
		return Preference{}, "preference is not an object"
	}
	typ := enumValue(m["type"])
	if !model.ValidPreferenceTypes[typ] {
		return Preference{}, "unknown preference type " + strconv.Quote(typ)
	}
	content := stringValue(m["content"])
	if content == "" {
		return Preference{}, "preference content missing"
	}
	src := enumValue(m["source"])
	if !model.ValidSources[src] {
		src = model.SourceUserStated
	}
	conf := enumValue(m["confidence"])
	if !model.ValidConfidences[conf] {
		conf = model.ConfidenceHigh
	}
	return Preference{Type: typ, Content: content, Source: src, Confidence: conf}, ""
}

func normalizeSuggestion(item any) (Suggestion, string) {
	m, ok := item.(map[string]any)
	if !ok {
		return Suggestion{}, "suggestion is not an object"
	}
	content := stringValue(m["content"])
	if content == "" {
		return Suggestion{}, "suggestion content missing"
	}
	cat := enumValue(m["category"])
	if !model.ValidCategories[cat] {
		cat = model.CategoryLifestyle
	}
	return Suggestion{Content: content, Category: cat}, ""
}

func normalizeProfile(m map[string]any) (ProfilePatch, string) {
	p := ProfilePatch{
		DiabetesType: stringValue(m["diabetes_type"]),
		Medication:   stringValue(m["medication"]),
		HealthNotes:  stringValue(m["health_notes"]),
	}
	lo, okLo := floatValue(m["target_blood_sugar_min"])
	hi, okHi := floatValue(m["target_blood_sugar_max"])
	if okLo || okHi {
		if okLo && okHi && lo > 0 && hi > lo {
			p.TargetBloodSugarMin, p.TargetBloodSugarMax = lo, hi
		} else {
			return p, "target blood sugar range ignored"
		}
	}
	return p, ""
}

// foodText coalesces the known food aliases into one string. Lists are joined
// with the enumeration comma so the detector can split them again.
func foodText(data map[string]any) string {
	for _, key := range foodAliases {
		switch v := data[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case []any:
			if items := stringList(v); len(items) > 0 {
				return strings.Join(items, "、")
			}
		}
	}
	return ""
}

func asList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		return []any{t}
	default:
		return nil
	}
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func enumValue(v any) string {
	return strings.ToLower(stringValue(v))
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, it := range items {
		if s := stringValue(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)`)

// floatValue coerces numbers and numeric strings ("7.2", "7.2mmol/L").
func floatValue(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case json.Number:
		var err error
		if f, err = t.Float64(); err != nil {
			return 0, false
		}
	case string:
		num := leadingNumber.FindString(strings.TrimSpace(t))
		if num == "" {
			return 0, false
		}
		var err error
		if f, err = strconv.ParseFloat(num, 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// intValue coerces numbers and numeric strings to an int, truncating fractions.
func intValue(v any) (int, bool) {
	f, ok := floatValue(v)
	if !ok || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
