package delta

import "github.com/rcliao/glucomem/internal/model"

// Section names used in drop reasons and metrics.
const (
	SectionEvents      = "events"
	SectionPatterns    = "patterns"
	SectionPreferences = "preferences"
	SectionSuggestions = "suggestions"
	SectionProfile     = "profile"
)

// Delta is a validated memory update. Every enum field holds a value from its
// domain and every numeric field is a finite number.
type Delta struct {
	Events      []Event      `json:"events,omitempty"`
	Patterns    []Pattern    `json:"patterns,omitempty"`
	Preferences []Preference `json:"preferences,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
	Profile     ProfilePatch `json:"profile,omitempty"`

	// Dropped lists entries that failed validation, in input order.
	Dropped []Drop `json:"dropped,omitempty"`
}

// Drop records one rejected entry.
type Drop struct {
	Section string `json:"section"`
	Index   int    `json:"index"`
	Reason  string `json:"reason"`
}

// Event is a validated event. Exactly one of BloodSugar, Meal, Exercise is set
// when Type is one of the recordable domains.
type Event struct {
	Type           model.EventType `json:"type"`
	Summary        string          `json:"summary"`
	Data           map[string]any  `json:"data,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	Importance     int             `json:"importance"`
	TimeExpression string          `json:"time_expression,omitempty"`

	BloodSugar *BloodSugarData `json:"blood_sugar,omitempty"`
	Meal       *MealData       `json:"meal,omitempty"`
	Exercise   *ExerciseData   `json:"exercise,omitempty"`
}

// BloodSugarData is the domain payload of a blood_sugar event.
type BloodSugarData struct {
	Value           float64 `json:"value"`
	MeasurementType string  `json:"measurement_type"`
	Notes           string  `json:"notes,omitempty"`
}

// MealData is the domain payload of a meal event.
type MealData struct {
	MealType  string `json:"meal_type"`
	FoodItems string `json:"food_items"`
	Notes     string `json:"notes,omitempty"`
}

// ExerciseData is the domain payload of an exercise event.
type ExerciseData struct {
	ExerciseType    string `json:"exercise_type"`
	DurationMinutes int    `json:"duration_minutes"`
	Intensity       string `json:"intensity"`
	Notes           string `json:"notes,omitempty"`
}

// Pattern is a validated behavior pattern observation.
type Pattern struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Confidence  string `json:"confidence"`
	Evidence    string `json:"evidence,omitempty"`
}

// Preference is a validated user preference.
type Preference struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	Source     string `json:"source"`
	Confidence string `json:"confidence"`
}

// Suggestion is an actionable suggestion the assistant made.
type Suggestion struct {
	Content  string `json:"content"`
	Category string `json:"category"`
}

// ProfilePatch carries only the profile fields the delta set to non-empty values.
type ProfilePatch struct {
	DiabetesType        string  `json:"diabetes_type,omitempty"`
	Medication          string  `json:"medication,omitempty"`
	HealthNotes         string  `json:"health_notes,omitempty"`
	TargetBloodSugarMin float64 `json:"target_blood_sugar_min,omitempty"`
	TargetBloodSugarMax float64 `json:"target_blood_sugar_max,omitempty"`
}

// Empty reports whether the patch would change nothing.
func (p ProfilePatch) Empty() bool {
	return p.DiabetesType == "" && p.Medication == "" && p.HealthNotes == "" &&
		p.TargetBloodSugarMin == 0 && p.TargetBloodSugarMax == 0
}

// Empty reports whether the delta carries nothing to apply.
func (d *Delta) Empty() bool {
	return len(d.Events) == 0 && len(d.Patterns) == 0 && len(d.Preferences) == 0 &&
		len(d.Suggestions) == 0 && d.Profile.Empty()
}
