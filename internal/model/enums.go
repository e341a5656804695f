package model

// Enum values shared by the normalizer, the store, and the detector.
const (
	MeasurementFasting    = "fasting"
	MeasurementBeforeMeal = "before_meal"
	MeasurementAfterMeal  = "after_meal"
	MeasurementBedtime    = "bedtime"
	MeasurementRandom     = "random"

	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
	MealSnack     = "snack"

	IntensityLight    = "light"
	IntensityModerate = "moderate"
	IntensityVigorous = "vigorous"

	PreferenceAllergy  = "allergy"
	PreferenceDislike  = "dislike"
	PreferenceHabit    = "habit"
	PreferenceSchedule = "schedule"

	PatternFoodReaction   = "food_reaction"
	PatternTimePattern    = "time_pattern"
	PatternActivityImpact = "activity_impact"

	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"

	SourceUserStated = "user_stated"
	SourceInferred   = "inferred"

	CategoryDiet       = "diet"
	CategoryExercise   = "exercise"
	CategoryMedication = "medication"
	CategoryLifestyle  = "lifestyle"
)

// ValidEventTypes are the allowed memory event types.
var ValidEventTypes = map[EventType]bool{
	EventBloodSugar:   true,
	EventMeal:         true,
	EventExercise:     true,
	EventMedication:   true,
	EventConversation: true,
}

// ValidMeasurementTypes are the allowed blood sugar measurement types.
var ValidMeasurementTypes = map[string]bool{
	MeasurementFasting:    true,
	MeasurementBeforeMeal: true,
	MeasurementAfterMeal:  true,
	MeasurementBedtime:    true,
	MeasurementRandom:     true,
}

// ValidMealTypes are the allowed meal types.
var ValidMealTypes = map[string]bool{
	MealBreakfast: true,
	MealLunch:     true,
	MealDinner:    true,
	MealSnack:     true,
}

// ValidIntensities are the allowed exercise intensities.
var ValidIntensities = map[string]bool{
	IntensityLight:    true,
	IntensityModerate: true,
	IntensityVigorous: true,
}

// ValidPreferenceTypes are the allowed preference types.
var ValidPreferenceTypes = map[string]bool{
	PreferenceAllergy:  true,
	PreferenceDislike:  true,
	PreferenceHabit:    true,
	PreferenceSchedule: true,
}

// ValidPatternTypes are the allowed behavior pattern types.
var ValidPatternTypes = map[string]bool{
	PatternFoodReaction:   true,
	PatternTimePattern:    true,
	PatternActivityImpact: true,
}

// ValidConfidences are the allowed confidence levels.
var ValidConfidences = map[string]bool{
	ConfidenceLow:    true,
	ConfidenceMedium: true,
	ConfidenceHigh:   true,
}

// ValidSources are the allowed preference sources.
var ValidSources = map[string]bool{
	SourceUserStated: true,
	SourceInferred:   true,
}

// ValidCategories are the allowed suggestion categories.
var ValidCategories = map[string]bool{
	CategoryDiet:       true,
	CategoryExercise:   true,
	CategoryMedication: true,
	CategoryLifestyle:  true,
}

// ConfidenceRank orders confidence levels; unknown values rank lowest.
func ConfidenceRank(c string) int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// MaxConfidence returns the stronger of two confidence levels.
func MaxConfidence(a, b string) string {
	if ConfidenceRank(b) > ConfidenceRank(a) {
		return b
	}
	return a
}
