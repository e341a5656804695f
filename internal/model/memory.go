// Package model defines the long-term memory entities and their enum domains.
package model

import "time"

// EventType classifies an append-only memory event.
type EventType string

const (
	EventBloodSugar   EventType = "blood_sugar"
	EventMeal         EventType = "meal"
	EventExercise     EventType = "exercise"
	EventMedication   EventType = "medication"
	EventConversation EventType = "conversation"
)

// MemoryEvent is an append-only record of something that happened.
type MemoryEvent struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Type       EventType      `json:"type"`
	Summary    string         `json:"summary"`
	Data       map[string]any `json:"data,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Importance int            `json:"importance"`
	EventTime  time.Time      `json:"event_time"`
	CreatedAt  time.Time      `json:"created_at"`
}

// BloodSugarRecord is a single glucose measurement in mmol/L.
type BloodSugarRecord struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Value           float64   `json:"value"`
	MeasurementType string    `json:"measurement_type"`
	MeasuredAt      time.Time `json:"measured_at"`
	Notes           string    `json:"notes,omitempty"`
}

// MealRecord is a single meal. FoodItems holds the food text as written.
type MealRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	MealType  string    `json:"meal_type"`
	FoodItems string    `json:"food_items"`
	MealTime  time.Time `json:"meal_time"`
	Notes     string    `json:"notes,omitempty"`
}

// ExerciseRecord is a single exercise session.
type ExerciseRecord struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ExerciseType    string    `json:"exercise_type"`
	DurationMinutes int       `json:"duration_minutes"`
	Intensity       string    `json:"intensity"`
	ExerciseTime    time.Time `json:"exercise_time"`
	Notes           string    `json:"notes,omitempty"`
}

// Preference is a standing fact about the user.
type Preference struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	NaturalKey string    `json:"-"`
	Confidence string    `json:"confidence"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BehaviorPattern is an inferred recurring relationship backed by evidence.
type BehaviorPattern struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Type           string         `json:"type"`
	Description    string         `json:"description"`
	NaturalKey     string         `json:"-"`
	Data           map[string]any `json:"data,omitempty"`
	Confidence     string         `json:"confidence"`
	EvidenceCount  int            `json:"evidence_count"`
	LastObservedAt time.Time      `json:"last_observed_at"`
	CreatedAt      time.Time      `json:"created_at"`
}

// FeedbackRecord tracks a suggestion and, once resolved, how it worked out.
// ActionTaken is nil while the suggestion is pending.
type FeedbackRecord struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	SuggestionContent  string     `json:"suggestion_content"`
	Category           string     `json:"category"`
	ActionTaken        *bool      `json:"action_taken"`
	OutcomeDescription string     `json:"outcome_description,omitempty"`
	BloodSugarBefore   *float64   `json:"blood_sugar_before,omitempty"`
	BloodSugarAfter    *float64   `json:"blood_sugar_after,omitempty"`
	EffectivenessScore *int       `json:"effectiveness_score,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
}

// Resolved reports whether feedback has been submitted for the suggestion.
func (f FeedbackRecord) Resolved() bool { return f.ActionTaken != nil }

// Profile holds the user's health profile.
type Profile struct {
	UserID              string    `json:"user_id"`
	Username            string    `json:"username,omitempty"`
	DiabetesType        string    `json:"diabetes_type,omitempty"`
	Medication          string    `json:"medication,omitempty"`
	TargetBloodSugarMin float64   `json:"target_blood_sugar_min,omitempty"`
	TargetBloodSugarMax float64   `json:"target_blood_sugar_max,omitempty"`
	HealthNotes         string    `json:"health_notes,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TurnLog records one processed conversational turn for operations.
type TurnLog struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	SessionID        string         `json:"session_id"`
	UserMessage      string         `json:"user_message"`
	AssistantText    string         `json:"assistant_text"`
	MemoryUpdates    map[string]any `json:"memory_updates"`
	DataRecorded     map[string]int `json:"data_recorded"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
	Status           string         `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
}
