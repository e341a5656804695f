// Package store provides the long-term memory storage interface and its
// SQLite implementation.
//
// All records are owned by a user id. Lookups used for de-duplication are
// paired with conditional writes keyed by a natural uniqueness key, so two
// concurrent consolidation passes for the same user degrade to a no-op or a
// count refresh instead of a duplicate row.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rcliao/glucomem/internal/model"
)

// PreferenceQuery finds a preference of one type. A row matches when any of
// the non-empty criteria match; a NaturalKey or exact Content match is
// preferred over a Fragment (substring) match.
type PreferenceQuery struct {
	UserID     string
	Type       string
	Content    string
	NaturalKey string
	Fragment   string
}

// PreferenceRefresh rewrites a preference found by a similarity lookup.
// An empty Confidence keeps the stored one.
type PreferenceRefresh struct {
	ID         string
	Content    string
	Confidence string
	At         time.Time
}

// ListPreferencesParams holds parameters for listing preferences.
type ListPreferencesParams struct {
	UserID string
	Type   string
	Limit  int
}

// PatternQuery finds a behavior pattern of one type, by natural key or by a
// case-insensitive substring of the description.
type PatternQuery struct {
	UserID     string
	Type       string
	NaturalKey string
	Fragment   string
}

// PatternMerge selects what InsertPattern does when the natural key exists.
type PatternMerge int

const (
	// MergeReinforce adds one piece of evidence and keeps the stronger confidence.
	MergeReinforce PatternMerge = iota
	// MergeRefresh raises evidence to the observed count, never lowering it.
	MergeRefresh
)

// InsertPatternParams holds a new pattern and its conflict behavior.
type InsertPatternParams struct {
	Pattern model.BehaviorPattern
	Merge   PatternMerge
}

// PatternReinforce records one more observation of an existing pattern.
type PatternReinforce struct {
	ID         string
	Confidence string
	At         time.Time
}

// PatternRefresh sets evidence from a fresh count of the underlying records.
type PatternRefresh struct {
	ID            string
	EvidenceCount int
	Data          map[string]any
	At            time.Time
}

// ListPatternsParams holds parameters for listing patterns.
type ListPatternsParams struct {
	UserID      string
	MinEvidence int
	Limit       int
}

// ListFeedbackParams holds parameters for listing feedback records.
type ListFeedbackParams struct {
	UserID       string
	ResolvedOnly bool
	PendingOnly  bool
	Limit        int
}

// ResolveFeedbackParams is a feedback submission for a pending suggestion.
type ResolveFeedbackParams struct {
	UserID             string
	FeedbackID         string
	ActionTaken        bool
	OutcomeDescription string
	BloodSugarBefore   *float64
	BloodSugarAfter    *float64
	EffectivenessScore *int
	At                 time.Time
}

// Validate checks the submission. A suggestion that was acted on needs an
// outcome description; scores run from 1 to 10.
func (p ResolveFeedbackParams) Validate() error {
	if p.UserID == "" || p.FeedbackID == "" {
		return fmt.Errorf("%w: user id and feedback id are required", model.ErrValidation)
	}
	if p.ActionTaken && p.OutcomeDescription == "" {
		return fmt.Errorf("%w: outcome description is required when the suggestion was acted on", model.ErrValidation)
	}
	if s := p.EffectivenessScore; s != nil && (*s < 1 || *s > 10) {
		return fmt.Errorf("%w: effectiveness score %d out of range 1-10", model.ErrValidation, *s)
	}
	for _, v := range []*float64{p.BloodSugarBefore, p.BloodSugarAfter} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%w: blood sugar must be positive", model.ErrValidation)
		}
	}
	return nil
}

// ProfileUpdate carries profile fields to merge. Zero values are ignored.
type ProfileUpdate struct {
	UserID              string
	Username            string
	DiabetesType        string
	Medication          string
	HealthNotes         string
	TargetBloodSugarMin float64
	TargetBloodSugarMax float64
	At                  time.Time
}

// Empty reports whether the update would change nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Username == "" && u.DiabetesType == "" && u.Medication == "" && u.HealthNotes == "" &&
		u.TargetBloodSugarMin == 0 && u.TargetBloodSugarMax == 0
}

// Store defines the memory storage interface.
type Store interface {
	// InsertEvent appends a memory event.
	InsertEvent(ctx context.Context, e model.MemoryEvent) (*model.MemoryEvent, error)
	InsertBloodSugar(ctx context.Context, r model.BloodSugarRecord) (*model.BloodSugarRecord, error)
	InsertMeal(ctx context.Context, r model.MealRecord) (*model.MealRecord, error)
	InsertExercise(ctx context.Context, r model.ExerciseRecord) (*model.ExerciseRecord, error)

	// RecentEvents returns the newest events by event time.
	RecentEvents(ctx context.Context, userID string, limit int) ([]model.MemoryEvent, error)
	// RecentBloodSugar returns the newest readings by measurement time.
	RecentBloodSugar(ctx context.Context, userID string, limit int) ([]model.BloodSugarRecord, error)
	ListBloodSugarSince(ctx context.Context, userID string, since time.Time) ([]model.BloodSugarRecord, error)
	ListMealsSince(ctx context.Context, userID string, since time.Time) ([]model.MealRecord, error)
	ListExerciseSince(ctx context.Context, userID string, since time.Time) ([]model.ExerciseRecord, error)

	// FindPreference returns the best match, or nil when nothing matches.
	FindPreference(ctx context.Context, q PreferenceQuery) (*model.Preference, error)
	// InsertPreference inserts unless (user, type, natural key) exists, in
	// which case it returns the existing row and created=false.
	InsertPreference(ctx context.Context, p model.Preference) (pref *model.Preference, created bool, err error)
	RefreshPreference(ctx context.Context, r PreferenceRefresh) error
	ListPreferences(ctx context.Context, p ListPreferencesParams) ([]model.Preference, error)

	// FindPattern returns the best match, or nil when nothing matches.
	FindPattern(ctx context.Context, q PatternQuery) (*model.BehaviorPattern, error)
	// InsertPattern inserts a pattern or, on a natural key conflict, merges
	// into the existing row as p.Merge says. created reports which happened.
	InsertPattern(ctx context.Context, p InsertPatternParams) (pattern *model.BehaviorPattern, created bool, err error)
	ReinforcePattern(ctx context.Context, r PatternReinforce) error
	RefreshPattern(ctx context.Context, r PatternRefresh) error
	ListPatterns(ctx context.Context, p ListPatternsParams) ([]model.BehaviorPattern, error)

	InsertFeedback(ctx context.Context, f model.FeedbackRecord) (*model.FeedbackRecord, error)
	// ResolveFeedback moves a pending suggestion to resolved. Resolved rows
	// are immutable: resolving again returns model.ErrConflict.
	ResolveFeedback(ctx context.Context, p ResolveFeedbackParams) (*model.FeedbackRecord, error)
	ListFeedback(ctx context.Context, p ListFeedbackParams) ([]model.FeedbackRecord, error)

	// GetProfile returns the profile, or nil when the user has none.
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	// MergeProfile writes the non-empty fields of u, creating the profile if needed.
	MergeProfile(ctx context.Context, u ProfileUpdate) (*model.Profile, error)

	InsertTurnLog(ctx context.Context, l model.TurnLog) (*model.TurnLog, error)

	// Close closes the store.
	Close() error
}
