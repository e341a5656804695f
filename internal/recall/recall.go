// Package recall assembles a user's stored memory into the context bundle
// handed to the assistant with its next prompt. It never writes.
package recall

import (
	"context"
	"fmt"
	"time"

	"github.com/rcliao/glucomem/internal/model"
	"github.com/rcliao/glucomem/internal/store"
)

// Params bounds each section of a bundle. Zero values use the defaults.
type Params struct {
	UserID         string
	Preferences    int
	Patterns       int
	MinEvidence    int
	BloodSugar     int
	Events         int
	Feedback       int
	ReinforceScore int // resolved suggestions scoring at least this are reinforced
	AvoidScore     int // resolved suggestions scoring at most this are avoided
}

// DefaultParams returns the standard section sizes.
func DefaultParams(userID string) Params {
	return Params{
		UserID:         userID,
		Preferences:    20,
		Patterns:       10,
		MinEvidence:    2,
		BloodSugar:     5,
		Events:         10,
		Feedback:       20,
		ReinforceScore: 7,
		AvoidScore:     3,
	}
}

// Preferences groups preferences by type.
type Preferences struct {
	Allergies []model.Preference `json:"allergies"`
	Dislikes  []model.Preference `json:"dislikes"`
	Habits    []model.Preference `json:"habits"`
	Schedules []model.Preference `json:"schedules"`
}

// Len counts the grouped preferences.
func (p Preferences) Len() int {
	return len(p.Allergies) + len(p.Dislikes) + len(p.Habits) + len(p.Schedules)
}

// Bundle is the assembled memory context for one user.
type Bundle struct {
	UserID      string                   `json:"user_id"`
	Profile     *model.Profile           `json:"profile,omitempty"`
	Preferences Preferences              `json:"preferences"`
	Patterns    []model.BehaviorPattern  `json:"patterns"`
	BloodSugar  []model.BloodSugarRecord `json:"recent_blood_sugar"`
	Events      []model.MemoryEvent      `json:"recent_events"`
	Reinforce   []model.FeedbackRecord   `json:"reinforce"`
	Avoid       []model.FeedbackRecord   `json:"avoid"`
}

// Empty reports whether the bundle holds nothing to render.
func (b *Bundle) Empty() bool {
	return b.Profile == nil && b.Preferences.Len() == 0 && len(b.Patterns) == 0 &&
		len(b.BloodSugar) == 0 && len(b.Events) == 0 && len(b.Reinforce) == 0 && len(b.Avoid) == 0
}

// Assembler reads a bundle from a store.
type Assembler struct {
	store store.Store
	loc   *time.Location
}

// NewAssembler returns an Assembler rendering times in loc.
func NewAssembler(s store.Store, loc *time.Location) *Assembler {
	if loc == nil {
		loc = time.Local
	}
	return &Assembler{store: s, loc: loc}
}

// Assemble loads every section of the bundle.
func (a *Assembler) Assemble(ctx context.Context, p Params) (*Bundle, error) {
	p = withDefaults(p)
	b := &Bundle{UserID: p.UserID}

	profile, err := a.store.GetProfile(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	b.Profile = profile

	prefs, err := a.store.ListPreferences(ctx, store.ListPreferencesParams{UserID: p.UserID, Limit: p.Preferences})
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	for _, pref := range prefs {
		switch pref.Type {
		case model.PreferenceAllergy:
			b.Preferences.Allergies = append(b.Preferences.Allergies, pref)
		case model.PreferenceDislike:
			b.Preferences.Dislikes = append(b.Preferences.Dislikes, pref)
		case model.PreferenceHabit:
			b.Preferences.Habits = append(b.Preferences.Habits, pref)
		case model.PreferenceSchedule:
			b.Preferences.Schedules = append(b.Preferences.Schedules, pref)
		}
	}

	b.Patterns, err = a.store.ListPatterns(ctx, store.ListPatternsParams{
		UserID: p.UserID, MinEvidence: p.MinEvidence, Limit: p.Patterns,
	})
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}

	b.BloodSugar, err = a.store.RecentBloodSugar(ctx, p.UserID, p.BloodSugar)
	if err != nil {
		return nil, fmt.Errorf("recent blood sugar: %w", err)
	}

	b.Events, err = a.store.RecentEvents(ctx, p.UserID, p.Events)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}

	feedback, err := a.store.ListFeedback(ctx, store.ListFeedbackParams{UserID: p.UserID, ResolvedOnly: true, Limit: p.Feedback})
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	for _, f := range feedback {
		if f.ActionTaken == nil || f.EffectivenessScore == nil {
			continue
		}
		switch score := *f.EffectivenessScore; {
		case score >= p.ReinforceScore:
			b.Reinforce = append(b.Reinforce, f)
		case score <= p.AvoidScore:
			b.Avoid = append(b.Avoid, f)
		}
	}

	return b, nil
}

func withDefaults(p Params) Params {
	d := DefaultParams(p.UserID)
	if p.Preferences <= 0 {
		p.Preferences = d.Preferences
	}
	if p.Patterns <= 0 {
		p.Patterns = d.Patterns
	}
	if p.MinEvidence <= 0 {
		p.MinEvidence = d.MinEvidence
	}
	if p.BloodSugar <= 0 {
		p.BloodSugar = d.BloodSugar
	}
	if p.Events <= 0 {
		p.Events = d.Events
	}
	if p.Feedback <= 0 {
		p.Feedback = d.Feedback
	}
	if p.ReinforceScore <= 0 {
		p.ReinforceScore = d.ReinforceScore
	}
	if p.AvoidScore <= 0 {
		p.AvoidScore = d.AvoidScore
	}
	return p
}
