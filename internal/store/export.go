package store

import (
	"context"
	"time"

	"github.com/rcliao/glucomem/internal/model"
)

// Export is a full dump of one user's long-term memory.
type Export struct {
	UserID      string                   `json:"user_id"`
	Profile     *model.Profile           `json:"profile,omitempty"`
	Events      []model.MemoryEvent      `json:"events"`
	BloodSugar  []model.BloodSugarRecord `json:"blood_sugar"`
	Meals       []model.MealRecord       `json:"meals"`
	Exercise    []model.ExerciseRecord   `json:"exercise"`
	Preferences []model.Preference       `json:"preferences"`
	Patterns    []model.BehaviorPattern  `json:"patterns"`
	Feedback    []model.FeedbackRecord   `json:"feedback"`
}

// exportLimit stands in for "everything" on list calls that take a limit.
const exportLimit = 1 << 30

// ExportAll returns every record owned by userID.
func (s *SQLiteStore) ExportAll(ctx context.Context, userID string) (*Export, error) {
	var (
		ex    = &Export{UserID: userID}
		epoch = time.Unix(0, 0)
		err   error
	)
	if ex.Profile, err = s.GetProfile(ctx, userID); err != nil {
		return nil, err
	}
	if ex.Events, err = s.RecentEvents(ctx, userID, exportLimit); err != nil {
		return nil, err
	}
	if ex.BloodSugar, err = s.ListBloodSugarSince(ctx, userID, epoch); err != nil {
		return nil, err
	}
	if ex.Meals, err = s.ListMealsSince(ctx, userID, epoch); err != nil {
		return nil, err
	}
	if ex.Exercise, err = s.ListExerciseSince(ctx, userID, epoch); err != nil {
		return nil, err
	}
	if ex.Preferences, err = s.ListPreferences(ctx, ListPreferencesParams{UserID: userID, Limit: exportLimit}); err != nil {
		return nil, err
	}
	if ex.Patterns, err = s.ListPatterns(ctx, ListPatternsParams{UserID: userID, Limit: exportLimit}); err != nil {
		return nil, err
	}
	if ex.Feedback, err = s.ListFeedback(ctx, ListFeedbackParams{UserID: userID, Limit: exportLimit}); err != nil {
		return nil, err
	}
	return ex, nil
}
