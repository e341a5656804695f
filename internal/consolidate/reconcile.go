// Package consolidate turns a normalized memory delta into durable records
// and promotes repeated activity into habits.
//
// Every entry is applied on its own: a failed write or lookup is recorded in
// the result and the next entry proceeds. Nothing here returns an error for a
// recoverable condition.
package consolidate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcliao/glucomem/internal/delta"
	"github.com/rcliao/glucomem/internal/model"
	"github.com/rcliao/glucomem/internal/store"
	"github.com/rcliao/glucomem/internal/timeexpr"
)

// DomainRecordCounts counts domain records written alongside events.
type DomainRecordCounts struct {
	BloodSugar int `json:"bloodSugar"`
	Meal       int `json:"meal"`
	Exercise   int `json:"exercise"`
}

// Failure is one storage operation that did not complete.
type Failure struct {
	Section string `json:"section"`
	Index   int    `json:"index"`
	Op      string `json:"op"`
	Reason  string `json:"reason"`
	Err     error  `json:"-"`
}

// Result counts what a reconciliation pass applied.
type Result struct {
	EventsApplied       int                `json:"eventsApplied"`
	PatternsApplied     int                `json:"patternsApplied"`
	PreferencesApplied  int                `json:"preferencesApplied"`
	SuggestionsRecorded int                `json:"suggestionsRecorded"`
	ProfileUpdated      bool               `json:"profileUpdated"`
	DomainRecordCounts  DomainRecordCounts `json:"domainRecordCounts"`
	Dropped             []delta.Drop       `json:"dropped,omitempty"`
	Failures            []Failure          `json:"failures,omitempty"`
	Cancelled           bool               `json:"cancelled,omitempty"`
}

// Reconciler applies validated deltas to the store.
type Reconciler struct {
	store    store.Store
	log      zerolog.Logger
	resolver *timeexpr.Resolver
	sim      Similarity
	retry    retrier
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithResolver sets the time resolver used for per-event time expressions.
func WithResolver(r *timeexpr.Resolver) ReconcilerOption {
	return func(rc *Reconciler) { rc.resolver = r }
}

// WithSimilarity replaces the default PrefixRule.
func WithSimilarity(s Similarity) ReconcilerOption {
	return func(rc *Reconciler) { rc.sim = s }
}

// WithWriteRetries sets how often a transient write failure is retried.
func WithWriteRetries(n int) ReconcilerOption {
	return func(rc *Reconciler) { rc.retry.retries = n }
}

// NewReconciler returns a Reconciler over s.
func NewReconciler(s store.Store, log zerolog.Logger, opts ...ReconcilerOption) *Reconciler {
	rc := &Reconciler{
		store:    s,
		log:      log.With().Str("component", "reconciler").Logger(),
		resolver: timeexpr.Default,
		sim:      NewPrefixRule(DefaultPrefixRunes),
		retry:    newRetrier(3),
	}
	for _, o := range opts {
		o(rc)
	}
	return rc
}

// Apply writes every entry of d for userID. turnTime is the timestamp
// resolved from the user's message; an event carrying its own time expression
// is resolved against now instead.
//
// A cancelled ctx stops the pass before the next entry. Rows already written
// stay written.
func (rc *Reconciler) Apply(ctx context.Context, userID string, d *delta.Delta, turnTime, now time.Time) Result {
	var res Result
	if d == nil {
		return res
	}
	res.Dropped = append(res.Dropped, d.Dropped...)
	for _, drop := range d.Dropped {
		entriesDropped.WithLabelValues(drop.Section).Inc()
		rc.log.Warn().
			Str("user_id", userID).
			Str("section", drop.Section).
			Int("index", drop.Index).
			Str("reason", drop.Reason).
			Msg("delta entry dropped")
	}

	// Writes are not interrupted mid-flight; cancellation is checked between entries.
	sctx := context.WithoutCancel(ctx)
	stopped := func() bool {
		if ctx.Err() != nil {
			res.Cancelled = true
			return true
		}
		return false
	}

	for i, ev := range d.Events {
		if stopped() {
			return res
		}
		rc.applyEvent(sctx, &res, userID, i, ev, turnTime, now)
	}
	for i, p := range d.Preferences {
		if stopped() {
			return res
		}
		rc.applyPreference(sctx, &res, userID, i, p, now)
	}
	for i, p := range d.Patterns {
		if stopped() {
			return res
		}
		rc.applyPattern(sctx, &res, userID, i, p, now)
	}
	for i, s := range d.Suggestions {
		if stopped() {
			return res
		}
		rc.applySuggestion(sctx, &res, userID, i, s, now)
	}
	if !d.Profile.Empty() {
		if stopped() {
			return res
		}
		rc.applyProfile(sctx, &res, userID, d.Profile, now)
	}
	return res
}

func (rc *Reconciler) applyEvent(ctx context.Context, res *Result, userID string, i int, ev delta.Event, turnTime, now time.Time) {
	at := turnTime
	if ev.TimeExpression != "" {
		at = rc.resolver.Resolve(ev.TimeExpression, now)
	}

	err := rc.retry.do(ctx, func() error {
		_, err := rc.store.InsertEvent(ctx, model.MemoryEvent{
			UserID:     userID,
			Type:       ev.Type,
			Summary:    ev.Summary,
			Data:       ev.Data,
			Tags:       ev.Tags,
			Importance: ev.Importance,
			EventTime:  at,
		})
		return err
	})
	if err != nil {
		rc.writeFailed(res, userID, delta.SectionEvents, i, "insert_event", err)
	} else {
		res.EventsApplied++
		eventsApplied.WithLabelValues(string(ev.Type)).Inc()
	}

	// The domain record is independent of the event row.
	switch {
	case ev.BloodSugar != nil:
		err = rc.retry.do(ctx, func() error {
			_, err := rc.store.InsertBloodSugar(ctx, model.BloodSugarRecord{
				UserID:          userID,
				Value:           ev.BloodSugar.Value,
				MeasurementType: ev.BloodSugar.MeasurementType,
				MeasuredAt:      at,
				Notes:           ev.BloodSugar.Notes,
			})
			return err
		})
		if err != nil {
			rc.writeFailed(res, userID, delta.SectionEvents, i, "insert_blood_sugar", err)
		} else {
			res.DomainRecordCounts.BloodSugar++
		}
	case ev.Meal != nil:
		err = rc.retry.do(ctx, func() error {
			_, err := rc.store.InsertMeal(ctx, model.MealRecord{
				UserID:    userID,
				MealType:  ev.Meal.MealType,
				FoodItems: ev.Meal.FoodItems,
				MealTime:  at,
				Notes:     ev.Meal.Notes,
			})
			return err
		})
		if err != nil {
			rc.writeFailed(res, userID, delta.SectionEvents, i, "insert_meal", err)
		} else {
			res.DomainRecordCounts.Meal++
		}
	case ev.Exercise != nil:
		err = rc.retry.do(ctx, func() error {
			_, err := rc.store.InsertExercise(ctx, model.ExerciseRecord{
				UserID:          userID,
				ExerciseType:    ev.Exercise.ExerciseType,
				DurationMinutes: ev.Exercise.DurationMinutes,
				Intensity:       ev.Exercise.Intensity,
				ExerciseTime:    at,
				Notes:           ev.Exercise.Notes,
			})
			return err
		})
		if err != nil {
			rc.writeFailed(res, userID, delta.SectionEvents, i, "insert_exercise", err)
		} else {
			res.DomainRecordCounts.Exercise++
		}
	}
}

// applyPreference inserts a preference unless an equivalent one is stored.
// Repeats are left alone; the habit detector owns reinforcement.
func (rc *Reconciler) applyPreference(ctx context.Context, res *Result, userID string, i int, p delta.Preference, now time.Time) {
	existing, err := rc.store.FindPreference(ctx, rc.sim.PreferenceQuery(userID, p.Type, p.Content))
	if err != nil {
		rc.readFailed(res, userID, delta.SectionPreferences, i, "find_preference", err)
		return
	}
	if existing != nil {
		rc.log.Debug().Str("user_id", userID).Str("preference_id", existing.ID).Msg("preference already recorded")
		return
	}

	var created bool
	err = rc.retry.do(ctx, func() error {
		var err error
		_, created, err = rc.store.InsertPreference(ctx, model.Preference{
			UserID:     userID,
			Type:       p.Type,
			Content:    p.Content,
			NaturalKey: rc.sim.PreferenceKey(p.Content),
			Confidence: p.Confidence,
			Source:     p.Source,
			CreatedAt:  now,
		})
		return err
	})
	if err != nil {
		rc.writeFailed(res, userID, delta.SectionPreferences, i, "insert_preference", err)
		return
	}
	if created {
		res.PreferencesApplied++
	}
}

// applyPattern reinforces a similar stored pattern or inserts a new one.
func (rc *Reconciler) applyPattern(ctx context.Context, res *Result, userID string, i int, p delta.Pattern, now time.Time) {
	existing, err := rc.store.FindPattern(ctx, rc.sim.PatternQuery(userID, p.Type, p.Description))
	if err != nil {
		rc.readFailed(res, userID, delta.SectionPatterns, i, "find_pattern", err)
		return
	}

	if existing != nil {
		err = rc.retry.do(ctx, func() error {
			return rc.store.ReinforcePattern(ctx, store.PatternReinforce{ID: existing.ID, Confidence: p.Confidence, At: now})
		})
		if err != nil {
			rc.writeFailed(res, userID, delta.SectionPatterns, i, "reinforce_pattern", err)
			return
		}
		res.PatternsApplied++
		return
	}

	// A concurrent pass may insert the same key first; the store then
	// reinforces that row instead.
	err = rc.retry.do(ctx, func() error {
		_, _, err := rc.store.InsertPattern(ctx, store.InsertPatternParams{
			Merge: store.MergeReinforce,
			Pattern: model.BehaviorPattern{
				UserID:         userID,
				Type:           p.Type,
				Description:    p.Description,
				NaturalKey:     rc.sim.PatternKey(p.Description),
				Confidence:     p.Confidence,
				EvidenceCount:  1,
				LastObservedAt: now,
			},
		})
		return err
	})
	if err != nil {
		rc.writeFailed(res, userID, delta.SectionPatterns, i, "insert_pattern", err)
		return
	}
	res.PatternsApplied++
}

// applySuggestion always records a new pending suggestion.
func (rc *Reconciler) applySuggestion(ctx context.Context, res *Result, userID string, i int, s delta.Suggestion, now time.Time) {
	err := rc.retry.do(ctx, func() error {
		_, err := rc.store.InsertFeedback(ctx, model.FeedbackRecord{
			UserID:            userID,
			SuggestionContent: s.Content,
			Category:          s.Category,
			CreatedAt:         now,
		})
		return err
	})
	if err != nil {
		rc.writeFailed(res, userID, delta.SectionSuggestions, i, "insert_feedback", err)
		return
	}
	res.SuggestionsRecorded++
}

func (rc *Reconciler) applyProfile(ctx context.Context, res *Result, userID string, p delta.ProfilePatch, now time.Time) {
	err := rc.retry.do(ctx, func() error {
		_, err := rc.store.MergeProfile(ctx, store.ProfileUpdate{
			UserID:              userID,
			DiabetesType:        p.DiabetesType,
			Medication:          p.Medication,
			HealthNotes:         p.HealthNotes,
			TargetBloodSugarMin: p.TargetBloodSugarMin,
			TargetBloodSugarMax: p.TargetBloodSugarMax,
			At:                  now,
		})
		return err
	})
	if err != nil {
		rc.writeFailed(res, userID, delta.SectionProfile, 0, "merge_profile", err)
		return
	}
	res.ProfileUpdated = true
}

func (rc *Reconciler) writeFailed(res *Result, userID, section string, i int, op string, err error) {
	rc.fail(res, userID, section, i, op, fmt.Errorf("%w: %s: %v", model.ErrStorageWriteFailed, op, err))
}

func (rc *Reconciler) readFailed(res *Result, userID, section string, i int, op string, err error) {
	rc.fail(res, userID, section, i, op, fmt.Errorf("%w: %s: %v", model.ErrStorageReadFailed, op, err))
}

func (rc *Reconciler) fail(res *Result, userID, section string, i int, op string, err error) {
	storageFailures.WithLabelValues(op).Inc()
	res.Failures = append(res.Failures, Failure{Section: section, Index: i, Op: op, Reason: err.Error(), Err: err})
	rc.log.Error().
		Err(err).
		Str("user_id", userID).
		Str("section", section).
		Int("index", i).
		Msg("storage operation failed")
}
