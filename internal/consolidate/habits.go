package consolidate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcliao/glucomem/internal/model"
	"github.com/rcliao/glucomem/internal/store"
)

// Thresholds control when repetition becomes a habit.
type Thresholds struct {
	ExerciseHabit  int // occurrences of one exercise type for a habit preference
	ExerciseHigh   int // occurrences for high confidence
	ExerciseImpact int // occurrences for an activity_impact pattern

	MealMinRecords int // meals in the window before foods are counted
	MealToken      int // meals containing a food for a habit preference

	BloodSugarMinRecords int // readings in the window before groups are counted
	BloodSugarGroup      int // readings of one measurement type for a habit preference
}

// DefaultThresholds are the promotion thresholds.
var DefaultThresholds = Thresholds{
	ExerciseHabit:        3,
	ExerciseHigh:         5,
	ExerciseImpact:       5,
	MealMinRecords:       10,
	MealToken:            5,
	BloodSugarMinRecords: 7,
	BloodSugarGroup:      7,
}

// Templates hold the text of promoted habits. Each Find template is a stable
// prefix of the matching content template and is used for the substring lookup.
type Templates struct {
	ExerciseHabit     string // type, count
	ExerciseHabitFind string // type
	ExerciseImpact    string // type
	MealHabit         string // food
	BloodSugarHabit   string // measurement label, count
	BloodSugarFind    string // measurement label

	MeasurementLabels map[string]string
}

// ChineseTemplates is the default habit wording.
var ChineseTemplates = Templates{
	ExerciseHabit:     "坚持%s运动，已完成%d次",
	ExerciseHabitFind: "坚持%s运动",
	ExerciseImpact:    "规律进行%s运动，有助于血糖控制",
	MealHabit:         "经常食用%s",
	BloodSugarHabit:   "坚持%s测血糖，已测量%d次",
	BloodSugarFind:    "坚持%s测血糖",
	MeasurementLabels: map[string]string{
		model.MeasurementFasting:    "空腹",
		model.MeasurementBeforeMeal: "餐前",
		model.MeasurementAfterMeal:  "餐后",
		model.MeasurementBedtime:    "睡前",
		model.MeasurementRandom:     "随机",
	},
}

// foodDelimiters split a meal's food text into items.
const foodDelimiters = "、，,;；/ \t\n"

// Habit domains, used in reports and metrics.
const (
	DomainExercise   = "exercise"
	DomainMeal       = "meal"
	DomainBloodSugar = "blood_sugar"
)

// Promotion actions.
const (
	ActionCreated   = "created"
	ActionRefreshed = "refreshed"
	ActionUnchanged = "unchanged"
)

// DomainReport summarizes one domain of a detection pass.
type DomainReport struct {
	Domain    string `json:"domain"`
	Records   int    `json:"records"`
	Created   int    `json:"created"`
	Refreshed int    `json:"refreshed"`
	Unchanged int    `json:"unchanged"`
	Error     string `json:"error,omitempty"`
}

// DetectReport summarizes a detection pass. Domain failures are reported
// here and never returned as errors.
type DetectReport struct {
	UserID  string         `json:"user_id"`
	Since   time.Time      `json:"since"`
	Domains []DomainReport `json:"domains"`
}

// Failed reports whether any domain failed.
func (r DetectReport) Failed() bool {
	for _, d := range r.Domains {
		if d.Error != "" {
			return true
		}
	}
	return false
}

// Detector promotes repeated raw records into habits. It is safe to run
// concurrently for the same user: every upsert goes through a natural key.
type Detector struct {
	store      store.Store
	log        zerolog.Logger
	windowDays int
	thresholds Thresholds
	templates  Templates
	retry      retrier
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithWindowDays sets the trailing window in days.
func WithWindowDays(days int) DetectorOption {
	return func(d *Detector) {
		if days > 0 {
			d.windowDays = days
		}
	}
}

// WithThresholds replaces DefaultThresholds.
func WithThresholds(t Thresholds) DetectorOption {
	return func(d *Detector) { d.thresholds = t }
}

// WithTemplates replaces ChineseTemplates.
func WithTemplates(t Templates) DetectorOption {
	return func(d *Detector) { d.templates = t }
}

// WithDetectorRetries sets how often a transient write failure is retried.
func WithDetectorRetries(n int) DetectorOption {
	return func(d *Detector) { d.retry.retries = n }
}

// NewDetector returns a Detector over s.
func NewDetector(s store.Store, log zerolog.Logger, opts ...DetectorOption) *Detector {
	d := &Detector{
		store:      s,
		log:        log.With().Str("component", "habit_detector").Logger(),
		windowDays: 30,
		thresholds: DefaultThresholds,
		templates:  ChineseTemplates,
		retry:      newRetrier(3),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect runs every domain over the window ending at now. One domain failing
// does not stop the others.
func (d *Detector) Detect(ctx context.Context, userID string, now time.Time) DetectReport {
	since := now.AddDate(0, 0, -d.windowDays)
	rep := DetectReport{UserID: userID, Since: since}
	sctx := context.WithoutCancel(ctx)

	for _, domain := range []struct {
		name string
		run  func(context.Context, string, time.Time, time.Time, *DomainReport) error
	}{
		{DomainExercise, d.detectExercise},
		{DomainMeal, d.detectMeals},
		{DomainBloodSugar, d.detectBloodSugar},
	} {
		if ctx.Err() != nil {
			break
		}
		rep.Domains = append(rep.Domains, d.runDomain(sctx, domain.name, userID, since, now, domain.run))
	}
	return rep
}

func (d *Detector) runDomain(ctx context.Context, name, userID string, since, now time.Time,
	run func(context.Context, string, time.Time, time.Time, *DomainReport) error) (dr DomainReport) {
	dr.Domain = name
	defer func() {
		if r := recover(); r != nil {
			dr.Error = fmt.Sprintf("panic: %v", r)
			d.log.Error().Str("user_id", userID).Str("domain", name).Interface("panic", r).Msg("habit detection panicked")
		}
	}()
	if err := run(ctx, userID, since, now, &dr); err != nil {
		dr.Error = err.Error()
		d.log.Error().Err(err).Str("user_id", userID).Str("domain", name).Msg("habit detection failed")
	}
	return dr
}

func (d *Detector) detectExercise(ctx context.Context, userID string, since, now time.Time, dr *DomainReport) error {
	records, err := d.store.ListExerciseSince(ctx, userID, since)
	if err != nil {
		return fmt.Errorf("%w: list exercise: %v", model.ErrStorageReadFailed, err)
	}
	dr.Records = len(records)

	counts := map[string]int{}
	for _, r := range records {
		counts[r.ExerciseType]++
	}

	var firstErr error
	for _, exType := range sortedKeys(counts) {
		n := counts[exType]
		if n < d.thresholds.ExerciseHabit {
			continue
		}
		confidence := model.ConfidenceMedium
		if n >= d.thresholds.ExerciseHigh {
			confidence = model.ConfidenceHigh
		}
		action, err := d.upsertHabit(ctx, habit{
			userID:     userID,
			key:        DomainExercise + ":" + exType,
			find:       fmt.Sprintf(d.templates.ExerciseHabitFind, exType),
			content:    fmt.Sprintf(d.templates.ExerciseHabit, exType, n),
			confidence: confidence,
			refresh:    true,
			now:        now,
		})
		d.count(dr, DomainExercise, action, err, &firstErr)

		if n >= d.thresholds.ExerciseImpact {
			action, err := d.upsertPattern(ctx, userID, exType, n, now)
			d.count(dr, DomainExercise, action, err, &firstErr)
		}
	}
	return firstErr
}

func (d *Detector) detectMeals(ctx context.Context, userID string, since, now time.Time, dr *DomainReport) error {
	records, err := d.store.ListMealsSince(ctx, userID, since)
	if err != nil {
		return fmt.Errorf("%w: list meals: %v", model.ErrStorageReadFailed, err)
	}
	dr.Records = len(records)
	if len(records) < d.thresholds.MealMinRecords {
		return nil
	}

	counts := map[string]int{}
	for _, r := range records {
		for _, food := range foodTokens(r.FoodItems) {
			counts[food]++
		}
	}

	var firstErr error
	for _, food := range sortedKeys(counts) {
		if counts[food] < d.thresholds.MealToken {
			continue
		}
		content := fmt.Sprintf(d.templates.MealHabit, food)
		action, err := d.upsertHabit(ctx, habit{
			userID:     userID,
			key:        DomainMeal + ":" + food,
			find:       content,
			content:    content,
			confidence: model.ConfidenceMedium,
			now:        now,
		})
		d.count(dr, DomainMeal, action, err, &firstErr)
	}
	return firstErr
}

func (d *Detector) detectBloodSugar(ctx context.Context, userID string, since, now time.Time, dr *DomainReport) error {
	records, err := d.store.ListBloodSugarSince(ctx, userID, since)
	if err != nil {
		return fmt.Errorf("%w: list blood sugar: %v", model.ErrStorageReadFailed, err)
	}
	dr.Records = len(records)
	if len(records) < d.thresholds.BloodSugarMinRecords {
		return nil
	}

	counts := map[string]int{}
	for _, r := range records {
		counts[r.MeasurementType]++
	}

	var firstErr error
	for _, mt := range sortedKeys(counts) {
		n := counts[mt]
		if n < d.thresholds.BloodSugarGroup {
			continue
		}
		label := d.templates.MeasurementLabels[mt]
		if label == "" {
			label = mt
		}
		action, err := d.upsertHabit(ctx, habit{
			userID:     userID,
			key:        DomainBloodSugar + ":" + mt,
			find:       fmt.Sprintf(d.templates.BloodSugarFind, label),
			content:    fmt.Sprintf(d.templates.BloodSugarHabit, label, n),
			confidence: model.ConfidenceHigh,
			refresh:    true,
			now:        now,
		})
		d.count(dr, DomainBloodSugar, action, err, &firstErr)
	}
	return firstErr
}

type habit struct {
	userID     string
	key        string
	find       string
	content    string
	confidence string
	// refresh rewrites the content of a matching row; otherwise a match is left as is.
	refresh bool
	now     time.Time
}

// upsertHabit looks up an inferred habit preference and refreshes it, or
// inserts it under its natural key.
func (d *Detector) upsertHabit(ctx context.Context, h habit) (string, error) {
	existing, err := d.store.FindPreference(ctx, store.PreferenceQuery{
		UserID:     h.userID,
		Type:       model.PreferenceHabit,
		NaturalKey: h.key,
		Fragment:   h.find,
	})
	if err != nil {
		return "", fmt.Errorf("%w: find habit %q: %v", model.ErrStorageReadFailed, h.key, err)
	}

	if existing == nil {
		var created bool
		err = d.retry.do(ctx, func() error {
			existing, created, err = d.store.InsertPreference(ctx, model.Preference{
				UserID:     h.userID,
				Type:       model.PreferenceHabit,
				Content:    h.content,
				NaturalKey: h.key,
				Confidence: h.confidence,
				Source:     model.SourceInferred,
				CreatedAt:  h.now,
			})
			return err
		})
		if err != nil {
			return "", fmt.Errorf("%w: insert habit %q: %v", model.ErrStorageWriteFailed, h.key, err)
		}
		if created {
			return ActionCreated, nil
		}
	}

	confidence := model.MaxConfidence(existing.Confidence, h.confidence)
	if !h.refresh || (existing.Content == h.content && existing.Confidence == confidence) {
		return ActionUnchanged, nil
	}
	err = d.retry.do(ctx, func() error {
		return d.store.RefreshPreference(ctx, store.PreferenceRefresh{
			ID: existing.ID, Content: h.content, Confidence: confidence, At: h.now,
		})
	})
	if err != nil {
		return "", fmt.Errorf("%w: refresh habit %q: %v", model.ErrStorageWriteFailed, h.key, err)
	}
	return ActionRefreshed, nil
}

// upsertPattern records that a regular exercise helps glucose control, with
// evidence equal to the number of sessions in the window.
func (d *Detector) upsertPattern(ctx context.Context, userID, exType string, n int, now time.Time) (string, error) {
	key := DomainExercise + ":" + exType
	description := fmt.Sprintf(d.templates.ExerciseImpact, exType)
	data := map[string]any{"exercise_type": exType, "count": n}

	existing, err := d.store.FindPattern(ctx, store.PatternQuery{
		UserID: userID, Type: model.PatternActivityImpact, NaturalKey: key, Fragment: description,
	})
	if err != nil {
		return "", fmt.Errorf("%w: find pattern %q: %v", model.ErrStorageReadFailed, key, err)
	}

	if existing != nil {
		if existing.EvidenceCount >= n {
			return ActionUnchanged, nil
		}
		err = d.retry.do(ctx, func() error {
			return d.store.RefreshPattern(ctx, store.PatternRefresh{ID: existing.ID, EvidenceCount: n, Data: data, At: now})
		})
		if err != nil {
			return "", fmt.Errorf("%w: refresh pattern %q: %v", model.ErrStorageWriteFailed, key, err)
		}
		return ActionRefreshed, nil
	}

	var created bool
	err = d.retry.do(ctx, func() error {
		var err error
		_, created, err = d.store.InsertPattern(ctx, store.InsertPatternParams{
			Merge: store.MergeRefresh,
			Pattern: model.BehaviorPattern{
				UserID:         userID,
				Type:           model.PatternActivityImpact,
				Description:    description,
				NaturalKey:     key,
				Data:           data,
				Confidence:     model.ConfidenceHigh,
				EvidenceCount:  n,
				LastObservedAt: now,
			},
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: insert pattern %q: %v", model.ErrStorageWriteFailed, key, err)
	}
	if created {
		return ActionCreated, nil
	}
	return ActionRefreshed, nil
}

func (d *Detector) count(dr *DomainReport, domain, action string, err error, firstErr *error) {
	if err != nil {
		storageFailures.WithLabelValues("habit_" + domain).Inc()
		if *firstErr == nil {
			*firstErr = err
		}
		return
	}
	habitPromotions.WithLabelValues(domain, action).Inc()
	switch action {
	case ActionCreated:
		dr.Created++
		d.log.Info().Str("domain", domain).Msg("habit promoted")
	case ActionRefreshed:
		dr.Refreshed++
	default:
		dr.Unchanged++
	}
}

// foodTokens splits food text into distinct items.
func foodTokens(s string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool { return strings.ContainsRune(foodDelimiters, r) }) {
		tok = strings.TrimSpace(tok)
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
