package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rcliao/glucomem/internal/model"
)

// InsertEvent appends a memory event. Importance outside 1..10 is clamped.
func (s *SQLiteStore) InsertEvent(ctx context.Context, e model.MemoryEvent) (*model.MemoryEvent, error) {
	if !model.ValidEventTypes[e.Type] {
		return nil, fmt.Errorf("%w: unknown event type %q", model.ErrValidation, e.Type)
	}
	e.ID = s.newID()
	e.CreatedAt = stamp(time.Now())
	e.EventTime = stamp(e.EventTime)
	switch {
	case e.Importance < 1:
		e.Importance = 1
	case e.Importance > 10:
		e.Importance = 10
	}

	data, err := marshalJSON(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	tags, err := marshalJSON(e.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memory_events (id, user_id, event_type, event_summary, event_data, tags, importance_score, event_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, string(e.Type), e.Summary, data, tags, e.Importance,
		formatTime(e.EventTime), formatTime(e.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return &e, nil
}

// InsertBloodSugar appends a blood sugar reading.
func (s *SQLiteStore) InsertBloodSugar(ctx context.Context, r model.BloodSugarRecord) (*model.BloodSugarRecord, error) {
	if r.Value <= 0 {
		return nil, fmt.Errorf("%w: blood sugar value must be positive", model.ErrValidation)
	}
	if !model.ValidMeasurementTypes[r.MeasurementType] {
		return nil, fmt.Errorf("%w: unknown measurement type %q", model.ErrValidation, r.MeasurementType)
	}
	r.ID = s.newID()
	r.MeasuredAt = stamp(r.MeasuredAt)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blood_sugar_records (id, user_id, value, measurement_type, measured_at, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Value, r.MeasurementType, formatTime(r.MeasuredAt), r.Notes, formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("insert blood sugar: %w", err)
	}
	return &r, nil
}

// InsertMeal appends a meal.
func (s *SQLiteStore) InsertMeal(ctx context.Context, r model.MealRecord) (*model.MealRecord, error) {
	if r.FoodItems == "" {
		return nil, fmt.Errorf("%w: meal food items are required", model.ErrValidation)
	}
	if !model.ValidMealTypes[r.MealType] {
		return nil, fmt.Errorf("%w: unknown meal type %q", model.ErrValidation, r.MealType)
	}
	r.ID = s.newID()
	r.MealTime = stamp(r.MealTime)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meal_records (id, user_id, meal_type, food_items, meal_time, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.MealType, r.FoodItems, formatTime(r.MealTime), r.Notes, formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("insert meal: %w", err)
	}
	return &r, nil
}

// InsertExercise appends an exercise session.
func (s *SQLiteStore) InsertExercise(ctx context.Context, r model.ExerciseRecord) (*model.ExerciseRecord, error) {
	if r.ExerciseType == "" {
		return nil, fmt.Errorf("%w: exercise type is required", model.ErrValidation)
	}
	if r.DurationMinutes < 0 {
		return nil, fmt.Errorf("%w: negative exercise duration", model.ErrValidation)
	}
	if !model.ValidIntensities[r.Intensity] {
		return nil, fmt.Errorf("%w: unknown intensity %q", model.ErrValidation, r.Intensity)
	}
	r.ID = s.newID()
	r.ExerciseTime = stamp(r.ExerciseTime)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exercise_records (id, user_id, exercise_type, duration_minutes, intensity, exercise_time, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.ExerciseType, r.DurationMinutes, r.Intensity, formatTime(r.ExerciseTime), r.Notes, formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("insert exercise: %w", err)
	}
	return &r, nil
}

// RecentEvents returns the newest events for a user.
func (s *SQLiteStore) RecentEvents(ctx context.Context, userID string, limit int) ([]model.MemoryEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, event_type, event_summary, event_data, tags, importance_score, event_time, created_at
		 FROM memory_events WHERE user_id = ?
		 ORDER BY event_time DESC, id DESC LIMIT ?`, userID, limitOr(limit, 10))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.MemoryEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentBloodSugar returns the newest readings for a user.
func (s *SQLiteStore) RecentBloodSugar(ctx context.Context, userID string, limit int) ([]model.BloodSugarRecord, error) {
	return s.queryBloodSugar(ctx,
		`SELECT id, user_id, value, measurement_type, measured_at, notes
		 FROM blood_sugar_records WHERE user_id = ?
		 ORDER BY measured_at DESC, id DESC LIMIT ?`, userID, limitOr(limit, 5))
}

// ListBloodSugarSince returns readings measured at or after since.
func (s *SQLiteStore) ListBloodSugarSince(ctx context.Context, userID string, since time.Time) ([]model.BloodSugarRecord, error) {
	return s.queryBloodSugar(ctx,
		`SELECT id, user_id, value, measurement_type, measured_at, notes
		 FROM blood_sugar_records WHERE user_id = ? AND measured_at >= ?
		 ORDER BY measured_at DESC, id DESC`, userID, formatTime(since))
}

func (s *SQLiteStore) queryBloodSugar(ctx context.Context, query string, args ...interface{}) ([]model.BloodSugarRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.BloodSugarRecord
	for rows.Next() {
		var r model.BloodSugarRecord
		var measuredAt string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Value, &r.MeasurementType, &measuredAt, &r.Notes); err != nil {
			return nil, err
		}
		r.MeasuredAt = parseTime(measuredAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListMealsSince returns meals eaten at or after since.
func (s *SQLiteStore) ListMealsSince(ctx context.Context, userID string, since time.Time) ([]model.MealRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, meal_type, food_items, meal_time, notes
		 FROM meal_records WHERE user_id = ? AND meal_time >= ?
		 ORDER BY meal_time DESC, id DESC`, userID, formatTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.MealRecord
	for rows.Next() {
		var r model.MealRecord
		var mealTime string
		if err := rows.Scan(&r.ID, &r.UserID, &r.MealType, &r.FoodItems, &mealTime, &r.Notes); err != nil {
			return nil, err
		}
		r.MealTime = parseTime(mealTime)
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListExerciseSince returns exercise sessions at or after since.
func (s *SQLiteStore) ListExerciseSince(ctx context.Context, userID string, since time.Time) ([]model.ExerciseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, exercise_type, duration_minutes, intensity, exercise_time, notes
		 FROM exercise_records WHERE user_id = ? AND exercise_time >= ?
		 ORDER BY exercise_time DESC, id DESC`, userID, formatTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.ExerciseRecord
	for rows.Next() {
		var r model.ExerciseRecord
		var exerciseTime string
		if err := rows.Scan(&r.ID, &r.UserID, &r.ExerciseType, &r.DurationMinutes, &r.Intensity, &exerciseTime, &r.Notes); err != nil {
			return nil, err
		}
		r.ExerciseTime = parseTime(exerciseTime)
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanEvent(row scanner) (model.MemoryEvent, error) {
	var e model.MemoryEvent
	var eventType, eventTime, createdAt string
	var data, tags sql.NullString

	err := row.Scan(&e.ID, &e.UserID, &eventType, &e.Summary, &data, &tags, &e.Importance, &eventTime, &createdAt)
	if err != nil {
		return e, err
	}
	e.Type = model.EventType(eventType)
	e.EventTime = parseTime(eventTime)
	e.CreatedAt = parseTime(createdAt)
	unmarshalJSON(data, &e.Data)
	unmarshalJSON(tags, &e.Tags)
	return e, nil
}
