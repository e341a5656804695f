package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rcliao/glucomem/internal/model"
)

// GetProfile returns the user's profile, or nil if none exists yet.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	var username, diabetesType, medication, notes sql.NullString
	var targetMin, targetMax sql.NullFloat64
	var updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, diabetes_type, medication, target_blood_sugar_min, target_blood_sugar_max,
		        health_notes, updated_at
		 FROM profiles WHERE user_id = ?`, userID).
		Scan(&p.UserID, &username, &diabetesType, &medication, &targetMin, &targetMax, &notes, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Username = username.String
	p.DiabetesType = diabetesType.String
	p.Medication = medication.String
	p.HealthNotes = notes.String
	p.TargetBloodSugarMin = targetMin.Float64
	p.TargetBloodSugarMax = targetMax.Float64
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// MergeProfile writes the non-empty fields of u over the stored profile.
// A target range is only written when both ends are present and ordered.
func (s *SQLiteStore) MergeProfile(ctx context.Context, u ProfileUpdate) (*model.Profile, error) {
	if u.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", model.ErrValidation)
	}
	var targetMin, targetMax interface{}
	if u.TargetBloodSugarMin != 0 || u.TargetBloodSugarMax != 0 {
		if u.TargetBloodSugarMin <= 0 || u.TargetBloodSugarMax <= u.TargetBloodSugarMin {
			return nil, fmt.Errorf("%w: target range %.1f-%.1f", model.ErrValidation, u.TargetBloodSugarMin, u.TargetBloodSugarMax)
		}
		targetMin, targetMax = u.TargetBloodSugarMin, u.TargetBloodSugarMax
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, username, diabetes_type, medication, target_blood_sugar_min,
		                       target_blood_sugar_max, health_notes, updated_at)
		 VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?, NULLIF(?, ''), ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			username = COALESCE(excluded.username, profiles.username),
			diabetes_type = COALESCE(excluded.diabetes_type, profiles.diabetes_type),
			medication = COALESCE(excluded.medication, profiles.medication),
			target_blood_sugar_min = COALESCE(excluded.target_blood_sugar_min, profiles.target_blood_sugar_min),
			target_blood_sugar_max = COALESCE(excluded.target_blood_sugar_max, profiles.target_blood_sugar_max),
			health_notes = COALESCE(excluded.health_notes, profiles.health_notes),
			updated_at = excluded.updated_at`,
		u.UserID, u.Username, u.DiabetesType, u.Medication, targetMin, targetMax, u.HealthNotes,
		formatTime(stamp(u.At)))
	if err != nil {
		return nil, fmt.Errorf("merge profile: %w", err)
	}
	return s.GetProfile(ctx, u.UserID)
}
