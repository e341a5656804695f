package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rcliao/glucomem/internal/model"
)

const preferenceColumns = `id, user_id, preference_type, content, natural_key, confidence, source, created_at, updated_at`

// FindPreference returns the preference matching q, or nil.
func (s *SQLiteStore) FindPreference(ctx context.Context, q PreferenceQuery) (*model.Preference, error) {
	var or []string
	var args []interface{}
	if q.NaturalKey != "" {
		or = append(or, "natural_key = ?")
		args = append(args, q.NaturalKey)
	}
	if q.Content != "" {
		or = append(or, "content = ?")
		args = append(args, q.Content)
	}
	if q.Fragment != "" {
		or = append(or, `content LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q.Fragment)+"%")
	}
	if len(or) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM user_preferences
		WHERE user_id = ? AND preference_type = ? AND (%s)
		ORDER BY CASE WHEN natural_key = ? OR content = ? THEN 0 ELSE 1 END, created_at ASC, id ASC
		LIMIT 1`, preferenceColumns, strings.Join(or, " OR "))
	args = append([]interface{}{q.UserID, q.Type}, args...)
	args = append(args, q.NaturalKey, q.Content)

	p, err := scanPreference(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertPreference inserts p unless its natural key already exists for the
// user and type.
func (s *SQLiteStore) InsertPreference(ctx context.Context, p model.Preference) (*model.Preference, bool, error) {
	if !model.ValidPreferenceTypes[p.Type] {
		return nil, false, fmt.Errorf("%w: unknown preference type %q", model.ErrValidation, p.Type)
	}
	if strings.TrimSpace(p.Content) == "" {
		return nil, false, fmt.Errorf("%w: preference content is required", model.ErrValidation)
	}
	if p.Confidence == "" {
		p.Confidence = model.ConfidenceHigh
	}
	if p.Source == "" {
		p.Source = model.SourceUserStated
	}
	if !model.ValidConfidences[p.Confidence] || !model.ValidSources[p.Source] {
		return nil, false, fmt.Errorf("%w: bad confidence %q or source %q", model.ErrValidation, p.Confidence, p.Source)
	}
	if p.NaturalKey == "" {
		p.NaturalKey = strings.ToLower(strings.TrimSpace(p.Content))
	}

	p.ID = s.newID()
	now := stamp(p.CreatedAt)
	p.CreatedAt, p.UpdatedAt = now, now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_preferences (`+preferenceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, preference_type, natural_key) DO NOTHING`,
		p.ID, p.UserID, p.Type, p.Content, p.NaturalKey, p.Confidence, p.Source,
		formatTime(now), formatTime(now))
	if err != nil {
		return nil, false, fmt.Errorf("insert preference: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return &p, true, nil
	}

	existing, err := s.FindPreference(ctx, PreferenceQuery{UserID: p.UserID, Type: p.Type, NaturalKey: p.NaturalKey})
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("preference %q vanished after conflict", p.NaturalKey)
	}
	return existing, false, nil
}

// RefreshPreference rewrites the content of an existing preference.
func (s *SQLiteStore) RefreshPreference(ctx context.Context, r PreferenceRefresh) error {
	if r.Confidence != "" && !model.ValidConfidences[r.Confidence] {
		return fmt.Errorf("%w: unknown confidence %q", model.ErrValidation, r.Confidence)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_preferences
		 SET content = ?, confidence = COALESCE(NULLIF(?, ''), confidence), updated_at = ?
		 WHERE id = ?`,
		r.Content, r.Confidence, formatTime(stamp(r.At)), r.ID)
	if err != nil {
		return fmt.Errorf("refresh preference: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("preference %s: %w", r.ID, model.ErrNotFound)
	}
	return nil
}

// ListPreferences returns preferences, most recently updated first.
func (s *SQLiteStore) ListPreferences(ctx context.Context, p ListPreferencesParams) ([]model.Preference, error) {
	where := []string{"user_id = ?"}
	args := []interface{}{p.UserID}
	if p.Type != "" {
		where = append(where, "preference_type = ?")
		args = append(args, p.Type)
	}
	args = append(args, limitOr(p.Limit, 20))

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM user_preferences WHERE %s ORDER BY updated_at DESC, id DESC LIMIT ?`,
			preferenceColumns, strings.Join(where, " AND ")), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []model.Preference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

func scanPreference(row scanner) (model.Preference, error) {
	var p model.Preference
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.UserID, &p.Type, &p.Content, &p.NaturalKey, &p.Confidence, &p.Source, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}
