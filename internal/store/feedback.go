package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rcliao/glucomem/internal/model"
)

const feedbackColumns = `id, user_id, suggestion_content, category, action_taken, outcome_description,
	blood_sugar_before, blood_sugar_after, effectiveness_score, created_at, resolved_at`

// InsertFeedback records a pending suggestion.
func (s *SQLiteStore) InsertFeedback(ctx context.Context, f model.FeedbackRecord) (*model.FeedbackRecord, error) {
	if strings.TrimSpace(f.SuggestionContent) == "" {
		return nil, fmt.Errorf("%w: suggestion content is required", model.ErrValidation)
	}
	if f.Category == "" {
		f.Category = model.CategoryLifestyle
	}
	if !model.ValidCategories[f.Category] {
		return nil, fmt.Errorf("%w: unknown category %q", model.ErrValidation, f.Category)
	}
	f.ID = s.newID()
	f.CreatedAt = stamp(f.CreatedAt)
	f.ActionTaken, f.ResolvedAt = nil, nil
	f.OutcomeDescription = ""
	f.BloodSugarBefore, f.BloodSugarAfter, f.EffectivenessScore = nil, nil, nil

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback_records (id, user_id, suggestion_content, category, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.SuggestionContent, f.Category, formatTime(f.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert feedback: %w", err)
	}
	return &f, nil
}

// ResolveFeedback records the outcome of a pending suggestion.
func (s *SQLiteStore) ResolveFeedback(ctx context.Context, p ResolveFeedbackParams) (*model.FeedbackRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE feedback_records
		 SET action_taken = ?, outcome_description = ?, blood_sugar_before = ?, blood_sugar_after = ?,
		     effectiveness_score = ?, resolved_at = ?
		 WHERE id = ? AND user_id = ? AND action_taken IS NULL`,
		p.ActionTaken, p.OutcomeDescription, p.BloodSugarBefore, p.BloodSugarAfter,
		p.EffectivenessScore, formatTime(stamp(p.At)), p.FeedbackID, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve feedback: %w", err)
	}

	f, getErr := s.getFeedback(ctx, p.UserID, p.FeedbackID)
	if n, _ := res.RowsAffected(); n == 0 {
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("feedback %s already resolved: %w", p.FeedbackID, model.ErrConflict)
	}
	return f, getErr
}

func (s *SQLiteStore) getFeedback(ctx context.Context, userID, id string) (*model.FeedbackRecord, error) {
	f, err := scanFeedback(s.db.QueryRowContext(ctx,
		`SELECT `+feedbackColumns+` FROM feedback_records WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feedback %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFeedback returns feedback records, newest first.
func (s *SQLiteStore) ListFeedback(ctx context.Context, p ListFeedbackParams) ([]model.FeedbackRecord, error) {
	where := []string{"user_id = ?"}
	switch {
	case p.ResolvedOnly:
		where = append(where, "action_taken IS NOT NULL")
	case p.PendingOnly:
		where = append(where, "action_taken IS NULL")
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM feedback_records WHERE %s ORDER BY created_at DESC, id DESC LIMIT ?`,
			feedbackColumns, strings.Join(where, " AND ")),
		p.UserID, limitOr(p.Limit, 20))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.FeedbackRecord
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, f)
	}
	return records, rows.Err()
}

func scanFeedback(row scanner) (model.FeedbackRecord, error) {
	var f model.FeedbackRecord
	var actionTaken sql.NullBool
	var before, after sql.NullFloat64
	var score sql.NullInt64
	var createdAt string
	var resolvedAt sql.NullString

	err := row.Scan(&f.ID, &f.UserID, &f.SuggestionContent, &f.Category, &actionTaken, &f.OutcomeDescription,
		&before, &after, &score, &createdAt, &resolvedAt)
	if err != nil {
		return f, err
	}
	if actionTaken.Valid {
		v := actionTaken.Bool
		f.ActionTaken = &v
	}
	if before.Valid {
		v := before.Float64
		f.BloodSugarBefore = &v
	}
	if after.Valid {
		v := after.Float64
		f.BloodSugarAfter = &v
	}
	if score.Valid {
		v := int(score.Int64)
		f.EffectivenessScore = &v
	}
	f.CreatedAt = parseTime(createdAt)
	f.ResolvedAt = parseNullTime(resolvedAt)
	return f, nil
}
