package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rcliao/glucomem/internal/model"
)

const patternColumns = `id, user_id, pattern_type, pattern_description, natural_key, pattern_data,
	confidence, evidence_count, last_observed_at, created_at`

// confidenceRankSQL mirrors model.ConfidenceRank.
func confidenceRankSQL(expr string) string {
	return "(CASE " + expr + " WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END)"
}

// strongerConfidenceSQL picks the higher ranked of two confidence expressions.
func strongerConfidenceSQL(candidate, current string) string {
	return fmt.Sprintf("CASE WHEN %s > %s THEN %s ELSE %s END",
		confidenceRankSQL(candidate), confidenceRankSQL(current), candidate, current)
}

// FindPattern returns the pattern matching q, or nil.
func (s *SQLiteStore) FindPattern(ctx context.Context, q PatternQuery) (*model.BehaviorPattern, error) {
	var or []string
	var args []interface{}
	if q.NaturalKey != "" {
		or = append(or, "natural_key = ?")
		args = append(args, q.NaturalKey)
	}
	if q.Fragment != "" {
		or = append(or, `pattern_description LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q.Fragment)+"%")
	}
	if len(or) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM behavior_patterns
		WHERE user_id = ? AND pattern_type = ? AND (%s)
		ORDER BY CASE WHEN natural_key = ? THEN 0 ELSE 1 END, evidence_count DESC, created_at ASC
		LIMIT 1`, patternColumns, strings.Join(or, " OR "))
	args = append([]interface{}{q.UserID, q.Type}, args...)
	args = append(args, q.NaturalKey)

	p, err := scanPattern(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertPattern inserts a pattern, merging into the row that already holds
// its natural key when there is one.
func (s *SQLiteStore) InsertPattern(ctx context.Context, in InsertPatternParams) (*model.BehaviorPattern, bool, error) {
	p := in.Pattern
	if !model.ValidPatternTypes[p.Type] {
		return nil, false, fmt.Errorf("%w: unknown pattern type %q", model.ErrValidation, p.Type)
	}
	if strings.TrimSpace(p.Description) == "" {
		return nil, false, fmt.Errorf("%w: pattern description is required", model.ErrValidation)
	}
	if p.Confidence == "" {
		p.Confidence = model.ConfidenceMedium
	}
	if !model.ValidConfidences[p.Confidence] {
		return nil, false, fmt.Errorf("%w: unknown confidence %q", model.ErrValidation, p.Confidence)
	}
	if p.EvidenceCount < 1 {
		p.EvidenceCount = 1
	}
	if p.NaturalKey == "" {
		p.NaturalKey = strings.ToLower(strings.TrimSpace(p.Description))
	}
	data, err := marshalJSON(p.Data)
	if err != nil {
		return nil, false, fmt.Errorf("marshal pattern data: %w", err)
	}

	p.ID = s.newID()
	observed := stamp(p.LastObservedAt)

	var merge string
	switch in.Merge {
	case MergeRefresh:
		merge = `evidence_count = MAX(behavior_patterns.evidence_count, excluded.evidence_count),
			pattern_data = COALESCE(excluded.pattern_data, behavior_patterns.pattern_data)`
	default:
		merge = `evidence_count = behavior_patterns.evidence_count + 1`
	}

	query := fmt.Sprintf(`INSERT INTO behavior_patterns (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, pattern_type, natural_key) DO UPDATE SET
			%s,
			confidence = %s,
			last_observed_at = excluded.last_observed_at
		RETURNING %s`,
		patternColumns, merge,
		strongerConfidenceSQL("excluded.confidence", "behavior_patterns.confidence"),
		patternColumns)

	got, err := scanPattern(s.db.QueryRowContext(ctx, query,
		p.ID, p.UserID, p.Type, p.Description, p.NaturalKey, data,
		p.Confidence, p.EvidenceCount, formatTime(observed), formatTime(observed)))
	if err != nil {
		return nil, false, fmt.Errorf("insert pattern: %w", err)
	}
	return &got, got.ID == p.ID, nil
}

// ReinforcePattern adds one piece of evidence to a pattern.
func (s *SQLiteStore) ReinforcePattern(ctx context.Context, r PatternReinforce) error {
	if r.Confidence == "" {
		r.Confidence = model.ConfidenceLow
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE behavior_patterns
		 SET evidence_count = evidence_count + 1, confidence = %s, last_observed_at = ?
		 WHERE id = ?`, strongerConfidenceSQL("?", "confidence")),
		r.Confidence, r.Confidence, formatTime(stamp(r.At)), r.ID)
	if err != nil {
		return fmt.Errorf("reinforce pattern: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pattern %s: %w", r.ID, model.ErrNotFound)
	}
	return nil
}

// RefreshPattern raises a pattern's evidence to a freshly counted value.
// Evidence never decreases.
func (s *SQLiteStore) RefreshPattern(ctx context.Context, r PatternRefresh) error {
	data, err := marshalJSON(r.Data)
	if err != nil {
		return fmt.Errorf("marshal pattern data: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE behavior_patterns
		 SET evidence_count = MAX(evidence_count, ?), pattern_data = COALESCE(?, pattern_data), last_observed_at = ?
		 WHERE id = ?`,
		r.EvidenceCount, data, formatTime(stamp(r.At)), r.ID)
	if err != nil {
		return fmt.Errorf("refresh pattern: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pattern %s: %w", r.ID, model.ErrNotFound)
	}
	return nil
}

// ListPatterns returns patterns ordered by evidence, strongest first.
func (s *SQLiteStore) ListPatterns(ctx context.Context, p ListPatternsParams) ([]model.BehaviorPattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+patternColumns+` FROM behavior_patterns
		 WHERE user_id = ? AND evidence_count >= ?
		 ORDER BY evidence_count DESC, last_observed_at DESC, id ASC
		 LIMIT ?`, p.UserID, p.MinEvidence, limitOr(p.Limit, 10))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []model.BehaviorPattern
	for rows.Next() {
		bp, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, bp)
	}
	return patterns, rows.Err()
}

func scanPattern(row scanner) (model.BehaviorPattern, error) {
	var p model.BehaviorPattern
	var data sql.NullString
	var lastObserved, createdAt string
	err := row.Scan(&p.ID, &p.UserID, &p.Type, &p.Description, &p.NaturalKey, &data,
		&p.Confidence, &p.EvidenceCount, &lastObserved, &createdAt)
	if err != nil {
		return p, err
	}
	unmarshalJSON(data, &p.Data)
	p.LastObservedAt = parseTime(lastObserved)
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}
