package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath          string      `json:"db_path"`
	DBSizeBytes     int64       `json:"db_size_bytes"`
	Users           int         `json:"users"`
	Tables          []TableStat `json:"tables"`
	PendingFeedback int         `json:"pending_feedback"`
}

// TableStat holds the row count of one table, optionally scoped to a user.
type TableStat struct {
	Table string `json:"table"`
	Count int    `json:"count"`
}

var statTables = []string{
	"memory_events",
	"blood_sugar_records",
	"meal_records",
	"exercise_records",
	"user_preferences",
	"behavior_patterns",
	"feedback_records",
	"turn_logs",
}

// Stats returns database statistics. An empty userID counts every user.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath, userID string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	// DB file size
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	where, args := "", []interface{}{}
	if userID != "" {
		where, args = " WHERE user_id = ?", []interface{}{userID}
	}

	for _, table := range statTables {
		ts := TableStat{Table: table}
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+where, args...).Scan(&ts.Count); err != nil {
			return st, err
		}
		st.Tables = append(st.Tables, ts)
	}

	pending := `SELECT COUNT(*) FROM feedback_records WHERE action_taken IS NULL`
	if userID != "" {
		pending += ` AND user_id = ?`
	}
	s.db.QueryRowContext(ctx, pending, args...).Scan(&st.PendingFeedback)

	s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT user_id) FROM (
		SELECT user_id FROM memory_events UNION SELECT user_id FROM profiles
	)`+where, args...).Scan(&st.Users)

	return st, nil
}
