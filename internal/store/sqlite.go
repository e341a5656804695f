package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timeLayout sorts lexically in the same order as the instants it encodes.
// All stored times are UTC.
const timeLayout = "2006-01-02T15:04:05.000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memory_events (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		event_type       TEXT NOT NULL CHECK (event_type IN ('blood_sugar','meal','exercise','medication','conversation')),
		event_summary    TEXT NOT NULL DEFAULT '',
		event_data       TEXT,
		tags             TEXT,
		importance_score INTEGER NOT NULL DEFAULT 5 CHECK (importance_score BETWEEN 1 AND 10),
		event_time       TEXT NOT NULL,
		created_at       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_user_time ON memory_events(user_id, event_time DESC);

	CREATE TABLE IF NOT EXISTS blood_sugar_records (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		value            REAL NOT NULL CHECK (value > 0),
		measurement_type TEXT NOT NULL CHECK (measurement_type IN ('fasting','before_meal','after_meal','bedtime','random')),
		measured_at      TEXT NOT NULL,
		notes            TEXT NOT NULL DEFAULT '',
		created_at       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_blood_sugar_user_time ON blood_sugar_records(user_id, measured_at DESC);

	CREATE TABLE IF NOT EXISTS meal_records (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		meal_type   TEXT NOT NULL CHECK (meal_type IN ('breakfast','lunch','dinner','snack')),
		food_items  TEXT NOT NULL CHECK (food_items <> ''),
		meal_time   TEXT NOT NULL,
		notes       TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_meals_user_time ON meal_records(user_id, meal_time DESC);

	CREATE TABLE IF NOT EXISTS exercise_records (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		exercise_type    TEXT NOT NULL CHECK (exercise_type <> ''),
		duration_minutes INTEGER NOT NULL CHECK (duration_minutes >= 0),
		intensity        TEXT NOT NULL CHECK (intensity IN ('light','moderate','vigorous')),
		exercise_time    TEXT NOT NULL,
		notes            TEXT NOT NULL DEFAULT '',
		created_at       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exercise_user_time ON exercise_records(user_id, exercise_time DESC);

	CREATE TABLE IF NOT EXISTS user_preferences (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		preference_type TEXT NOT NULL CHECK (preference_type IN ('allergy','dislike','habit','schedule')),
		content         TEXT NOT NULL,
		natural_key     TEXT NOT NULL,
		confidence      TEXT NOT NULL CHECK (confidence IN ('low','medium','high')),
		source          TEXT NOT NULL CHECK (source IN ('user_stated','inferred')),
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS uq_preferences_key ON user_preferences(user_id, preference_type, natural_key);

	CREATE TABLE IF NOT EXISTS behavior_patterns (
		id                  TEXT PRIMARY KEY,
		user_id             TEXT NOT NULL,
		pattern_type        TEXT NOT NULL CHECK (pattern_type IN ('food_reaction','time_pattern','activity_impact')),
		pattern_description TEXT NOT NULL,
		natural_key         TEXT NOT NULL,
		pattern_data        TEXT,
		confidence          TEXT NOT NULL CHECK (confidence IN ('low','medium','high')),
		evidence_count      INTEGER NOT NULL DEFAULT 1 CHECK (evidence_count >= 1),
		last_observed_at    TEXT NOT NULL,
		created_at          TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS uq_patterns_key ON behavior_patterns(user_id, pattern_type, natural_key);

	CREATE TABLE IF NOT EXISTS feedback_records (
		id                  TEXT PRIMARY KEY,
		user_id             TEXT NOT NULL,
		suggestion_content  TEXT NOT NULL,
		category            TEXT NOT NULL CHECK (category IN ('diet','exercise','medication','lifestyle')),
		action_taken        INTEGER,
		outcome_description TEXT NOT NULL DEFAULT '',
		blood_sugar_before  REAL,
		blood_sugar_after   REAL,
		effectiveness_score INTEGER CHECK (effectiveness_score BETWEEN 1 AND 10),
		created_at          TEXT NOT NULL,
		resolved_at         TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_user_created ON feedback_records(user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS profiles (
		user_id                TEXT PRIMARY KEY,
		username               TEXT,
		diabetes_type          TEXT,
		medication             TEXT,
		target_blood_sugar_min REAL,
		target_blood_sugar_max REAL,
		health_notes           TEXT,
		updated_at             TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turn_logs (
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL,
		session_id         TEXT NOT NULL DEFAULT '',
		user_message       TEXT NOT NULL DEFAULT '',
		assistant_text     TEXT NOT NULL DEFAULT '',
		memory_updates     TEXT,
		data_recorded      TEXT,
		processing_time_ms INTEGER NOT NULL DEFAULT 0,
		status             TEXT NOT NULL,
		created_at         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turn_logs_user_created ON turn_logs(user_id, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// IsTransient reports whether err is a lock contention error worth retrying.
func IsTransient(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

// stamp truncates to the stored precision so returned values compare equal to
// what a later read yields.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return parseTime(formatTime(t))
}

func marshalJSON(v any) (*string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if len(x) == 0 {
			return nil, nil
		}
	case map[string]int:
		if len(x) == 0 {
			return nil, nil
		}
	case []string:
		if len(x) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func unmarshalJSON(ns sql.NullString, v any) {
	if ns.Valid && ns.String != "" {
		json.Unmarshal([]byte(ns.String), v)
	}
}

// escapeLike escapes LIKE wildcards for use with ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
