package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rcliao/glucomem/internal/model"
)

// InsertTurnLog records one processed turn.
func (s *SQLiteStore) InsertTurnLog(ctx context.Context, l model.TurnLog) (*model.TurnLog, error) {
	l.ID = s.newID()
	l.CreatedAt = stamp(l.CreatedAt)

	updates, err := marshalJSON(l.MemoryUpdates)
	if err != nil {
		return nil, fmt.Errorf("marshal memory updates: %w", err)
	}
	recorded, err := marshalJSON(l.DataRecorded)
	if err != nil {
		return nil, fmt.Errorf("marshal data recorded: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turn_logs (id, user_id, session_id, user_message, assistant_text, memory_updates,
		                        data_recorded, processing_time_ms, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.UserID, l.SessionID, l.UserMessage, l.AssistantText, updates, recorded,
		l.ProcessingTimeMS, l.Status, formatTime(l.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert turn log: %w", err)
	}
	return &l, nil
}

// ListTurnLogs returns the newest turn logs for a user.
func (s *SQLiteStore) ListTurnLogs(ctx context.Context, userID string, limit int) ([]model.TurnLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, user_message, assistant_text, memory_updates, data_recorded,
		        processing_time_ms, status, created_at
		 FROM turn_logs WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limitOr(limit, 20))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []model.TurnLog
	for rows.Next() {
		var l model.TurnLog
		var updates, recorded sql.NullString
		var createdAt string
		if err := rows.Scan(&l.ID, &l.UserID, &l.SessionID, &l.UserMessage, &l.AssistantText,
			&updates, &recorded, &l.ProcessingTimeMS, &l.Status, &createdAt); err != nil {
			return nil, err
		}
		unmarshalJSON(updates, &l.MemoryUpdates)
		unmarshalJSON(recorded, &l.DataRecorded)
		l.CreatedAt = parseTime(createdAt)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
