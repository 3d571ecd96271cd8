package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/bij27/hohm.studio/internal/models"
)

const maxLogsPerSession = 10000

func validateSession(s models.PracticeSession) error {
	if len(s.ID) < 10 {
		return fmt.Errorf("invalid session id %q", s.ID)
	}
	if s.Kind != "yoga" && s.Kind != "desk" {
		return fmt.Errorf("invalid session kind %q", s.Kind)
	}
	if s.DurationMinutes < 0 || s.DurationMinutes > 1440 {
		return fmt.Errorf("invalid duration_minutes: %v", s.DurationMinutes)
	}
	if s.GoodPercentage < 0 || s.GoodPercentage > 100 {
		return fmt.Errorf("invalid good_posture_percentage: %v", s.GoodPercentage)
	}
	if s.AverageScore < 0 || s.AverageScore > 100 {
		return fmt.Errorf("invalid average_score: %v", s.AverageScore)
	}
	if s.TotalLogs < 0 {
		return fmt.Errorf("invalid total_logs: %d", s.TotalLogs)
	}
	return nil
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func SessionExists(ctx context.Context, id string) bool {
	var one int
	err := DB.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE id = $1 LIMIT 1", id).Scan(&one)
	return err == nil
}

// SaveSession inserts a finished session. Saving the same session
// twice is not an error: the second write is skipped.
func SaveSession(ctx context.Context, s models.PracticeSession) error {
	if err := validateSession(s); err != nil {
		log.Printf("[DB] session validation failed: %v", err)
		return err
	}

	if SessionExists(ctx, s.ID) {
		log.Printf("[DB] session %s already exists, skipping", s.ID)
		return nil
	}

	s.DurationMinutes = clampFloat(s.DurationMinutes, 0, 1440)
	s.GoodPercentage = clampFloat(s.GoodPercentage, 0, 100)
	s.AverageScore = clampFloat(s.AverageScore, 0, 100)

	_, err := DB.ExecContext(ctx, `
		INSERT INTO sessions
		(id, user_id, kind, start_time, end_time, duration_minutes, good_posture_percentage, average_score, grade, total_logs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		s.ID, s.UserID, s.Kind, s.StartTime, s.EndTime,
		s.DurationMinutes, s.GoodPercentage, s.AverageScore, s.Grade, s.TotalLogs,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func SaveLog(ctx context.Context, l models.PostureLog) error {
	if l.SessionID == "" {
		return fmt.Errorf("missing session_id")
	}

	l.Score = clampFloat(l.Score, 0, 10)
	if len(l.Status) > 20 {
		l.Status = l.Status[:20]
	}
	if len(l.Issues) > 10 {
		l.Issues = l.Issues[:10]
	}
	issues, err := json.Marshal(l.Issues)
	if err != nil {
		issues = []byte("[]")
	}

	_, err = DB.ExecContext(ctx, `
		INSERT INTO logs (session_id, timestamp, status, score, issues)
		VALUES ($1, $2, $3, $4, $5)`,
		l.SessionID, l.Timestamp, l.Status, l.Score, issues,
	)
	if err != nil {
		return fmt.Errorf("save log: %w", err)
	}
	return nil
}

func CountLogs(ctx context.Context, sessionID string) int {
	var n int
	if err := DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM logs WHERE session_id = $1", sessionID).Scan(&n); err != nil {
		return 0
	}
	return n
}

// LogAllowed reports whether the session may accept one more log.
func LogAllowed(ctx context.Context, sessionID string) bool {
	return CountLogs(ctx, sessionID) < maxLogsPerSession
}

func GetSessions(ctx context.Context, userID *int) ([]models.PracticeSession, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if userID != nil {
		rows, err = DB.QueryContext(ctx, `
			SELECT id, user_id, kind, start_time, end_time, duration_minutes, good_posture_percentage, average_score, grade, total_logs
			FROM sessions WHERE user_id = $1 ORDER BY start_time DESC`, *userID)
	} else {
		rows, err = DB.QueryContext(ctx, `
			SELECT id, user_id, kind, start_time, end_time, duration_minutes, good_posture_percentage, average_score, grade, total_logs
			FROM sessions WHERE user_id IS NULL ORDER BY start_time DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("get sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.PracticeSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func GetSession(ctx context.Context, id string) (*models.PracticeSession, error) {
	row := DB.QueryRowContext(ctx, `
		SELECT id, user_id, kind, start_time, end_time, duration_minutes, good_posture_percentage, average_score, grade, total_logs
		FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (models.PracticeSession, error) {
	var (
		s       models.PracticeSession
		userID  sql.NullInt64
		endTime sql.NullTime
	)
	err := row.Scan(&s.ID, &userID, &s.Kind, &s.StartTime, &endTime,
		&s.DurationMinutes, &s.GoodPercentage, &s.AverageScore, &s.Grade, &s.TotalLogs)
	if err != nil {
		return s, err
	}
	if userID.Valid {
		v := int(userID.Int64)
		s.UserID = &v
	}
	if endTime.Valid {
		s.EndTime = &endTime.Time
	}
	return s, nil
}

func GetSessionLogs(ctx context.Context, sessionID string) ([]models.PostureLog, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT id, session_id, timestamp, status, score, issues
		FROM logs WHERE session_id = $1 ORDER BY timestamp`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get logs: %w", err)
	}
	defer rows.Close()

	var logs []models.PostureLog
	for rows.Next() {
		var (
			l      models.PostureLog
			issues []byte
		)
		if err := rows.Scan(&l.ID, &l.SessionID, &l.Timestamp, &l.Status, &l.Score, &issues); err != nil {
			continue
		}
		if err := json.Unmarshal(issues, &l.Issues); err != nil {
			l.Issues = nil
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// DeleteSession removes a session and its logs. Returns sql.ErrNoRows
// when the session does not exist.
func DeleteSession(ctx context.Context, id string) error {
	var one int
	err := DB.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE id = $1", id).Scan(&one)
	if err != nil {
		return err
	}

	if _, err := DB.ExecContext(ctx, "DELETE FROM logs WHERE session_id = $1", id); err != nil {
		log.Printf("[DB] failed to delete logs for %s: %v", id, err)
	}
	_, err = DB.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1", id)
	return err
}

func ClearSessions(ctx context.Context) error {
	if _, err := DB.ExecContext(ctx, "DELETE FROM logs"); err != nil {
		return err
	}
	_, err := DB.ExecContext(ctx, "DELETE FROM sessions")
	return err
}
