package models

import "time"

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// PracticeSession is one saved practice: a yoga flow or a desk
// posture sitting. Kind is "yoga" or "desk".
type PracticeSession struct {
	ID              string     `json:"id"`
	UserID          *int       `json:"user_id,omitempty"`
	Kind            string     `json:"kind"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes float64    `json:"duration_minutes"`
	GoodPercentage  float64    `json:"good_posture_percentage"`
	AverageScore    float64    `json:"average_score"`
	Grade           string     `json:"grade,omitempty"`
	TotalLogs       int        `json:"total_logs"`
}

// PostureLog is one logged posture interval within a session.
type PostureLog struct {
	ID        int       `json:"id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Score     float64   `json:"score"`
	Issues    []string  `json:"issues"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type GenerateManifestRequest struct {
	PoseIDs      []string `json:"pose_ids,omitempty"`
	DurationMins int      `json:"duration_mins,omitempty"`
	Focus        string   `json:"focus,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"`
	Style        string   `json:"style,omitempty"`
	Seed         int64    `json:"seed,omitempty"`
}
