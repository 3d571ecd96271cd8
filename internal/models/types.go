package models

import (
	"encoding/json"
	"time"
)

// ClientMessage is the envelope for everything arriving over a
// session or posture WebSocket. Unused fields stay zero.
type ClientMessage struct {
	Action    string                     `json:"action"`
	Landmarks map[string]json.RawMessage `json:"landmarks,omitempty"`
	Detected  *bool                      `json:"detected,omitempty"`
	Command   string                     `json:"command,omitempty"`
	Enabled   *bool                      `json:"enabled,omitempty"`
	Manifest  *GenerateManifestRequest   `json:"manifest,omitempty"`

	// log_posture payload
	Status string   `json:"status,omitempty"`
	Score  *float64 `json:"score,omitempty"`
	Issues []string `json:"issues,omitempty"`
}

type ServerMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

// RoomMessage is the envelope on the /ws/room endpoint, desktop and
// remote sides alike.
type RoomMessage struct {
	Type    string          `json:"type"`
	State   json.RawMessage `json:"state,omitempty"`
	Command string          `json:"command,omitempty"`
	Value   *int            `json:"value,omitempty"`
	Track   string          `json:"track,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
	Code      string `json:"code,omitempty"`
}

type HealthStatus struct {
	Status        string        `json:"status"`
	Database      bool          `json:"database"`
	ActiveClients int           `json:"active_clients"`
	ActiveRooms   int           `json:"active_rooms"`
	Uptime        time.Duration `json:"uptime"`
	Version       string        `json:"version,omitempty"`
}
