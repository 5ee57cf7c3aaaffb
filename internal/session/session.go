package session

import "time"

// Snapshot is a point-in-time view of the conversation session.
type Snapshot struct {
	ID               string    `json:"session_id"`
	Language         string    `json:"language"`
	Status           Status    `json:"status"`
	PendingArtifact  string    `json:"pending_artifact,omitempty"`
	OutstandingInits int       `json:"outstanding_inits"`
	HistoryLen       int       `json:"history_len"`
	SpeechReady      bool      `json:"speech_ready"`
	StartedAt        time.Time `json:"started_at"`
	LastActivityAt   time.Time `json:"last_activity_at"`
}
