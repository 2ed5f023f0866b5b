// Package db provides SQLite persistence for the debate client: a key/value
// table standing in for browser local storage and a log of voice sessions.
package db

import "time"

// Voice session statuses.
const (
	VoiceStatusActive   = "active"
	VoiceStatusEnded    = "ended"
	VoiceStatusOrphaned = "orphaned" // backend delete failed
)

// VoiceSession records a backend-issued voice session seen by this client.
type VoiceSession struct {
	ID        string
	RoomName  string
	Identity  string
	StartedAt time.Time
	ExpiresAt time.Time
	EndedAt   *time.Time
	Status    string
	// PID is the process that started the session; 0 when unknown.
	PID int
}
