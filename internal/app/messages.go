package app

import (
	"time"

	"github.com/jwulff/debate/internal/api"
	"github.com/jwulff/debate/internal/voice"
)

// HealthResultMsg carries the result of a backend health check.
type HealthResultMsg struct {
	Health api.HealthResponse
	Err    error
}

// ReconnectTickMsg triggers another health check.
type ReconnectTickMsg struct{}

// DebateResponseMsg carries the backend's answer to a chat message.
type DebateResponseMsg struct {
	Response api.DebateResponse
	Err      error
}

// SearchResultMsg carries knowledge-base hits for a /search command.
type SearchResultMsg struct {
	Query    string
	Response api.SearchResponse
	Err      error
}

// ExportDoneMsg reports a finished transcript export.
type ExportDoneMsg struct {
	Path string
	Err  error
}

// ClearNoticeMsg clears the status notice if it is still the one with Seq.
type ClearNoticeMsg struct {
	Seq int
}

// VoiceStartedMsg reports the outcome of starting a voice session.
type VoiceStartedMsg struct {
	Session api.VoiceSession
	Err     error
}

// VoiceEndedMsg reports that the voice session was torn down.
type VoiceEndedMsg struct{}

// VoiceStateMsg is sent whenever the voice adapter's flags change.
type VoiceStateMsg struct {
	State voice.State
}

// VoiceTranscriptMsg carries a transcription result from the voice room.
type VoiceTranscriptMsg struct {
	Transcript voice.Transcript
}

// VoiceTickMsg advances the elapsed-time display. Gen identifies the session
// whose timer scheduled it.
type VoiceTickMsg struct {
	Gen  int
	Time time.Time
}

// SettingsErrorMsg reports a failure to persist settings.
type SettingsErrorMsg struct {
	Err error
}

// UploadResultMsg reports the outcome of a document upload.
type UploadResultMsg struct {
	LocalID  string
	Response api.UploadResponse
	Err      error
}

// DeleteResultMsg reports the outcome of a document delete.
type DeleteResultMsg struct {
	LocalID string
	Err     error
}

// TopicsLoadedMsg carries the knowledge-base topic list.
type TopicsLoadedMsg struct {
	Topics api.TopicsResponse
	Err    error
}
