// Package api provides the client and wire types for the debate backend's
// REST API.
package api

import "time"

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service,omitempty"`
	RAGStatus   string `json:"rag_status,omitempty"`
	VoiceStatus string `json:"voice_status,omitempty"`
}

// Healthy reports whether the backend declared itself healthy.
func (h HealthResponse) Healthy() bool { return h.Status == "healthy" }

// DebateRequest is sent to POST /api/debate/test.
type DebateRequest struct {
	Content string `json:"content"`
	UserID  string `json:"user_id"`
}

// RetrievedDoc is a preview of a knowledge-base passage used for a response.
type RetrievedDoc struct {
	Source         string `json:"source"`
	ContentPreview string `json:"content_preview"`
}

// DebateResponse is the AI's counter-argument.
type DebateResponse struct {
	Response      string         `json:"response"`
	Confidence    *float64       `json:"confidence,omitempty"`
	Sources       []string       `json:"sources,omitempty"`
	RetrievedDocs []RetrievedDoc `json:"retrieved_docs,omitempty"`
}

// VoiceSessionRequest is sent to POST /api/voice/start-session.
type VoiceSessionRequest struct {
	UserIdentity    string `json:"user_identity"`
	ParticipantName string `json:"participant_name"`
	RoomName        string `json:"room_name,omitempty"`
}

// VoiceSession is a server-issued credential set for joining a voice room.
type VoiceSession struct {
	Token      string `json:"token"`
	RoomName   string `json:"room_name"`
	LiveKitURL string `json:"livekit_url"`
	SessionID  string `json:"session_id"`
	ExpiresAt  int64  `json:"expires_at"`
}

// Expiry returns ExpiresAt as a time.
func (v VoiceSession) Expiry() time.Time { return time.Unix(v.ExpiresAt, 0) }

// VoiceSessionStatus is returned by GET /api/voice/session/{id}.
type VoiceSessionStatus struct {
	SessionID        string `json:"session_id"`
	RoomName         string `json:"room_name"`
	Status           string `json:"status"`
	CreatedAt        int64  `json:"created_at"`
	ExpiresAt        int64  `json:"expires_at"`
	ParticipantCount int    `json:"participant_count,omitempty"`
}

// UploadResponse is the optional body of POST /api/documents/upload.
type UploadResponse struct {
	DocumentID string `json:"document_id,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Chunks     int    `json:"chunks,omitempty"`
}

// TopicsResponse is returned by GET /api/knowledge/topics.
type TopicsResponse struct {
	Topics         []string `json:"topics"`
	TotalDocuments int      `json:"total_documents,omitempty"`
	Message        string   `json:"message,omitempty"`
}

// SearchResult is one hit from GET /api/knowledge/search.
type SearchResult struct {
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResponse is returned by GET /api/knowledge/search.
type SearchResponse struct {
	Query      string         `json:"query"`
	Results    []SearchResult `json:"results"`
	TotalFound int            `json:"total_found"`
}
