// Package transcript holds the conversation records shown by the client and
// renders them as plain-text exports.
package transcript

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwulff/debate/internal/api"
)

// Sender identifies who wrote a message or spoke a segment.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Metadata is attached to AI responses.
type Metadata struct {
	Confidence    *float64
	Sources       []string
	RetrievedDocs []api.RetrievedDoc
}

// Message is one chat bubble.
type Message struct {
	ID        string
	Content   string
	Sender    Sender
	Timestamp time.Time
	Metadata  *Metadata
}

// NewMessage returns a message stamped with a fresh ID and the current time.
func NewMessage(sender Sender, content string, meta *Metadata) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    sender,
		Timestamp: time.Now(),
		Metadata:  meta,
	}
}

// MetadataFromResponse extracts display metadata from a debate response.
func MetadataFromResponse(resp api.DebateResponse) *Metadata {
	return &Metadata{
		Confidence:    resp.Confidence,
		Sources:       resp.Sources,
		RetrievedDocs: resp.RetrievedDocs,
	}
}

// Segment is one transcribed utterance from a voice session.
type Segment struct {
	ID         string
	Timestamp  time.Time
	Speaker    Sender
	Text       string
	Confidence *float64
}

// Header is the first line of a conversation export.
const Header = "AI Debate Partner - Conversation Transcript"

// Speaker returns the label used for sender in conversation exports.
func Speaker(s Sender) string {
	if s == SenderUser {
		return "You"
	}
	return "AI Opponent"
}

// ConfidencePercent renders c (0..1) as a whole percentage.
func ConfidencePercent(c float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(c*100)))
}

// Format renders messages as a conversation export stamped with exported.
func Format(messages []Message, exported time.Time) string {
	var b strings.Builder
	b.WriteString(Header + "\n")
	b.WriteString("Exported: " + exported.Format("1/2/2006, 3:04:05 PM") + "\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] %s: %s", m.Timestamp.Format("15:04"), Speaker(m.Sender), m.Content)
		if m.Metadata == nil {
			continue
		}
		if len(m.Metadata.Sources) > 0 {
			b.WriteString("\n  Sources: " + strings.Join(m.Metadata.Sources, ", "))
		}
		// Zero confidence is treated as absent.
		if c := m.Metadata.Confidence; c != nil && *c != 0 {
			b.WriteString("\n  Confidence: " + ConfidencePercent(*c))
		}
	}
	return b.String()
}

// FormatSegments renders transcription segments one per block.
func FormatSegments(segments []Segment) string {
	blocks := make([]string, 0, len(segments))
	for _, s := range segments {
		speaker := "AI"
		if s.Speaker == SenderUser {
			speaker = "User"
		}
		blocks = append(blocks, fmt.Sprintf("[%s] %s: %s", s.Timestamp.Format("03:04:05 PM"), speaker, s.Text))
	}
	return strings.Join(blocks, "\n\n")
}

// FileName returns the export file name for a conversation exported at t.
func FileName(t time.Time) string {
	return "debate-transcript-" + t.UTC().Format("2006-01-02") + ".txt"
}

// SegmentsFileName returns the export file name for transcription segments.
func SegmentsFileName(t time.Time) string {
	return fmt.Sprintf("transcription-%d.txt", t.UnixMilli())
}

// WriteFile writes content to dir/name, creating dir, and returns the path.
func WriteFile(dir, name, content string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}
