package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwulff/debate/internal/logging"
	"github.com/jwulff/debate/internal/transcript"
	"github.com/jwulff/debate/internal/ui"
	"github.com/jwulff/debate/internal/voice"

	tea "github.com/charmbracelet/bubbletea"
)

// voiceStartTimeout bounds session creation plus room join.
const voiceStartTimeout = 30 * time.Second

// Voice texts appended to the chat.
const (
	MsgVoiceEnded      = "Voice session ended."
	MsgNoTranscription = "No transcription to export!"
)

func voiceStartedText(room string) string {
	return fmt.Sprintf("Voice session started! Room: %s. The AI philosopher is ready to debate.", room)
}

func voiceFailedText(err error) string {
	return fmt.Sprintf("Failed to start voice session: %v. Please check your microphone permissions and try again.", err)
}

// voiceTickCmd advances the elapsed timer of session gen once per second.
func voiceTickCmd(gen int) tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return VoiceTickMsg{Gen: gen, Time: t}
	})
}

// voiceState reads the adapter directly; the view keeps no copy.
func (m Model) voiceState() voice.State {
	if m.deps.Voice == nil {
		return voice.State{}
	}
	return m.deps.Voice.Adapter().State()
}

func (m Model) handleVoiceKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper:
		return m, tea.Quit
	case KeySpace, KeyEnter:
		return m.toggleVoice()
	case KeyExportSegments:
		return m.exportSegments()
	}
	return m, nil
}

// toggleVoice starts a session when none is active and ends it otherwise.
// The control is disabled while a start or end is in flight.
func (m Model) toggleVoice() (tea.Model, tea.Cmd) {
	mgr := m.deps.Voice
	if mgr == nil || m.voiceBusy {
		return m, nil
	}
	m.voiceBusy = true

	if mgr.Active() {
		return m, endVoiceCmd(mgr)
	}
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), voiceStartTimeout)
		defer cancel()
		vs, err := mgr.Start(ctx)
		return VoiceStartedMsg{Session: vs, Err: err}
	}
}

func endVoiceCmd(mgr *voice.Manager) tea.Cmd {
	return func() tea.Msg {
		mgr.End(context.Background())
		return VoiceEndedMsg{}
	}
}

func (m Model) handleVoiceMsg(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case VoiceStartedMsg:
		m.voiceBusy = false
		if msg.Err != nil {
			if errors.Is(msg.Err, voice.ErrSessionActive) {
				return m, nil
			}
			logger := logging.WithComponent("voice")
			logger.Error().Err(msg.Err).Msg("error starting voice session")
			m.appendMessage(transcript.SenderAI, voiceFailedText(msg.Err), nil)
			cmd := m.markOffline(msg.Err)
			return m, cmd
		}
		m.appendMessage(transcript.SenderAI, voiceStartedText(msg.Session.RoomName), nil)
		m.now = time.Now()
		m.voiceGen++
		return m, voiceTickCmd(m.voiceGen)

	case VoiceEndedMsg:
		m.voiceBusy = false
		m.voiceGen++
		m.appendMessage(transcript.SenderAI, MsgVoiceEnded, nil)
		return m, nil

	case VoiceStateMsg:
		// The room dropped underneath an active session: finish the teardown.
		mgr := m.deps.Voice
		if mgr != nil && !msg.State.Connected && !m.voiceBusy && mgr.Active() {
			m.voiceBusy = true
			return m, endVoiceCmd(mgr)
		}
		return m, nil

	case VoiceTranscriptMsg:
		t := msg.Transcript
		if !t.Final || strings.TrimSpace(t.Text) == "" {
			return m, nil
		}
		speaker := transcript.SenderAI
		if t.Speaker == string(transcript.SenderUser) {
			speaker = transcript.SenderUser
		}
		m.segments = append(m.segments, transcript.Segment{
			ID:         uuid.NewString(),
			Timestamp:  time.Now(),
			Speaker:    speaker,
			Text:       t.Text,
			Confidence: t.Confidence,
		})
		return m, nil

	case VoiceTickMsg:
		if msg.Gen != m.voiceGen {
			return m, nil
		}
		m.now = msg.Time
		if m.voiceState().MicActive {
			return m, voiceTickCmd(m.voiceGen)
		}
		return m, nil
	}
	return m, nil
}

func (m Model) exportSegments() (tea.Model, tea.Cmd) {
	if len(m.segments) == 0 {
		cmd := m.setNotice(MsgNoTranscription, false)
		return m, cmd
	}
	segments := append([]transcript.Segment(nil), m.segments...)
	dir := m.deps.ExportDir
	return m, func() tea.Msg {
		path, err := transcript.WriteFile(dir, transcript.SegmentsFileName(time.Now()), transcript.FormatSegments(segments))
		return ExportDoneMsg{Path: path, Err: err}
	}
}

func (m Model) renderVoice(st ui.Styles, height int) string {
	var lines []string
	lines = append(lines, st.PanelTitle.Render("VOICE DEBATE"), "")

	if m.deps.Voice == nil {
		lines = append(lines, st.Dim.Render("  Voice is disabled."))
		return strings.Join(lines, "\n")
	}

	state := m.voiceState()
	session, started, active := m.deps.Voice.Session()

	var indicator string
	switch {
	case m.voiceBusy && !active:
		indicator = st.Spinner.Render("◌ Connecting...")
	case m.voiceBusy:
		indicator = st.Spinner.Render("◌ Ending session...")
	case state.MicActive:
		elapsed := max(0, m.now.Sub(started))
		indicator = st.RecordingDot.Render("● LIVE") + "  " + st.Timestamp.Render(formatElapsed(elapsed))
	case state.Connected:
		indicator = st.Warning.Render("○ Connected, microphone off")
	default:
		indicator = st.IdleDot.Render("○ Press Space to start a voice debate")
	}
	lines = append(lines, "  "+indicator)

	if active {
		lines = append(lines,
			st.Dim.Render("  Room:    ")+session.RoomName,
			st.Dim.Render("  Session: ")+session.SessionID,
		)
		if session.ExpiresAt > 0 {
			lines = append(lines, st.Dim.Render("  Expires: ")+session.Expiry().Format("15:04:05"))
		}
	}
	lines = append(lines, st.Dim.Render("  Voice:   ")+m.settings().Voice)
	if state.Err != nil {
		lines = append(lines, "  "+st.ErrorText.Render(state.Err.Error()))
	}

	if !m.settings().ShowTranscription {
		return strings.Join(lines, "\n")
	}

	lines = append(lines, "", st.PanelTitleActive.Render(fmt.Sprintf("TRANSCRIPTION (%d)", len(m.segments))))
	if len(m.segments) == 0 {
		lines = append(lines, st.Dim.Render("  No transcription yet. Start speaking to see live transcription."))
		return strings.Join(lines, "\n")
	}

	var segLines []string
	textWidth := max(10, m.width-20)
	for _, s := range m.segments {
		label := st.AILabel.Render("AI")
		if s.Speaker == transcript.SenderUser {
			label = st.UserLabel.Render("You")
		}
		head := "  " + st.Timestamp.Render(s.Timestamp.Format("15:04:05")) + " " + label
		if s.Confidence != nil {
			head += st.Dim.Render(" (" + transcript.ConfidencePercent(*s.Confidence) + ")")
		}
		wrapped := wrapText(s.Text, textWidth)
		segLines = append(segLines, head+": "+wrapped[0])
		for _, wl := range wrapped[1:] {
			segLines = append(segLines, "      "+wl)
		}
	}

	// Keep the newest segments in view.
	room := max(1, height-len(lines))
	if len(segLines) > room {
		segLines = segLines[len(segLines)-room:]
	}
	lines = append(lines, segLines...)
	return strings.Join(lines, "\n")
}

func formatElapsed(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
