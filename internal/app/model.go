package app

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/jwulff/debate/internal/api"
	"github.com/jwulff/debate/internal/logging"
	"github.com/jwulff/debate/internal/settings"
	"github.com/jwulff/debate/internal/transcript"
	"github.com/jwulff/debate/internal/ui"
	"github.com/jwulff/debate/internal/voice"

	tea "github.com/charmbracelet/bubbletea"
)

// View identifies the active screen.
type View int

const (
	ViewChat View = iota
	ViewSettings
	ViewVoice
)

var viewNames = []string{"Chat", "Settings", "Voice"}

// Connection status strings shown in the header.
const (
	StatusConnecting = "Connecting to server..."
	StatusConnected  = "Connected to server"
	StatusUnhealthy  = "Server unhealthy"
	StatusOffline    = "Server offline"
)

// Backend is the part of the REST client the views drive.
type Backend interface {
	Health(ctx context.Context) (api.HealthResponse, error)
	Debate(ctx context.Context, req api.DebateRequest) (api.DebateResponse, error)
	Search(ctx context.Context, query string, limit int) (api.SearchResponse, error)
	Topics(ctx context.Context) (api.TopicsResponse, error)
	UploadFile(ctx context.Context, path string) (api.UploadResponse, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Deps are the services the model uses. Voice may be nil, which disables the
// voice controls.
type Deps struct {
	Backend   Backend
	Settings  *settings.Store
	Voice     *voice.Manager
	UserID    string
	ExportDir string
}

// Model is the root bubbletea model for the debate client.
type Model struct {
	deps Deps
	view View

	width  int
	height int

	// Backend connection
	connected        bool
	statusText       string
	reconnectAttempt int

	// Chat
	messages   []transcript.Message
	input      textinput.Model
	typing     bool
	chatScroll int // lines scrolled up from the newest message
	md         *markdownRenderer

	// Status notice shown above the footer
	notice      string
	noticeIsErr bool
	noticeSeq   int

	// Settings panel
	section       settingsSection
	cursor        int
	docs          []documentEntry
	docCursor     int
	pathInput     textinput.Model
	editingPath   bool
	topics        []string
	topicsTotal   int
	topicsLoading bool
	topicsErr     string

	// Voice
	voiceBusy bool
	voiceGen  int // bumped per session so old timers stop
	segments  []transcript.Segment
	now       time.Time
}

// New creates a model wired to deps.
func New(deps Deps) Model {
	input := textinput.New()
	input.Placeholder = "Make your argument..."
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Focus()

	path := textinput.New()
	path.Placeholder = "/path/to/document.pdf"
	path.Prompt = "Path: "

	return Model{
		deps:       deps,
		statusText: StatusConnecting,
		input:      input,
		pathInput:  path,
		md:         newMarkdownRenderer(),
		now:        time.Now(),
	}
}

// Init checks backend health and starts the cursor blinking.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, healthCmd(m.deps.Backend))
}

// healthCmd checks GET /health.
func healthCmd(b Backend) tea.Cmd {
	return func() tea.Msg {
		h, err := b.Health(context.Background())
		return HealthResultMsg{Health: h, Err: err}
	}
}

// reconnectCmd schedules another health check with exponential backoff.
func reconnectCmd(attempt int) tea.Cmd {
	delay := time.Duration(1<<min(attempt, 4)) * time.Second // 1s, 2s, 4s, 8s, 16s cap
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return ReconnectTickMsg{}
	})
}

// clearNoticeCmd fires after a delay to clear the notice with seq.
func clearNoticeCmd(seq int) tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearNoticeMsg{Seq: seq}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-4)
		m.pathInput.Width = max(10, msg.Width-12)
		return m, nil

	case HealthResultMsg:
		return m.handleHealth(msg)

	case ReconnectTickMsg:
		m.reconnectAttempt++
		return m, healthCmd(m.deps.Backend)

	case DebateResponseMsg:
		return m.handleDebateResponse(msg)

	case SearchResultMsg:
		return m.handleSearchResult(msg)

	case ExportDoneMsg:
		if msg.Err != nil {
			logger := logging.WithComponent("app")
			logger.Error().Err(msg.Err).Msg("export failed")
			cmd := m.setNotice("Export failed: "+msg.Err.Error(), true)
			return m, cmd
		}
		cmd := m.setNotice("Exported to "+msg.Path, false)
		return m, cmd

	case ClearNoticeMsg:
		if msg.Seq == m.noticeSeq {
			m.notice = ""
			m.noticeIsErr = false
		}
		return m, nil

	case SettingsErrorMsg:
		cmd := m.setNotice("Failed to save settings: "+msg.Err.Error(), true)
		return m, cmd

	case VoiceStartedMsg, VoiceEndedMsg, VoiceStateMsg, VoiceTranscriptMsg, VoiceTickMsg:
		return m.handleVoiceMsg(msg)

	case UploadResultMsg, DeleteResultMsg, TopicsLoadedMsg:
		return m.handleKnowledgeMsg(msg)
	}

	// Everything else (cursor blink) goes to the focused input.
	var cmd tea.Cmd
	switch {
	case m.view == ViewChat:
		m.input, cmd = m.input.Update(msg)
	case m.editingPath:
		m.pathInput, cmd = m.pathInput.Update(msg)
	}
	return m, cmd
}

func (m Model) handleHealth(msg HealthResultMsg) (tea.Model, tea.Cmd) {
	logger := logging.WithComponent("app")
	switch {
	case msg.Err != nil:
		logger.Warn().Err(msg.Err).Int("attempt", m.reconnectAttempt).Msg("connection check failed")
		m.connected = false
		m.statusText = StatusOffline
	case !msg.Health.Healthy():
		logger.Warn().Str("status", msg.Health.Status).Msg("server unhealthy")
		m.connected = false
		m.statusText = StatusUnhealthy
	default:
		if !m.connected {
			logger.Info().Str("ragStatus", msg.Health.RAGStatus).Str("voiceStatus", msg.Health.VoiceStatus).Msg("connected to server")
		}
		m.connected = true
		m.statusText = StatusConnected
		m.reconnectAttempt = 0
		return m, nil
	}
	return m, reconnectCmd(m.reconnectAttempt)
}

// markOffline flips the status bar to offline when err means the backend
// could not be reached, and starts the reconnect health check if none is running.
func (m *Model) markOffline(err error) tea.Cmd {
	if !api.IsTransport(err) || !m.connected {
		return nil
	}
	logger := logging.WithComponent("app")
	logger.Warn().Err(err).Msg("backend unreachable")
	m.connected = false
	m.statusText = StatusOffline
	return reconnectCmd(m.reconnectAttempt)
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyCtrlC:
		return m, tea.Quit

	case KeyTab, KeyShiftTab:
		if m.editingPath {
			break
		}
		step := 1
		if msg.String() == KeyShiftTab {
			step = len(viewNames) - 1
		}
		return m.switchView(View((int(m.view) + step) % len(viewNames)))

	case KeyToggleVoice:
		return m.toggleVoice()
	}

	switch m.view {
	case ViewSettings:
		return m.handleSettingsKey(msg)
	case ViewVoice:
		return m.handleVoiceKey(msg)
	default:
		return m.handleChatKey(msg)
	}
}

func (m Model) switchView(v View) (tea.Model, tea.Cmd) {
	m.view = v
	if v == ViewChat {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
	var cmds []tea.Cmd
	if v == ViewChat {
		cmds = append(cmds, textinput.Blink)
	}
	if v == ViewSettings && m.section == sectionKnowledge {
		cmds = append(cmds, m.loadTopics())
	}
	return m, tea.Batch(cmds...)
}

// setNotice shows text in the status line until it is replaced or expires.
func (m *Model) setNotice(text string, isErr bool) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	m.noticeIsErr = isErr
	return clearNoticeCmd(m.noticeSeq)
}

func (m Model) settings() settings.AppSettings {
	if m.deps.Settings == nil {
		return settings.Defaults()
	}
	return m.deps.Settings.Settings()
}

func (m Model) styles() ui.Styles {
	return ui.ForTheme(m.settings().Theme)
}

func (m Model) bodyHeight() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + divider(1) + divider(1) + notice(1) + footer(1)
	reserved := 5
	return max(5, m.height-reserved)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}
	st := m.styles()

	var sections []string

	// Header
	sections = append(sections, m.renderHeader(st))

	// Divider
	sections = append(sections, st.Divider.Render(strings.Repeat("─", m.width)))

	// Active view
	var body string
	switch m.view {
	case ViewSettings:
		body = m.renderSettings(st, m.bodyHeight())
	case ViewVoice:
		body = m.renderVoice(st, m.bodyHeight())
	default:
		body = m.renderChat(st, m.bodyHeight())
	}
	sections = append(sections, fitHeight(body, m.bodyHeight()))

	// Divider
	sections = append(sections, st.Divider.Render(strings.Repeat("─", m.width)))

	// Notice
	sections = append(sections, m.renderNotice(st))

	// Footer
	sections = append(sections, m.renderFooter(st))

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader(st ui.Styles) string {
	title := st.Title.Render("AI DEBATE PARTNER")

	var tabs []string
	for i, name := range viewNames {
		if View(i) == m.view {
			tabs = append(tabs, st.TabActive.Render(name))
		} else {
			tabs = append(tabs, st.Tab.Render(name))
		}
	}

	var status string
	switch m.statusText {
	case StatusConnected:
		status = st.Online.Render("● " + m.statusText)
	case StatusConnecting:
		status = st.Dim.Render("○ " + m.statusText)
	default:
		status = st.Offline.Render("○ " + m.statusText)
	}

	left := title + "  " + strings.Join(tabs, "")
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(status)
	if gap < 1 {
		return left + " " + status
	}
	return left + strings.Repeat(" ", gap) + status
}

func (m Model) renderNotice(st ui.Styles) string {
	if m.notice == "" {
		return ""
	}
	if m.noticeIsErr {
		return st.ErrorLabel.Render("Error: ") + st.ErrorText.Render(m.notice)
	}
	return st.Warning.Render(m.notice)
}

func (m Model) renderFooter(st ui.Styles) string {
	key := func(k, desc string) string {
		return st.FooterKey.Render(k) + st.FooterDesc.Render(" "+desc)
	}

	var parts []string
	switch m.view {
	case ViewChat:
		parts = append(parts, key("Enter", "Send"), key("Ctrl+E", "Export"), key("PgUp/PgDn", "Scroll"))
	case ViewSettings:
		if m.editingPath {
			parts = append(parts, key("Enter", "Upload"), key("Esc", "Cancel"))
		} else {
			parts = append(parts, key("[ ]", "Section"), key("j/k", "Nav"), key("h/l", "Change"), key("s", "Save"), key("R", "Reset"))
			if m.section == sectionKnowledge {
				parts = append(parts, key("u", "Upload"), key("d", "Delete"), key("t", "Topics"))
			}
		}
	case ViewVoice:
		parts = append(parts, key("Space", "Start/Stop"), key("x", "Export"))
	}
	if m.deps.Voice != nil && m.view != ViewVoice {
		parts = append(parts, key("Ctrl+V", "Voice"))
	}
	parts = append(parts, key("Tab", "View"))
	if m.view == ViewChat {
		parts = append(parts, key("Ctrl+C", "Quit"))
	} else {
		parts = append(parts, key("q", "Quit"))
	}

	return strings.Join(parts, "  ")
}

// Helpers

// fitHeight pads or cuts s to exactly height lines.
func fitHeight(s string, height int) string {
	lines := strings.Split(s, "\n")
	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func padRight(s string, width int) string {
	// Get visible length (ignoring ANSI codes)
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible <= width || width < 1 {
		return s
	}
	// Simple truncation for non-styled strings
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
