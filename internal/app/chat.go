package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/jwulff/debate/internal/api"
	"github.com/jwulff/debate/internal/logging"
	"github.com/jwulff/debate/internal/transcript"
	"github.com/jwulff/debate/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// Chat texts shown as AI messages or notices.
const (
	MsgWaitForServer = "Please wait for server connection..."
	MsgDebateError   = "Sorry, I encountered an error. Please try again."
	MsgNothingExport = "No conversation to export!"
)

const (
	searchPrefix = "/search"
	searchLimit  = 5
)

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEnter:
		return m.sendMessage()
	case KeyExport:
		return m.exportTranscript()
	case KeyPgUp:
		m.chatScroll += max(1, m.bodyHeight()/2)
		return m, nil
	case KeyPgDown:
		m.chatScroll = max(0, m.chatScroll-max(1, m.bodyHeight()/2))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// sendMessage submits the input as a debate claim, or runs it as a
// /search command.
func (m Model) sendMessage() (tea.Model, tea.Cmd) {
	if m.typing {
		return m, nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	if !m.connected {
		m.appendMessage(transcript.SenderAI, MsgWaitForServer, nil)
		return m, nil
	}

	m.input.SetValue("")
	m.appendMessage(transcript.SenderUser, text, nil)
	m.typing = true

	if query, ok := parseSearch(text); ok {
		return m, searchCmd(m.deps.Backend, query)
	}
	return m, debateCmd(m.deps.Backend, api.DebateRequest{Content: text, UserID: m.deps.UserID})
}

func parseSearch(text string) (string, bool) {
	rest, ok := strings.CutPrefix(text, searchPrefix)
	if !ok || (rest != "" && rest[0] != ' ') {
		return "", false
	}
	query := strings.TrimSpace(rest)
	return query, query != ""
}

func debateCmd(b Backend, req api.DebateRequest) tea.Cmd {
	return func() tea.Msg {
		resp, err := b.Debate(context.Background(), req)
		return DebateResponseMsg{Response: resp, Err: err}
	}
}

func searchCmd(b Backend, query string) tea.Cmd {
	return func() tea.Msg {
		resp, err := b.Search(context.Background(), query, searchLimit)
		return SearchResultMsg{Query: query, Response: resp, Err: err}
	}
}

func (m Model) handleDebateResponse(msg DebateResponseMsg) (tea.Model, tea.Cmd) {
	m.typing = false
	if msg.Err != nil {
		logger := logging.WithComponent("chat")
		logger.Error().Err(msg.Err).Msg("error sending message")
		m.appendMessage(transcript.SenderAI, MsgDebateError, nil)
		cmd := m.markOffline(msg.Err)
		return m, cmd
	}
	m.appendMessage(transcript.SenderAI, msg.Response.Response, transcript.MetadataFromResponse(msg.Response))
	return m, nil
}

func (m Model) handleSearchResult(msg SearchResultMsg) (tea.Model, tea.Cmd) {
	m.typing = false
	if msg.Err != nil {
		logger := logging.WithComponent("chat")
		logger.Error().Err(msg.Err).Str("query", msg.Query).Msg("knowledge search failed")
		m.appendMessage(transcript.SenderAI, MsgDebateError, nil)
		cmd := m.markOffline(msg.Err)
		return m, cmd
	}

	results := msg.Response.Results
	if len(results) == 0 {
		m.appendMessage(transcript.SenderAI, fmt.Sprintf("No passages found for %q.", msg.Query), nil)
		return m, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d passages for %q:", msg.Response.TotalFound, msg.Query)
	meta := &transcript.Metadata{}
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s", i+1, strings.TrimSpace(r.Content))
		if r.Source != "" {
			meta.Sources = append(meta.Sources, r.Source)
		}
	}
	m.appendMessage(transcript.SenderAI, b.String(), meta)
	return m, nil
}

func (m *Model) appendMessage(sender transcript.Sender, content string, meta *transcript.Metadata) {
	m.messages = append(m.messages, transcript.NewMessage(sender, content, meta))
	m.chatScroll = 0
}

// exportTranscript writes the conversation to the export directory.
func (m Model) exportTranscript() (tea.Model, tea.Cmd) {
	if len(m.messages) == 0 {
		cmd := m.setNotice(MsgNothingExport, false)
		return m, cmd
	}
	messages := append([]transcript.Message(nil), m.messages...)
	dir := m.deps.ExportDir
	return m, func() tea.Msg {
		now := time.Now()
		path, err := transcript.WriteFile(dir, transcript.FileName(now), transcript.Format(messages, now))
		return ExportDoneMsg{Path: path, Err: err}
	}
}

func (m Model) renderChat(st ui.Styles, height int) string {
	historyHeight := max(1, height-2)

	var lines []string
	if len(m.messages) == 0 {
		lines = append(lines,
			"",
			st.Dim.Render("  Welcome! State a philosophical position and the AI will argue the other side."),
			st.Dim.Render("  Use /search <query> to look something up in the knowledge base."),
		)
	}
	for _, msg := range m.messages {
		lines = append(lines, m.renderMessage(st, msg)...)
		lines = append(lines, "")
	}
	if m.typing {
		lines = append(lines, st.Spinner.Render("  AI Opponent is thinking..."))
	}

	// Apply scroll, counted from the bottom
	end := len(lines) - min(m.chatScroll, max(0, len(lines)-historyHeight))
	start := max(0, end-historyHeight)
	visible := lines[start:end]

	body := fitHeight(strings.Join(visible, "\n"), historyHeight)
	return body + "\n" + st.Divider.Render(strings.Repeat("─", m.width)) + "\n" + m.input.View()
}

func (m Model) renderMessage(st ui.Styles, msg transcript.Message) []string {
	prefs := m.settings()
	textWidth := max(10, m.width-4)

	var label string
	if msg.Sender == transcript.SenderUser {
		label = st.UserLabel.Render(transcript.Speaker(msg.Sender))
	} else {
		label = st.AILabel.Render(transcript.Speaker(msg.Sender))
	}
	head := "  " + label + " " + st.Timestamp.Render(msg.Timestamp.Format("15:04"))
	if msg.Metadata != nil && msg.Metadata.Confidence != nil {
		head += st.Dim.Render("  confidence " + transcript.ConfidencePercent(*msg.Metadata.Confidence))
	}
	lines := []string{head}

	var body []string
	if prefs.MarkdownEnabled && msg.Sender == transcript.SenderAI {
		body = m.md.render(msg, prefs.Theme, textWidth)
	} else {
		body = wrapText(msg.Content, textWidth)
	}
	for _, l := range body {
		lines = append(lines, "  "+l)
	}

	if msg.Metadata == nil {
		return lines
	}
	if len(msg.Metadata.Sources) > 0 {
		lines = append(lines, "  "+st.Source.Render("Sources: "+strings.Join(msg.Metadata.Sources, ", ")))
	}
	if prefs.ShowCitations {
		for _, doc := range msg.Metadata.RetrievedDocs {
			preview := strings.Join(strings.Fields(doc.ContentPreview), " ")
			lines = append(lines, truncateToWidth("    ↳ "+doc.Source+": "+preview, m.width-2))
		}
	}
	return lines
}

// markdownRenderer caches glamour renderers and rendered messages. It is
// only touched from the bubbletea event loop.
type markdownRenderer struct {
	theme    string
	width    int
	renderer *glamour.TermRenderer
	cache    map[string][]string
}

func newMarkdownRenderer() *markdownRenderer {
	return &markdownRenderer{cache: make(map[string][]string)}
}

func (r *markdownRenderer) render(msg transcript.Message, theme string, width int) []string {
	if r.renderer == nil || r.theme != theme || r.width != width {
		tr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(theme),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return wrapText(msg.Content, width)
		}
		r.renderer, r.theme, r.width = tr, theme, width
		clear(r.cache)
	}

	if lines, ok := r.cache[msg.ID]; ok {
		return lines
	}
	out, err := r.renderer.Render(msg.Content)
	if err != nil {
		return wrapText(msg.Content, width)
	}
	lines := strings.Split(strings.Trim(out, "\n"), "\n")
	r.cache[msg.ID] = lines
	return lines
}
