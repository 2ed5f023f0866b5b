package app

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/google/uuid"
	"github.com/jwulff/debate/internal/logging"
	"github.com/jwulff/debate/internal/settings"
	"github.com/jwulff/debate/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

type settingsSection int

const (
	sectionGeneral settingsSection = iota
	sectionAI
	sectionVoice
	sectionKnowledge
)

var sectionNames = []string{"General", "AI", "Voice", "Knowledge"}

// Model choices offered per provider.
var (
	openAIModels   = []string{"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo"}
	cerebrasModels = []string{"llama3.1-8b", "llama3.1-70b"}
)

// control is one adjustable setting. patch returns the single-field update
// for a step in direction dir (-1 or +1).
type control struct {
	label string
	value func(settings.AppSettings) string
	patch func(s settings.AppSettings, dir int) settings.Patch
}

func toggle(label string, get func(settings.AppSettings) bool, set func(bool) settings.Patch) control {
	return control{
		label: label,
		value: func(s settings.AppSettings) string { return onOff(get(s)) },
		patch: func(s settings.AppSettings, _ int) settings.Patch { return set(!get(s)) },
	}
}

func choice(label string, options []string, get func(settings.AppSettings) string, set func(string) settings.Patch) control {
	return control{
		label: label,
		value: get,
		patch: func(s settings.AppSettings, dir int) settings.Patch { return set(cycle(options, get(s), dir)) },
	}
}

func controlsFor(section settingsSection, s settings.AppSettings) []control {
	switch section {
	case sectionGeneral:
		return []control{
			choice("Theme", settings.Themes,
				func(s settings.AppSettings) string { return s.Theme },
				func(v string) settings.Patch { return settings.Patch{Theme: &v} }),
			toggle("Auto-save settings",
				func(s settings.AppSettings) bool { return s.AutoSave },
				func(v bool) settings.Patch { return settings.Patch{AutoSave: &v} }),
			toggle("Markdown rendering",
				func(s settings.AppSettings) bool { return s.MarkdownEnabled },
				func(v bool) settings.Patch { return settings.Patch{MarkdownEnabled: &v} }),
			toggle("Show citations",
				func(s settings.AppSettings) bool { return s.ShowCitations },
				func(v bool) settings.Patch { return settings.Patch{ShowCitations: &v} }),
			toggle("Show live transcription",
				func(s settings.AppSettings) bool { return s.ShowTranscription },
				func(v bool) settings.Patch { return settings.Patch{ShowTranscription: &v} }),
		}
	case sectionAI:
		controls := []control{
			choice("Provider", settings.Providers,
				func(s settings.AppSettings) string { return s.AIProvider },
				func(v string) settings.Patch { return settings.Patch{AIProvider: &v} }),
		}
		if s.AIProvider == settings.ProviderCerebras {
			controls = append(controls, choice("Cerebras model", cerebrasModels,
				func(s settings.AppSettings) string { return s.CerebrasModel },
				func(v string) settings.Patch { return settings.Patch{CerebrasModel: &v} }))
		} else {
			controls = append(controls, choice("OpenAI model", openAIModels,
				func(s settings.AppSettings) string { return s.OpenAIModel },
				func(v string) settings.Patch { return settings.Patch{OpenAIModel: &v} }))
		}
		return append(controls,
			control{
				label: "Temperature",
				value: func(s settings.AppSettings) string { return fmt.Sprintf("%.1f", s.Temperature) },
				patch: func(s settings.AppSettings, dir int) settings.Patch {
					v := math.Round((s.Temperature+0.1*float64(dir))*10) / 10
					return settings.Patch{Temperature: &v}
				},
			},
			control{
				label: "Max tokens",
				value: func(s settings.AppSettings) string { return fmt.Sprintf("%d", s.MaxTokens) },
				patch: func(s settings.AppSettings, dir int) settings.Patch {
					v := s.MaxTokens + 50*dir
					return settings.Patch{MaxTokens: &v}
				},
			},
			toggle("Redis caching",
				func(s settings.AppSettings) bool { return s.RedisEnabled },
				func(v bool) settings.Patch { return settings.Patch{RedisEnabled: &v} }),
		)
	case sectionVoice:
		return []control{
			choice("Voice", settings.Voices,
				func(s settings.AppSettings) string { return s.Voice },
				func(v string) settings.Patch { return settings.Patch{Voice: &v} }),
		}
	}
	return nil
}

// cycle returns the option dir steps away from current, wrapping.
func cycle(options []string, current string, dir int) string {
	if len(options) == 0 {
		return current
	}
	i := slices.Index(options, current)
	if i < 0 {
		return options[0]
	}
	n := len(options)
	return options[((i+dir)%n+n)%n]
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// Document upload states.
const (
	docProcessing = "processing"
	docReady      = "ready"
	docError      = "error"
)

// documentEntry is a document uploaded during this session.
type documentEntry struct {
	LocalID    string
	BackendID  string
	Name       string
	Size       int64
	UploadedAt time.Time
	Status     string
}

// remoteID is the id used to delete the document on the backend.
func (d documentEntry) remoteID() string {
	if d.BackendID != "" {
		return d.BackendID
	}
	return d.LocalID
}

func (m Model) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editingPath {
		return m.handlePathKey(msg)
	}

	switch msg.String() {
	case KeyQuit, KeyQuitUpper:
		return m, tea.Quit

	case KeyPrevSection, KeyNextSection:
		dir := 1
		if msg.String() == KeyPrevSection {
			dir = -1
		}
		n := len(sectionNames)
		m.section = settingsSection(((int(m.section)+dir)%n + n) % n)
		m.cursor = 0
		if m.section == sectionKnowledge {
			cmd := m.loadTopics()
			return m, cmd
		}
		return m, nil

	case KeyUp, KeyK:
		if m.section == sectionKnowledge {
			m.docCursor = max(0, m.docCursor-1)
		} else {
			m.cursor = max(0, m.cursor-1)
		}
		return m, nil

	case KeyDown, KeyJ:
		if m.section == sectionKnowledge {
			m.docCursor = min(max(0, len(m.docs)-1), m.docCursor+1)
		} else {
			m.cursor = min(len(controlsFor(m.section, m.settings()))-1, m.cursor+1)
		}
		return m, nil

	case KeyLeft, KeyH:
		return m.adjust(-1)

	case KeyRight, KeyL, KeyEnter, KeySpace:
		return m.adjust(1)

	case KeySave:
		if m.deps.Settings == nil {
			return m, nil
		}
		return m, m.persist(m.deps.Settings.Save)

	case KeyReset:
		if m.deps.Settings == nil {
			return m, nil
		}
		m.cursor = 0
		return m, m.persist(m.deps.Settings.Reset)

	case KeyUpload:
		if m.section != sectionKnowledge {
			return m, nil
		}
		m.editingPath = true
		m.pathInput.SetValue("")
		m.pathInput.Focus()
		return m, textinput.Blink

	case KeyDelete:
		if m.section != sectionKnowledge || len(m.docs) == 0 {
			return m, nil
		}
		doc := m.docs[m.docCursor]
		return m, deleteDocCmd(m.deps.Backend, doc.LocalID, doc.remoteID())

	case KeyTopics:
		if m.section != sectionKnowledge {
			return m, nil
		}
		m.topics = nil
		cmd := m.loadTopics()
		return m, cmd
	}
	return m, nil
}

// adjust applies one step to the control under the cursor.
func (m Model) adjust(dir int) (tea.Model, tea.Cmd) {
	if m.section == sectionKnowledge || m.deps.Settings == nil {
		return m, nil
	}
	current := m.settings()
	controls := controlsFor(m.section, current)
	if m.cursor >= len(controls) {
		return m, nil
	}
	patch := controls[m.cursor].patch(current, dir)
	cmd := m.persist(func() error { return m.deps.Settings.Update(patch) })

	// The AI section's controls depend on the provider.
	m.cursor = min(m.cursor, len(controlsFor(m.section, m.settings()))-1)
	return m, cmd
}

// persist runs a settings mutation and turns a storage failure into a
// notice. The in-memory change sticks either way.
func (m Model) persist(fn func() error) tea.Cmd {
	if err := fn(); err != nil {
		logger := logging.WithComponent("settings")
		logger.Error().Err(err).Msg("failed to save settings")
		return func() tea.Msg { return SettingsErrorMsg{Err: err} }
	}
	return nil
}

func (m Model) handlePathKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEsc:
		m.editingPath = false
		m.pathInput.Blur()
		return m, nil

	case KeyEnter:
		path := strings.TrimSpace(m.pathInput.Value())
		m.editingPath = false
		m.pathInput.Blur()
		if path == "" {
			return m, nil
		}
		doc := documentEntry{
			LocalID:    uuid.NewString(),
			Name:       filepath.Base(path),
			UploadedAt: time.Now(),
			Status:     docProcessing,
		}
		if info, err := os.Stat(path); err == nil {
			doc.Size = info.Size()
		}
		m.docs = append(m.docs, doc)
		m.docCursor = len(m.docs) - 1
		return m, uploadCmd(m.deps.Backend, doc.LocalID, path)
	}

	var cmd tea.Cmd
	m.pathInput, cmd = m.pathInput.Update(msg)
	return m, cmd
}

func (m *Model) loadTopics() tea.Cmd {
	if m.topics != nil || m.topicsLoading {
		return nil
	}
	m.topicsLoading = true
	b := m.deps.Backend
	return func() tea.Msg {
		resp, err := b.Topics(context.Background())
		return TopicsLoadedMsg{Topics: resp, Err: err}
	}
}

func uploadCmd(b Backend, localID, path string) tea.Cmd {
	return func() tea.Msg {
		resp, err := b.UploadFile(context.Background(), path)
		return UploadResultMsg{LocalID: localID, Response: resp, Err: err}
	}
}

func deleteDocCmd(b Backend, localID, remoteID string) tea.Cmd {
	return func() tea.Msg {
		err := b.DeleteDocument(context.Background(), remoteID)
		return DeleteResultMsg{LocalID: localID, Err: err}
	}
}

func (m Model) handleKnowledgeMsg(msg tea.Msg) (tea.Model, tea.Cmd) {
	logger := logging.WithComponent("knowledge")

	switch msg := msg.(type) {
	case UploadResultMsg:
		i := m.docIndex(msg.LocalID)
		if i < 0 {
			return m, nil
		}
		if msg.Err != nil {
			logger.Error().Err(msg.Err).Str("document", m.docs[i].Name).Msg("upload error")
			m.docs[i].Status = docError
			return m, nil
		}
		m.docs[i].Status = docReady
		m.docs[i].BackendID = msg.Response.DocumentID
		logger.Info().Str("document", m.docs[i].Name).Int("chunks", msg.Response.Chunks).Msg("document uploaded")
		// New documents can add topics.
		m.topics = nil
		cmd := m.loadTopics()
		return m, cmd

	case DeleteResultMsg:
		if msg.Err != nil {
			logger.Error().Err(msg.Err).Msg("delete error")
			cmd := m.setNotice("Delete failed: "+msg.Err.Error(), true)
			return m, cmd
		}
		if i := m.docIndex(msg.LocalID); i >= 0 {
			m.docs = slices.Delete(m.docs, i, i+1)
		}
		m.docCursor = min(m.docCursor, max(0, len(m.docs)-1))
		return m, nil

	case TopicsLoadedMsg:
		m.topicsLoading = false
		if msg.Err != nil {
			logger.Warn().Err(msg.Err).Msg("load topics")
			m.topicsErr = msg.Err.Error()
			return m, nil
		}
		m.topicsErr = ""
		m.topics = msg.Topics.Topics
		if m.topics == nil {
			m.topics = []string{}
		}
		m.topicsTotal = msg.Topics.TotalDocuments
		return m, nil
	}
	return m, nil
}

func (m Model) docIndex(localID string) int {
	return slices.IndexFunc(m.docs, func(d documentEntry) bool { return d.LocalID == localID })
}

func (m Model) renderSettings(st ui.Styles, height int) string {
	var lines []string

	var tabs []string
	for i, name := range sectionNames {
		if settingsSection(i) == m.section {
			tabs = append(tabs, st.TabActive.Render(name))
		} else {
			tabs = append(tabs, st.Tab.Render(name))
		}
	}
	header := st.PanelTitle.Render("SETTINGS") + "  " + strings.Join(tabs, "")
	if m.deps.Settings != nil && m.deps.Settings.Dirty() {
		header += "  " + st.Warning.Render("unsaved changes")
	}
	lines = append(lines, header, "")

	if m.section == sectionKnowledge {
		lines = append(lines, m.renderKnowledge(st)...)
		return strings.Join(lines, "\n")
	}

	current := m.settings()
	labelWidth := 26
	for i, c := range controlsFor(m.section, current) {
		label := padRight(c.label, labelWidth)
		value := c.value(current)
		if i == m.cursor {
			lines = append(lines, st.Selected.Render("> "+label+"‹ "+value+" ›"))
		} else {
			lines = append(lines, "  "+label+st.Dim.Render("  "+value))
		}
	}

	if m.section == sectionAI {
		lines = append(lines, "", st.Dim.Render("  Active model: "+current.Model()))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderKnowledge(st ui.Styles) []string {
	var lines []string

	lines = append(lines, st.PanelTitleActive.Render(fmt.Sprintf("DOCUMENTS (%d)", len(m.docs))))
	if m.editingPath {
		lines = append(lines, "  "+m.pathInput.View())
	}
	if len(m.docs) == 0 && !m.editingPath {
		lines = append(lines, st.Dim.Render("  No documents uploaded. Press u to upload PDF, TXT or Markdown."))
	}
	for i, d := range m.docs {
		status := st.Dim.Render(d.Status)
		switch d.Status {
		case docReady:
			status = st.Online.Render(d.Status)
		case docError:
			status = st.ErrorText.Render(d.Status)
		}
		line := fmt.Sprintf("%s  %s  %s  ", d.Name, formatFileSize(d.Size), d.UploadedAt.Format("15:04"))
		if i == m.docCursor {
			lines = append(lines, st.Selected.Render("> "+line)+status)
		} else {
			lines = append(lines, "  "+line+status)
		}
	}

	lines = append(lines, "", st.PanelTitleActive.Render("TOPICS"))
	switch {
	case m.topicsLoading:
		lines = append(lines, st.Dim.Render("  Loading..."))
	case m.topicsErr != "":
		lines = append(lines, st.ErrorText.Render("  "+m.topicsErr))
	case len(m.topics) == 0:
		lines = append(lines, st.Dim.Render("  No topics available"))
	default:
		for _, t := range m.topics {
			lines = append(lines, "  • "+t)
		}
		if m.topicsTotal > 0 {
			lines = append(lines, st.Dim.Render(fmt.Sprintf("  %d documents in knowledge base", m.topicsTotal)))
		}
	}
	return lines
}

func formatFileSize(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
}
