package app

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jwulff/debate/internal/api"
	"github.com/jwulff/debate/internal/transcript"

	tea "github.com/charmbracelet/bubbletea"
)

func typeText(m Model, text string) Model {
	m.input.SetValue(text)
	return m
}

func pressEnter(m Model) (Model, tea.Cmd) {
	return applyUpdate(m, tea.KeyMsg{Type: tea.KeyEnter})
}

func TestSendWhitespaceIsIgnored(t *testing.T) {
	b := &fakeBackend{}
	m := typeText(newTestModel(t, b), "   \t ")

	m, cmd := pressEnter(m)
	if len(m.messages) != 0 {
		t.Errorf("messages = %d, want 0", len(m.messages))
	}
	if cmd != nil {
		t.Error("no request should be issued")
	}
	if m.typing {
		t.Error("typing should stay false")
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	b := &fakeBackend{}
	m := typeText(newTestModel(t, b), "Is free will real?")
	m.connected = false

	m, cmd := pressEnter(m)
	if cmd != nil {
		t.Error("no request should be issued while disconnected")
	}
	if len(m.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(m.messages))
	}
	if m.messages[0].Sender != transcript.SenderAI || m.messages[0].Content != MsgWaitForServer {
		t.Errorf("message = %+v", m.messages[0])
	}
	if m.input.Value() != "Is free will real?" {
		t.Errorf("input cleared to %q", m.input.Value())
	}
}

func TestSendMessageSuccess(t *testing.T) {
	conf := 0.85
	b := &fakeBackend{debate: api.DebateResponse{
		Response:      "Consider compatibilism.",
		Confidence:    &conf,
		Sources:       []string{"hume.txt"},
		RetrievedDocs: []api.RetrievedDoc{{Source: "hume.txt", ContentPreview: "Liberty is..."}},
	}}
	m := typeText(newTestModel(t, b), "  Free will is an illusion  ")

	m, cmd := pressEnter(m)
	if !m.typing {
		t.Error("typing should be set while waiting")
	}
	if m.input.Value() != "" {
		t.Errorf("input = %q, want cleared", m.input.Value())
	}
	if len(m.messages) != 1 || m.messages[0].Content != "Free will is an illusion" {
		t.Fatalf("messages = %+v", m.messages)
	}
	if cmd == nil {
		t.Fatal("expected request")
	}

	m, _ = applyUpdate(m, cmd())
	if m.typing {
		t.Error("typing should be cleared")
	}
	if len(b.debateReqs) != 1 || b.debateReqs[0].UserID != "default" {
		t.Errorf("requests = %+v", b.debateReqs)
	}
	if len(m.messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(m.messages))
	}
	ai := m.messages[1]
	if ai.Sender != transcript.SenderAI || ai.Content != "Consider compatibilism." {
		t.Errorf("ai message = %+v", ai)
	}
	if ai.Metadata == nil || *ai.Metadata.Confidence != 0.85 || ai.Metadata.Sources[0] != "hume.txt" {
		t.Errorf("metadata = %+v", ai.Metadata)
	}

	view := m.View()
	if !strings.Contains(view, "85%") {
		t.Error("view should show confidence")
	}
	if !strings.Contains(view, "hume.txt") {
		t.Error("view should show sources")
	}
}

func TestSendMessageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := typeText(newTestModel(t, api.New(srv.URL, api.WithTimeout(5*time.Second))), "claim")
	m, cmd := pressEnter(m)
	m, _ = applyUpdate(m, cmd())

	if len(m.messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(m.messages))
	}
	if m.messages[0].Sender != transcript.SenderUser || m.messages[0].Content != "claim" {
		t.Errorf("first message = %+v", m.messages[0])
	}
	if m.messages[1].Sender != transcript.SenderAI || m.messages[1].Content != MsgDebateError {
		t.Errorf("second message = %+v", m.messages[1])
	}
	if m.typing {
		t.Error("typing should be cleared after error")
	}
	if !m.connected || m.statusText == StatusOffline {
		t.Error("a server-side failure should not mark the server offline")
	}
}

func TestSendMessageServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m := typeText(newTestModel(t, api.New(url, api.WithTimeout(5*time.Second))), "claim")
	m, cmd := pressEnter(m)
	m, retry := applyUpdate(m, cmd())

	if m.messages[len(m.messages)-1].Content != MsgDebateError {
		t.Errorf("message = %q", m.messages[len(m.messages)-1].Content)
	}
	if m.connected || m.statusText != StatusOffline {
		t.Errorf("connected = %v, status = %q, want offline", m.connected, m.statusText)
	}
	if retry == nil {
		t.Error("expected a reconnect health check")
	}

	// A second failure while offline does not start another reconnect loop.
	m = typeText(m, "again")
	m.connected = false
	m, again := applyUpdate(m, DebateResponseMsg{Err: &api.TransportError{Op: "POST", URL: url, Err: errors.New("refused")}})
	if again != nil {
		t.Error("a reconnect is already pending")
	}
}

func TestSendIgnoredWhileTyping(t *testing.T) {
	m := typeText(newTestModel(t, &fakeBackend{}), "second thought")
	m.typing = true

	m, cmd := pressEnter(m)
	if cmd != nil || len(m.messages) != 0 {
		t.Error("send should be disabled while waiting for a reply")
	}
}

func TestSearchCommand(t *testing.T) {
	b := &fakeBackend{search: api.SearchResponse{
		Query:      "free will",
		TotalFound: 1,
		Results:    []api.SearchResult{{Content: "Liberty is a power...", Source: "hume.txt"}},
	}}
	m := typeText(newTestModel(t, b), "/search free will")

	m, cmd := pressEnter(m)
	m, _ = applyUpdate(m, cmd())

	if len(b.searches) != 1 || b.searches[0] != "free will" {
		t.Errorf("searches = %v", b.searches)
	}
	if len(b.debateReqs) != 0 {
		t.Error("search should not call the debate endpoint")
	}
	if len(m.messages) != 2 {
		t.Fatalf("messages = %d", len(m.messages))
	}
	reply := m.messages[1]
	if !strings.Contains(reply.Content, "Liberty is a power") {
		t.Errorf("reply = %q", reply.Content)
	}
	if reply.Metadata == nil || reply.Metadata.Sources[0] != "hume.txt" {
		t.Errorf("metadata = %+v", reply.Metadata)
	}
}

func TestParseSearch(t *testing.T) {
	tests := []struct {
		in    string
		query string
		ok    bool
	}{
		{"/search free will", "free will", true},
		{"/search   ethics ", "ethics", true},
		{"/search", "", false},
		{"/searching", "", false},
		{"search free will", "", false},
	}
	for _, tt := range tests {
		q, ok := parseSearch(tt.in)
		if q != tt.query || ok != tt.ok {
			t.Errorf("parseSearch(%q) = %q, %v; want %q, %v", tt.in, q, ok, tt.query, tt.ok)
		}
	}
}

func TestExportEmptyConversation(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})

	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyCtrlE})
	if m.notice != MsgNothingExport {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestExportWritesTranscript(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})
	m.appendMessage(transcript.SenderUser, "A", nil)
	m.appendMessage(transcript.SenderAI, "B", &transcript.Metadata{Sources: []string{"S1"}})

	m, cmd := applyUpdate(m, tea.KeyMsg{Type: tea.KeyCtrlE})
	if cmd == nil {
		t.Fatal("expected export command")
	}
	done, ok := cmd().(ExportDoneMsg)
	if !ok || done.Err != nil {
		t.Fatalf("export = %#v", done)
	}
	if !strings.Contains(done.Path, "debate-transcript-") {
		t.Errorf("path = %q", done.Path)
	}

	data, err := os.ReadFile(done.Path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"You: A", "AI Opponent: B", "  Sources: S1"} {
		if !strings.Contains(text, want) {
			t.Errorf("transcript missing %q:\n%s", want, text)
		}
	}
	if strings.Index(text, "You: A") > strings.Index(text, "AI Opponent: B") {
		t.Error("messages out of order")
	}

	m, _ = applyUpdate(m, done)
	if !strings.HasPrefix(m.notice, "Exported to ") {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestChatScroll(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})
	for i := 0; i < 40; i++ {
		m.appendMessage(transcript.SenderUser, "line", nil)
	}

	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyPgUp})
	if m.chatScroll == 0 {
		t.Fatal("pgup should scroll back")
	}
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyPgDown})
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyPgDown})
	if m.chatScroll != 0 {
		t.Errorf("chatScroll = %d, want 0", m.chatScroll)
	}

	m.chatScroll = 5
	m.appendMessage(transcript.SenderAI, "new", nil)
	if m.chatScroll != 0 {
		t.Error("new message should jump to the bottom")
	}
}
