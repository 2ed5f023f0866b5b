package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jwulff/debate/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// startMockBackend serves handler and returns a client pointed at it.
func startMockBackend(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, WithTimeout(5*time.Second))
}

func TestHealth(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		w.Write([]byte(`{"status":"healthy","service":"ai-debate-partner","rag_status":"enabled","voice_status":"disabled"}`))
	})

	got, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !got.Healthy() {
		t.Errorf("status = %q, want healthy", got.Status)
	}
	if got.VoiceStatus != "disabled" {
		t.Errorf("voice_status = %q", got.VoiceStatus)
	}
}

func TestDebate(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/debate/test" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}

		var req DebateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if req.Content != "Free will is an illusion" || req.UserID != "default" {
			t.Errorf("request body = %+v", req)
		}

		w.Write([]byte(`{
			"response": "Consider compatibilism.",
			"confidence": 0.85,
			"sources": ["hume.txt", "kant.txt"],
			"retrieved_docs": [{"source": "hume.txt", "content_preview": "Liberty..."}]
		}`))
	})

	got, err := client.Debate(context.Background(), DebateRequest{Content: "Free will is an illusion", UserID: "default"})
	if err != nil {
		t.Fatalf("Debate: %v", err)
	}
	if got.Response != "Consider compatibilism." {
		t.Errorf("response = %q", got.Response)
	}
	if got.Confidence == nil || *got.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85", got.Confidence)
	}
	if len(got.Sources) != 2 || got.Sources[1] != "kant.txt" {
		t.Errorf("sources = %v", got.Sources)
	}
	if len(got.RetrievedDocs) != 1 || got.RetrievedDocs[0].ContentPreview != "Liberty..." {
		t.Errorf("retrieved_docs = %+v", got.RetrievedDocs)
	}
}

func TestDebateServerError(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Internal server error: boom"}`, http.StatusInternalServerError)
	})

	_, err := client.Debate(context.Background(), DebateRequest{Content: "claim"})
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if !IsStatus(err, http.StatusInternalServerError) {
		t.Errorf("err = %v, want StatusError 500", err)
	}
	if !strings.Contains(err.Error(), "status: 500") {
		t.Errorf("error text = %q", err.Error())
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(url, WithTimeout(time.Second))
	_, err := client.Health(context.Background())
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	if !IsTransport(err) {
		t.Errorf("err = %v, want TransportError", err)
	}
	var te *TransportError
	if errors.As(err, &te) && te.Op != "health" {
		t.Errorf("op = %q, want health", te.Op)
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	client.timeout = 50 * time.Millisecond

	_, err := client.Health(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestVoiceSessionLifecycle(t *testing.T) {
	var deleted string
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/voice/start-session":
			var req VoiceSessionRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.UserIdentity != "user_1" || req.ParticipantName != "Debate Participant" {
				t.Errorf("request = %+v", req)
			}
			w.Write([]byte(`{"token":"tok","room_name":"debate-1234abcd","livekit_url":"wss://lk.example.com","session_id":"sess-1","expires_at":1700000000}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/voice/session/sess-1":
			w.Write([]byte(`{"session_id":"sess-1","room_name":"debate-1234abcd","status":"active","created_at":1,"expires_at":2}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/voice/session/sess-1":
			deleted = "sess-1"
			w.Write([]byte(`{"message":"Voice session ended successfully"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	vs, err := client.StartVoiceSession(ctx, VoiceSessionRequest{UserIdentity: "user_1", ParticipantName: "Debate Participant"})
	if err != nil {
		t.Fatalf("StartVoiceSession: %v", err)
	}
	if vs.SessionID != "sess-1" || vs.LiveKitURL != "wss://lk.example.com" || vs.Token != "tok" {
		t.Errorf("session = %+v", vs)
	}
	if vs.Expiry().Unix() != 1700000000 {
		t.Errorf("expiry = %v", vs.Expiry())
	}

	status, err := client.VoiceSessionStatus(ctx, "sess-1")
	if err != nil {
		t.Fatalf("VoiceSessionStatus: %v", err)
	}
	if status.Status != "active" {
		t.Errorf("status = %q", status.Status)
	}

	if err := client.EndVoiceSession(ctx, "sess-1"); err != nil {
		t.Fatalf("EndVoiceSession: %v", err)
	}
	if deleted != "sess-1" {
		t.Error("delete endpoint was not called")
	}
}

func TestUploadDocument(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/documents/upload" {
			t.Errorf("path = %q", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "republic.txt" {
			t.Errorf("filename = %q", header.Filename)
		}
		if string(data) != "Justice is..." {
			t.Errorf("content = %q", data)
		}
		w.Write([]byte(`{"document_id":"doc-9","filename":"republic.txt","chunks":3}`))
	})

	resp, err := client.UploadDocument(context.Background(), "/tmp/books/republic.txt", strings.NewReader("Justice is..."))
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if resp.DocumentID != "doc-9" {
		t.Errorf("document_id = %q", resp.DocumentID)
	}
}

func TestUploadAcceptsNonJSONBody(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	resp, err := client.UploadDocument(context.Background(), "a.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if resp.DocumentID != "" {
		t.Errorf("document_id = %q, want empty", resp.DocumentID)
	}
}

func TestUploadLogsUnreadableBody(t *testing.T) {
	prevLevel, prevLogger := zerolog.GlobalLevel(), log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prevLogger
	})

	path := filepath.Join(t.TempDir(), "debate.log")
	cfg := logging.DefaultConfig(path)
	cfg.Level = "debug"
	closer, err := logging.Init(cfg)
	if err != nil {
		t.Fatalf("logging.Init: %v", err)
	}

	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"document_id": `))
	})
	if _, err := client.UploadDocument(context.Background(), "/tmp/meno.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"level":"debug"`, `"component":"api"`, `"filename":"meno.txt"`, "unreadable body"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log missing %s: %s", want, data)
		}
	}
}

func TestUploadRejected(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	})

	_, err := client.UploadDocument(context.Background(), "big.pdf", strings.NewReader("x"))
	if !IsStatus(err, http.StatusRequestEntityTooLarge) {
		t.Errorf("err = %v, want 413", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	var gotPath string
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.DeleteDocument(context.Background(), "doc-9"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if gotPath != "/api/documents/doc-9" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestKnowledgeTopicsAndSearch(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/knowledge/topics":
			w.Write([]byte(`{"topics":["Free Will","Determinism"],"total_documents":42}`))
		case "/api/knowledge/search":
			if q := r.URL.Query().Get("query"); q != "free will" {
				t.Errorf("query = %q", q)
			}
			if l := r.URL.Query().Get("limit"); l != "3" {
				t.Errorf("limit = %q", l)
			}
			w.Write([]byte(`{"query":"free will","results":[{"content":"...","source":"hume.txt"}],"total_found":1}`))
		}
	})
	ctx := context.Background()

	topics, err := client.Topics(ctx)
	if err != nil {
		t.Fatalf("Topics: %v", err)
	}
	if len(topics.Topics) != 2 || topics.TotalDocuments != 42 {
		t.Errorf("topics = %+v", topics)
	}

	results, err := client.Search(ctx, "free will", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results.TotalFound != 1 || results.Results[0].Source != "hume.txt" {
		t.Errorf("results = %+v", results)
	}
}

func TestBaseURLTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL + "/").Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
