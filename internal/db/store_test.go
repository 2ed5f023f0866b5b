package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore opens an in-memory database with the debate schema.
func createTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := OpenMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetMissingKey(t *testing.T) {
	store := createTestStore(t)

	value, ok, err := store.Get("ai-debate-settings")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Errorf("ok = true for missing key, value %q", value)
	}
}

func TestSetAndGet(t *testing.T) {
	store := createTestStore(t)

	if err := store.Set("theme", `"dark"`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set("theme", `"light"`); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}

	value, ok, err := store.Get("theme")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected key to exist")
	}
	if value != `"light"` {
		t.Errorf("value = %q, want %q", value, `"light"`)
	}
}

func TestOpenPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "debate.sqlite")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Set("ai-debate-settings", `{"theme":"light"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	value, ok, err := reopened.Get("ai-debate-settings")
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if value != `{"theme":"light"}` {
		t.Errorf("value = %q", value)
	}
}

func TestVoiceSessionLifecycle(t *testing.T) {
	store := createTestStore(t)
	now := time.Now().Truncate(time.Second)

	err := store.RecordVoiceSession(VoiceSession{
		ID:        "sess-1",
		RoomName:  "debate-abc12345",
		Identity:  "user_1",
		StartedAt: now.Add(-time.Minute),
		ExpiresAt: now.Add(time.Hour),
		PID:       4242,
	})
	if err != nil {
		t.Fatalf("RecordVoiceSession: %v", err)
	}
	store.RecordVoiceSession(VoiceSession{
		ID:        "sess-2",
		RoomName:  "debate-def67890",
		Identity:  "user_2",
		StartedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})

	active, err := store.ActiveVoiceSessions()
	if err != nil {
		t.Fatalf("ActiveVoiceSessions: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2", len(active))
	}
	if active[0].ID != "sess-1" {
		t.Errorf("active[0].ID = %q, want oldest first", active[0].ID)
	}
	if active[0].PID != 4242 || active[1].PID != 0 {
		t.Errorf("pids = %d, %d", active[0].PID, active[1].PID)
	}

	if err := store.EndVoiceSession("sess-1", VoiceStatusEnded); err != nil {
		t.Fatalf("EndVoiceSession: %v", err)
	}
	if err := store.EndVoiceSession("sess-2", VoiceStatusOrphaned); err != nil {
		t.Fatalf("EndVoiceSession orphaned: %v", err)
	}

	active, _ = store.ActiveVoiceSessions()
	if len(active) != 0 {
		t.Errorf("active = %d after ending, want 0", len(active))
	}


	var status string
	var endedAt sql.NullFloat64
	err = store.db.QueryRow(`SELECT status, endedAt FROM voice_sessions WHERE id = ?`, "sess-2").Scan(&status, &endedAt)
	if err != nil {
		t.Fatalf("query sess-2: %v", err)
	}
	if status != VoiceStatusOrphaned {
		t.Errorf("status = %q, want %q", status, VoiceStatusOrphaned)
	}
	if !endedAt.Valid {
		t.Error("endedAt should be set")
	}
}

func TestEndUnknownVoiceSession(t *testing.T) {
	store := createTestStore(t)
	if err := store.EndVoiceSession("ghost", VoiceStatusEnded); err == nil {
		t.Error("expected error ending unknown session")
	}
}

func TestMigrateAddsPIDColumn(t *testing.T) {
	raw, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	raw.SetMaxOpenConns(1)
	_, err = raw.Exec(`
		CREATE TABLE voice_sessions (
			id TEXT PRIMARY KEY,
			roomName TEXT NOT NULL,
			identity TEXT NOT NULL,
			startedAt REAL NOT NULL,
			expiresAt REAL NOT NULL,
			endedAt REAL,
			status TEXT NOT NULL DEFAULT 'active'
		);
		INSERT INTO voice_sessions (id, roomName, identity, startedAt, expiresAt)
		VALUES ('old', 'debate-old', 'user_0', 1, 2);
	`)
	if err != nil {
		t.Fatalf("seed old schema: %v", err)
	}

	store, err := newStore(raw)
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	defer store.Close()

	active, err := store.ActiveVoiceSessions()
	if err != nil {
		t.Fatalf("ActiveVoiceSessions: %v", err)
	}
	if len(active) != 1 || active[0].ID != "old" || active[0].PID != 0 {
		t.Errorf("active = %+v", active)
	}

	// Applying again is a no-op.
	if err := migrate(store.db); err != nil {
		t.Errorf("second migrate: %v", err)
	}
}
