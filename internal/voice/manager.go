package voice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwulff/debate/internal/api"
	"github.com/jwulff/debate/internal/db"
	"github.com/jwulff/debate/internal/logging"
	"github.com/shirou/gopsutil/v4/process"
)

// cleanupTimeout bounds backend calls made while tearing down.
const cleanupTimeout = 10 * time.Second

// ErrSessionActive is returned by Start when a session is already running.
var ErrSessionActive = errors.New("voice session already active")

// SessionAPI is the backend surface the manager needs.
type SessionAPI interface {
	StartVoiceSession(ctx context.Context, req api.VoiceSessionRequest) (api.VoiceSession, error)
	VoiceSessionStatus(ctx context.Context, sessionID string) (api.VoiceSessionStatus, error)
	EndVoiceSession(ctx context.Context, sessionID string) error
}

// SessionLog records sessions locally so ones left behind by a crash can be
// ended on the next start.
type SessionLog interface {
	RecordVoiceSession(vs db.VoiceSession) error
	EndVoiceSession(id, status string) error
	ActiveVoiceSessions() ([]db.VoiceSession, error)
}

// Manager orchestrates one voice session at a time: backend session, room
// connection and microphone.
type Manager struct {
	api         SessionAPI
	adapter     *Adapter
	log         SessionLog
	participant string
	identity    func() string
	pid         int
	alive       func(ctx context.Context, pid int) bool

	// opMu serializes Start and End; mu guards the fields below and is
	// never held across a blocking call.
	opMu    sync.Mutex
	mu      sync.Mutex
	session *api.VoiceSession
	started time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSessionLog records sessions in log.
func WithSessionLog(log SessionLog) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithIdentity overrides how user identities are generated.
func WithIdentity(fn func() string) ManagerOption {
	return func(m *Manager) { m.identity = fn }
}

// WithProcessCheck overrides how Reconcile decides whether the process that
// recorded a session is still running.
func WithProcessCheck(fn func(ctx context.Context, pid int) bool) ManagerOption {
	return func(m *Manager) { m.alive = fn }
}

// NewManager returns a manager that joins rooms as participant.
func NewManager(backend SessionAPI, adapter *Adapter, participant string, opts ...ManagerOption) *Manager {
	m := &Manager{
		api:         backend,
		adapter:     adapter,
		participant: participant,
		identity:    NewIdentity,
		pid:         os.Getpid(),
		alive:       processAlive,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewIdentity returns a fresh identity of the form user_<unixms>_<random>.
func NewIdentity() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("user_%d_%s", time.Now().UnixMilli(), id[:9])
}

// Adapter returns the underlying room adapter.
func (m *Manager) Adapter() *Adapter { return m.adapter }

// Session returns the active session and when it started.
func (m *Manager) Session() (api.VoiceSession, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return api.VoiceSession{}, time.Time{}, false
	}
	return *m.session, m.started, true
}

// Active reports whether a session is running.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Start creates a backend session, joins its room and publishes the mic.
// Each release is registered before its acquisition is attempted; on any
// failure the releases run in reverse order, the adapter's Err is set and
// the original error is returned.
func (m *Manager) Start(ctx context.Context) (vs api.VoiceSession, err error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if current, _, ok := m.Session(); ok {
		return current, ErrSessionActive
	}

	var rollback []func()
	defer func() {
		if err == nil {
			return
		}
		for i := len(rollback) - 1; i >= 0; i-- {
			rollback[i]()
		}
		// Rolling back disconnects, which clears the adapter's flags.
		m.adapter.fail(err)
	}()

	identity := m.identity()
	vs, err = m.api.StartVoiceSession(ctx, api.VoiceSessionRequest{
		UserIdentity:    identity,
		ParticipantName: m.participant,
	})
	if err != nil {
		return api.VoiceSession{}, fmt.Errorf("start voice session: %w", err)
	}
	issued := vs
	rollback = append(rollback, func() { m.endRemote(ctx, issued) })

	logger := logging.WithVoiceSession(vs.SessionID, vs.RoomName)
	logger.Info().Time("expiresAt", vs.Expiry()).Msg("voice session issued")
	m.record(vs, identity)

	rollback = append(rollback, m.adapter.Disconnect)
	if err = m.adapter.ConnectToRoom(ctx, vs.LiveKitURL, vs.Token); err != nil {
		logger.Error().Err(err).Msg("room connect failed, rolling back")
		return api.VoiceSession{}, err
	}

	rollback = append(rollback, m.adapter.StopMic)
	if err = m.adapter.StartMic(ctx); err != nil {
		logger.Error().Err(err).Msg("microphone failed, rolling back")
		return api.VoiceSession{}, err
	}

	m.mu.Lock()
	m.session = &vs
	m.started = time.Now()
	m.mu.Unlock()
	logger.Info().Msg("voice session started")
	return vs, nil
}

// End stops the mic, leaves the room and deletes the backend session. A
// failed delete is logged and the local teardown still completes.
func (m *Manager) End(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	vs := m.session
	m.session = nil
	m.started = time.Time{}
	m.mu.Unlock()

	m.adapter.Disconnect()
	if vs != nil {
		m.endRemote(ctx, *vs)
	}
}

// Close ends any active session. It is the teardown hook for application
// exit.
func (m *Manager) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	m.End(ctx)
}

// Reconcile ends sessions the log still marks active whose owning process
// has exited, typically left by a run that crashed. Sessions owned by a
// running client, including this one, are left alone.
func (m *Manager) Reconcile(ctx context.Context) error {
	if m.log == nil {
		return nil
	}
	active, err := m.log.ActiveVoiceSessions()
	if err != nil {
		return fmt.Errorf("list active voice sessions: %w", err)
	}
	for _, s := range active {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger := logging.WithVoiceSession(s.ID, s.RoomName)
		if s.PID != 0 && m.alive(ctx, s.PID) {
			logger.Debug().Int("pid", s.PID).Msg("voice session owned by a running client, skipping")
			continue
		}

		_, err := m.api.VoiceSessionStatus(ctx, s.ID)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		switch {
		case api.IsStatus(err, http.StatusNotFound):
			// Already gone on the backend; only the log is stale.
			if err := m.log.EndVoiceSession(s.ID, db.VoiceStatusEnded); err != nil {
				logger.Warn().Err(err).Msg("update voice session log")
			}
			continue
		case api.IsTransport(err):
			logger.Warn().Err(err).Msg("backend unreachable, leaving stale voice session for next run")
			return nil
		}
		m.endRemote(ctx, api.VoiceSession{SessionID: s.ID, RoomName: s.RoomName})
	}
	return nil
}

// ReconcileAsync runs Reconcile on its own goroutine, bounded by timeout.
// The returned stop cancels it and waits for it to return.
func (m *Manager) ReconcileAsync(ctx context.Context, timeout time.Duration) (stop func()) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.Reconcile(ctx); err != nil {
			logger := logging.WithComponent("voice")
			logger.Warn().Err(err).Msg("reconcile voice sessions")
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// processAlive reports whether pid names a running process. Lookup errors
// count as alive so a session is never ended on a guess.
func processAlive(ctx context.Context, pid int) bool {
	ok, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		return true
	}
	return ok
}

func (m *Manager) endRemote(ctx context.Context, vs api.VoiceSession) {
	logger := logging.WithVoiceSession(vs.SessionID, vs.RoomName)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	status := db.VoiceStatusEnded
	if err := m.api.EndVoiceSession(ctx, vs.SessionID); err != nil {
		logger.Warn().Err(err).Msg("failed to end backend voice session, continuing with cleanup")
		status = db.VoiceStatusOrphaned
	} else {
		logger.Info().Msg("voice session ended")
	}

	if m.log != nil {
		if err := m.log.EndVoiceSession(vs.SessionID, status); err != nil {
			logger.Warn().Err(err).Msg("update voice session log")
		}
	}
}

func (m *Manager) record(vs api.VoiceSession, identity string) {
	if m.log == nil {
		return
	}
	err := m.log.RecordVoiceSession(db.VoiceSession{
		ID:        vs.SessionID,
		RoomName:  vs.RoomName,
		Identity:  identity,
		StartedAt: time.Now(),
		ExpiresAt: vs.Expiry(),
		Status:    db.VoiceStatusActive,
		PID:       m.pid,
	})
	if err != nil {
		logger := logging.WithVoiceSession(vs.SessionID, vs.RoomName)
		logger.Warn().Err(err).Msg("record voice session")
	}
}
