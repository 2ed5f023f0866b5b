// Package voice manages the client side of a real-time voice session: a room
// connection and a published microphone track.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jwulff/debate/internal/logging"
)

// Errors returned by the adapter.
var (
	ErrNotConnected = errors.New("not connected to room")
)

// RoomEvents are callbacks a Room implementation fires on connection and
// media changes. Any of them may be nil.
type RoomEvents struct {
	OnConnected    func()
	OnDisconnected func()
	OnMediaError   func(error)
	OnTranscript   func(Transcript)
}

// Transcript is one transcription result published into the room by the
// backend agent.
type Transcript struct {
	Speaker    string   `json:"speaker"` // "user" or "ai"
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Final      bool     `json:"final"`
}

// Room is a connected real-time media room.
type Room interface {
	// PublishMic creates and publishes a microphone track.
	PublishMic(ctx context.Context) error
	// UnpublishMic unpublishes and stops the microphone track.
	UnpublishMic() error
	// Disconnect leaves the room.
	Disconnect()
}

// Connector dials rooms.
type Connector interface {
	Connect(ctx context.Context, url, token string, events RoomEvents) (Room, error)
}

// State is a snapshot of the adapter's observable flags.
type State struct {
	Connected bool
	MicActive bool
	Err       error
}

// Adapter is a small state machine over one room connection and one mic
// track. It exclusively owns both.
//
// Transitions:
//
//	disconnected ──ConnectToRoom──▶ connected ──StartMic──▶ connected+mic
//	     ▲                            │  ▲                      │
//	     └────────Disconnect──────────┘  └───────StopMic────────┘
//
// opMu serializes operations; mu guards the fields read by State and by
// room callbacks, so a slow connect never blocks rendering.
type Adapter struct {
	opMu sync.Mutex

	mu           sync.Mutex
	connector    Connector
	room         Room
	gen          int // identifies the current room for callbacks
	micPublished bool
	state        State
	onChange     func(State)
	onTranscript func(Transcript)
}

// NewAdapter returns a disconnected adapter dialing through connector.
func NewAdapter(connector Connector) *Adapter {
	return &Adapter{connector: connector}
}

// OnChange registers fn to be called after every state change. fn runs on
// the goroutine that caused the change and must not call back into the
// adapter's mutating methods.
func (a *Adapter) OnChange(fn func(State)) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// OnTranscript registers fn to receive transcription results from the
// current room.
func (a *Adapter) OnTranscript(fn func(Transcript)) {
	a.mu.Lock()
	a.onTranscript = fn
	a.mu.Unlock()
}

// State returns the current flags.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// ConnectToRoom joins the room at url. It is a no-op when already connected.
func (a *Adapter) ConnectToRoom(ctx context.Context, url, token string) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	if a.room != nil {
		a.mu.Unlock()
		return nil
	}
	a.gen++
	gen := a.gen
	a.mu.Unlock()

	room, err := a.connector.Connect(ctx, url, token, a.events(gen))
	if err != nil {
		a.update(func(s *State) {
			s.Connected = false
			s.Err = err
		})
		return fmt.Errorf("connect to room: %w", err)
	}

	a.mu.Lock()
	a.room = room
	a.mu.Unlock()
	a.update(func(s *State) {
		s.Connected = true
		s.Err = nil
	})
	return nil
}

// StartMic publishes a microphone track. It is a no-op when one is already
// published.
func (a *Adapter) StartMic(ctx context.Context) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	room, published := a.room, a.micPublished
	a.mu.Unlock()

	if room == nil {
		return ErrNotConnected
	}
	if published {
		return nil
	}

	if err := room.PublishMic(ctx); err != nil {
		a.update(func(s *State) {
			s.MicActive = false
			s.Err = err
		})
		return fmt.Errorf("publish microphone: %w", err)
	}

	a.mu.Lock()
	a.micPublished = true
	a.mu.Unlock()
	a.update(func(s *State) {
		s.MicActive = true
		s.Err = nil
	})
	return nil
}

// StopMic unpublishes the microphone track if present. Afterwards MicActive
// is always false.
func (a *Adapter) StopMic() {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	a.stopMic()
}

func (a *Adapter) stopMic() {
	a.mu.Lock()
	room, published := a.room, a.micPublished
	a.micPublished = false
	a.mu.Unlock()

	if room != nil && published {
		if err := room.UnpublishMic(); err != nil {
			logger := logging.WithComponent("voice")
			logger.Warn().Err(err).Msg("unpublish microphone")
		}
	}
	a.update(func(s *State) { s.MicActive = false })
}

// Disconnect stops the mic, leaves the room and clears all flags.
func (a *Adapter) Disconnect() {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.stopMic()

	a.mu.Lock()
	room := a.room
	a.room = nil
	a.gen++ // ignore callbacks from the old room
	a.mu.Unlock()

	if room != nil {
		room.Disconnect()
	}
	a.update(func(s *State) { *s = State{} })
}

// fail records err without changing the connection flags.
func (a *Adapter) fail(err error) {
	a.update(func(s *State) { s.Err = err })
}

func (a *Adapter) events(gen int) RoomEvents {
	return RoomEvents{
		OnConnected: func() {
			a.updateIf(gen, func(s *State) { s.Connected = true })
		},
		OnDisconnected: func() {
			a.mu.Lock()
			if a.gen == gen {
				a.room = nil
				a.micPublished = false
			}
			a.mu.Unlock()
			a.updateIf(gen, func(s *State) {
				s.Connected = false
				s.MicActive = false
			})
		},
		OnMediaError: func(err error) {
			a.updateIf(gen, func(s *State) { s.Err = err })
		},
		OnTranscript: func(t Transcript) {
			a.mu.Lock()
			cb := a.onTranscript
			stale := a.gen != gen
			a.mu.Unlock()
			if cb != nil && !stale {
				cb(t)
			}
		},
	}
}

func (a *Adapter) update(fn func(*State)) {
	a.mu.Lock()
	fn(&a.state)
	st, cb := a.state, a.onChange
	a.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

func (a *Adapter) updateIf(gen int, fn func(*State)) {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	fn(&a.state)
	st, cb := a.state, a.onChange
	a.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}
