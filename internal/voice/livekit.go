package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jwulff/debate/internal/logging"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
)

// MicTrackName is the publication name of the microphone track.
const MicTrackName = "microphone"

// TranscriptTopic is the data-channel topic carrying Transcript JSON.
const TranscriptTopic = "transcription"

// LiveKitConnector joins LiveKit rooms.
type LiveKitConnector struct {
	// OpenMic opens the capture device for a published track. Nil means
	// OpenMicrophone.
	OpenMic func() (Microphone, error)
}

// Connect dials url with token. The SDK's dial does not take a context, so a
// room that finishes connecting after ctx is done is disconnected in the
// background.
func (c LiveKitConnector) Connect(ctx context.Context, url, token string, events RoomEvents) (Room, error) {
	cb := &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				handleDataPacket(data, events)
			},
		},
		OnDisconnected: func() {
			if events.OnDisconnected != nil {
				events.OnDisconnected()
			}
		},
		OnReconnected: func() {
			if events.OnConnected != nil {
				events.OnConnected()
			}
		},
	}

	type result struct {
		room *lksdk.Room
		err  error
	}
	done := make(chan result, 1)
	go func() {
		room, err := lksdk.ConnectToRoomWithToken(url, token, cb, lksdk.WithAutoSubscribe(true))
		done <- result{room: room, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if events.OnConnected != nil {
			events.OnConnected()
		}
		openMic := c.OpenMic
		if openMic == nil {
			openMic = OpenMicrophone
		}
		return &liveKitRoom{room: r.room, events: events, openMic: openMic}, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.room != nil {
				r.room.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

type liveKitRoom struct {
	room    *lksdk.Room
	events  RoomEvents
	openMic func() (Microphone, error)

	mu   sync.Mutex
	pub  *lksdk.LocalTrackPublication
	mic  Microphone
	stop chan struct{}
	done chan struct{}
}

// PublishMic opens the capture device and publishes it as an Opus track.
// Captured audio is encoded and written to the track from a goroutine that
// runs until UnpublishMic.
func (r *liveKitRoom) PublishMic(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mic, err := r.openMic()
	if err != nil {
		r.mediaError(err)
		return err
	}
	enc, err := newOpusEncoder()
	if err != nil {
		mic.Close()
		r.mediaError(err)
		return err
	}

	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: micSampleRate,
		Channels:  2,
	})
	if err != nil {
		mic.Close()
		r.mediaError(err)
		return fmt.Errorf("create microphone track: %w", err)
	}

	pub, err := r.room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{Name: MicTrackName})
	if err != nil {
		mic.Close()
		_ = track.Close()
		r.mediaError(err)
		return fmt.Errorf("publish track: %w", err)
	}

	stop, done := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(done)
		if err := pumpAudio(mic.Frames(), enc, track, stop); err != nil {
			r.mediaError(err)
		}
	}()

	r.mu.Lock()
	r.pub, r.mic, r.stop, r.done = pub, mic, stop, done
	r.mu.Unlock()
	return nil
}

func (r *liveKitRoom) UnpublishMic() error {
	r.mu.Lock()
	pub, mic, stop, done := r.pub, r.mic, r.stop, r.done
	r.pub, r.mic, r.stop, r.done = nil, nil, nil, nil
	r.mu.Unlock()

	if pub == nil {
		return nil
	}
	close(stop)
	mic.Close()
	<-done

	// Unpublishing also closes the underlying track.
	if err := r.room.LocalParticipant.UnpublishTrack(pub.SID()); err != nil {
		return fmt.Errorf("unpublish track %s: %w", pub.SID(), err)
	}
	return nil
}

func (r *liveKitRoom) Disconnect() {
	if err := r.UnpublishMic(); err != nil {
		logger := logging.WithComponent("voice")
		logger.Warn().Err(err).Msg("unpublish microphone on disconnect")
	}
	r.room.Disconnect()
}

func (r *liveKitRoom) mediaError(err error) {
	if r.events.OnMediaError != nil && !errors.Is(err, context.Canceled) {
		r.events.OnMediaError(err)
	}
}

func handleDataPacket(data lksdk.DataPacket, events RoomEvents) {
	pkt, ok := data.(*lksdk.UserDataPacket)
	if !ok || pkt.Topic != TranscriptTopic || events.OnTranscript == nil {
		return
	}
	var t Transcript
	if err := json.Unmarshal(pkt.Payload, &t); err != nil {
		logger := logging.WithComponent("voice")
		logger.Debug().Err(err).Msg("ignoring malformed transcript packet")
		return
	}
	events.OnTranscript(t)
}
