package voice

import (
	"testing"

	lksdk "github.com/livekit/server-sdk-go/v2"
)

func TestHandleDataPacket(t *testing.T) {
	var got []Transcript
	events := RoomEvents{OnTranscript: func(tr Transcript) { got = append(got, tr) }}

	handleDataPacket(&lksdk.UserDataPacket{
		Topic:   TranscriptTopic,
		Payload: []byte(`{"speaker":"user","text":"Is justice the interest of the stronger?","final":true,"confidence":0.92}`),
	}, events)
	handleDataPacket(&lksdk.UserDataPacket{Topic: "chat", Payload: []byte(`{"text":"hi"}`)}, events)
	handleDataPacket(&lksdk.UserDataPacket{Topic: TranscriptTopic, Payload: []byte(`not json`)}, events)

	if len(got) != 1 {
		t.Fatalf("transcripts = %d, want 1", len(got))
	}
	tr := got[0]
	if tr.Speaker != "user" || !tr.Final || tr.Text != "Is justice the interest of the stronger?" {
		t.Errorf("transcript = %+v", tr)
	}
	if tr.Confidence == nil || *tr.Confidence != 0.92 {
		t.Errorf("confidence = %v", tr.Confidence)
	}

	// No handler registered.
	handleDataPacket(&lksdk.UserDataPacket{Topic: TranscriptTopic, Payload: []byte(`{}`)}, RoomEvents{})
}
