package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ahouse2/financial-legal-analysis/pkg/audio"
	"github.com/ahouse2/financial-legal-analysis/pkg/core"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// liveTestServer runs handler on an upgraded connection after consuming and
// acknowledging the setup frame. The received setup is stored for assertions.
func liveTestServer(t *testing.T, handler func(conn *websocket.Conn)) (endpoint string, setupCh <-chan ClientSetupFrame) {
	t.Helper()
	setups := make(chan ClientSetupFrame, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var setup ClientSetupFrame
		if err := conn.ReadJSON(&setup); err != nil {
			t.Errorf("read setup: %v", err)
			return
		}
		setups <- setup

		if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
			t.Errorf("write setup ack: %v", err)
			return
		}
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), setups
}

func collectEvents(t *testing.T, s *Session, n int) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(5 * time.Second)
	for len(events) < n {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatalf("event stream closed after %d events, want %d", len(events), n)
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("timed out after %d events, want %d", len(events), n)
		}
	}
	return events
}

func TestSessionReceivesOrderedAudio(t *testing.T) {
	first := []byte{1, 2, 3, 4}
	second := []byte{5, 6, 7, 8}

	endpoint, setups := liveTestServer(t, func(conn *websocket.Conn) {
		turn := map[string]any{"serverContent": map[string]any{
			"modelTurn": map[string]any{"parts": []map[string]any{
				{"inlineData": map[string]any{"mimeType": PlaybackMIMEType, "data": audio.BytesToBase64(first)}},
				{"text": "transcript fragment"},
				{"inlineData": map[string]any{"mimeType": PlaybackMIMEType, "data": audio.BytesToBase64(second)}},
			}},
			"turnComplete": true,
		}}
		if err := conn.WriteJSON(turn); err != nil {
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})

	s, err := Connect(context.Background(), Config{
		APIKey:            "test-key",
		Endpoint:          endpoint,
		SystemInstruction: "You are a calm financial consultant.",
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer s.Close()

	setup := <-setups
	if setup.Setup.Model != "models/"+defaultModel {
		t.Fatalf("setup model = %q", setup.Setup.Model)
	}
	if got := setup.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != defaultVoice {
		t.Fatalf("setup voice = %q, want %q", got, defaultVoice)
	}
	if got := setup.Setup.SystemInstruction.Parts[0].Text; got != "You are a calm financial consultant." {
		t.Fatalf("setup instruction = %q", got)
	}

	events := collectEvents(t, s, 5)
	if _, ok := events[0].(OpenedEvent); !ok {
		t.Fatalf("events[0] = %T, want OpenedEvent", events[0])
	}
	a1, ok := events[1].(AudioEvent)
	if !ok {
		t.Fatalf("events[1] = %T, want AudioEvent", events[1])
	}
	a2, ok := events[2].(AudioEvent)
	if !ok {
		t.Fatalf("events[2] = %T, want AudioEvent", events[2])
	}
	if string(a1.PCM) != string(first) || string(a2.PCM) != string(second) {
		t.Fatalf("audio chunks out of order or corrupted: %v, %v", a1.PCM, a2.PCM)
	}
	if _, ok := events[3].(TurnCompleteEvent); !ok {
		t.Fatalf("events[3] = %T, want TurnCompleteEvent", events[3])
	}
	if _, ok := events[4].(ClosedEvent); !ok {
		t.Fatalf("events[4] = %T, want ClosedEvent", events[4])
	}

	if _, open := <-s.Events(); open {
		t.Fatal("event stream still open after terminal event")
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v after orderly close, want nil", err)
	}
}

func TestSessionSendAudio(t *testing.T) {
	frames := make(chan RealtimeInputFrame, 1)
	endpoint, _ := liveTestServer(t, func(conn *websocket.Conn) {
		var frame RealtimeInputFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		frames <- frame
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})

	s, err := Connect(context.Background(), Config{APIKey: "test-key", Endpoint: endpoint})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer s.Close()

	pcm := []byte{0x10, 0x20, 0x30, 0x40}
	if err := s.SendAudio(pcm); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}

	select {
	case frame := <-frames:
		chunks := frame.RealtimeInput.MediaChunks
		if len(chunks) != 1 {
			t.Fatalf("got %d media chunks, want 1", len(chunks))
		}
		if chunks[0].MIMEType != CaptureMIMEType {
			t.Fatalf("chunk mime = %q, want %q", chunks[0].MIMEType, CaptureMIMEType)
		}
		got, err := audio.Base64ToBytes(chunks[0].Data)
		if err != nil || string(got) != string(pcm) {
			t.Fatalf("chunk payload = %v (err %v), want %v", got, err, pcm)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never received the audio frame")
	}
}

func TestSessionInterruptDropsIntoStream(t *testing.T) {
	endpoint, _ := liveTestServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{"interrupted": true}})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})

	s, err := Connect(context.Background(), Config{APIKey: "test-key", Endpoint: endpoint})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer s.Close()

	events := collectEvents(t, s, 3)
	if _, ok := events[1].(InterruptedEvent); !ok {
		t.Fatalf("events[1] = %T, want InterruptedEvent", events[1])
	}
}

func TestSessionAbruptDisconnect(t *testing.T) {
	endpoint, _ := liveTestServer(t, func(conn *websocket.Conn) {
		// Drop the TCP connection without a close handshake.
		_ = conn.NetConn().Close()
	})

	s, err := Connect(context.Background(), Config{APIKey: "test-key", Endpoint: endpoint})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer s.Close()

	events := collectEvents(t, s, 2)
	errEv, ok := events[1].(ErrorEvent)
	if !ok {
		t.Fatalf("events[1] = %T, want ErrorEvent", events[1])
	}
	if !core.IsType(errEv.Err, core.ErrConnection) {
		t.Fatalf("terminal error = %v, want connection_error", errEv.Err)
	}
	if _, open := <-s.Events(); open {
		t.Fatal("event stream still open after terminal error")
	}
	if !core.IsType(s.Err(), core.ErrConnection) {
		t.Fatalf("Err() = %v, want connection_error", s.Err())
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	endpoint, _ := liveTestServer(t, func(conn *websocket.Conn) {
		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	s, err := Connect(context.Background(), Config{APIKey: "test-key", Endpoint: endpoint})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := s.SendAudio([]byte{1, 2}); err == nil {
		t.Fatal("SendAudio after Close should fail")
	}
}

func TestTerminalEventSurvivesFullBuffer(t *testing.T) {
	s := &Session{
		events: make(chan Event, 2),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.events <- AudioEvent{PCM: []byte{1}}
	s.events <- AudioEvent{PCM: []byte{2}}

	// Even with no consumer and a full buffer, the terminal event must be
	// the last thing on the stream before it closes.
	s.deliverTerminal(ClosedEvent{})
	close(s.events)

	var last Event
	for ev := range s.events {
		last = ev
	}
	if _, ok := last.(ClosedEvent); !ok {
		t.Fatalf("last event = %T, want ClosedEvent", last)
	}
}

func TestConnectRequiresAPIKey(t *testing.T) {
	_, err := Connect(context.Background(), Config{})
	if !core.IsType(err, core.ErrInvalidRequest) {
		t.Fatalf("Connect without key = %v, want invalid_request", err)
	}
}

func TestDecodeServerFrame_Invalid(t *testing.T) {
	if _, err := DecodeServerFrame([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed frame")
	}
	frame, err := DecodeServerFrame([]byte(`{"serverContent":{"modelTurn":{"parts":[{"text":"hi"}]}}}`))
	if err != nil {
		t.Fatalf("DecodeServerFrame() error = %v", err)
	}
	if chunks := frame.ServerContent.AudioChunks(); len(chunks) != 0 {
		t.Fatalf("text-only turn yielded %d audio chunks", len(chunks))
	}
	// The union decodes from the raw envelope too.
	raw, _ := json.Marshal(ServerFrame{GoAway: &GoAway{TimeLeft: "10s"}})
	frame, err = DecodeServerFrame(raw)
	if err != nil || frame.GoAway == nil || frame.GoAway.TimeLeft != "10s" {
		t.Fatalf("goAway round trip failed: %+v, %v", frame, err)
	}
}
