package live

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ahouse2/financial-legal-analysis/pkg/audio"
	"github.com/ahouse2/financial-legal-analysis/pkg/core"
)

const (
	defaultEndpoint       = "wss://generativelanguage.googleapis.com"
	bidiPath              = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	defaultConnectTimeout = 15 * time.Second
	defaultModel          = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultVoice          = "Kore"

	eventBufferSize = 256
)

// Event is a message delivered on the session's event stream. Events arrive
// in the order the server produced them; the stream ends with exactly one
// terminal event (ClosedEvent or ErrorEvent) before the channel closes.
type Event interface {
	liveEventType() string
}

// OpenedEvent is delivered once, after the server acknowledged setup.
type OpenedEvent struct{}

// AudioEvent carries one decoded chunk of 24kHz mono s16le model speech.
type AudioEvent struct {
	PCM []byte
}

// TurnCompleteEvent marks the end of a model speaking turn.
type TurnCompleteEvent struct{}

// InterruptedEvent reports that the model turn was cut off by user speech.
type InterruptedEvent struct{}

// GoAwayEvent warns that the server will drop the connection soon.
type GoAwayEvent struct {
	TimeLeft string
}

// ClosedEvent is the terminal event for an orderly shutdown, local or remote.
type ClosedEvent struct{}

// ErrorEvent is the terminal event for a transport failure. The same error is
// available from Session.Err after the stream closes.
type ErrorEvent struct {
	Err error
}

func (OpenedEvent) liveEventType() string       { return "opened" }
func (AudioEvent) liveEventType() string        { return "audio" }
func (TurnCompleteEvent) liveEventType() string { return "turn_complete" }
func (InterruptedEvent) liveEventType() string  { return "interrupted" }
func (GoAwayEvent) liveEventType() string       { return "go_away" }
func (ClosedEvent) liveEventType() string       { return "closed" }
func (ErrorEvent) liveEventType() string        { return "error" }

// Config controls how a live session is established.
type Config struct {
	// APIKey authenticates the websocket handshake. Required.
	APIKey string
	// Model overrides the default native-audio model.
	Model string
	// Voice overrides the default prebuilt voice.
	Voice string
	// SystemInstruction sets the session persona. Defaults to the
	// consultation persona.
	SystemInstruction string
	// Endpoint overrides the vendor endpoint, e.g. for a local test server.
	Endpoint string
	// ConnectTimeout bounds dial plus setup acknowledgement.
	ConnectTimeout time.Duration
	// Dialer overrides the websocket dialer.
	Dialer *websocket.Dialer
	// Logger receives session diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Model == "" {
		out.Model = defaultModel
	}
	if out.Voice == "" {
		out.Voice = defaultVoice
	}
	if out.SystemInstruction == "" {
		out.SystemInstruction = core.LiveConsultantSystemInstruction
	}
	if out.Endpoint == "" {
		out.Endpoint = defaultEndpoint
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = defaultConnectTimeout
	}
	if out.Dialer == nil {
		out.Dialer = websocket.DefaultDialer
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Session is one live audio connection. Events are read from Events;
// microphone frames are pushed with SendAudio. Close is safe to call from any
// goroutine, any number of times.
type Session struct {
	conn   *websocket.Conn
	logger *slog.Logger

	events chan Event
	stop   chan struct{}
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// Connect dials the live channel, sends the setup frame and waits for the
// server acknowledgement. On success the returned session is live and its
// first event is OpenedEvent.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.APIKey == "" {
		return nil, core.NewInvalidRequestError("live session requires an API key")
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	endpoint := cfg.Endpoint + bidiPath + "?key=" + url.QueryEscape(cfg.APIKey)
	conn, _, err := cfg.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, core.NewConnectionError("live channel dial failed", err)
	}

	setup := ClientSetupFrame{Setup: ClientSetup{
		Model: "models/" + cfg.Model,
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &SpeechConfig{VoiceConfig: &VoiceConfig{
				PrebuiltVoiceConfig: &PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			}},
		},
		SystemInstruction: &Content{Parts: []Part{{Text: cfg.SystemInstruction}}},
	}}
	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		return nil, core.NewConnectionError("live setup write failed", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, core.NewConnectionError("live setup acknowledgement failed", err)
	}
	frame, err := DecodeServerFrame(raw)
	if err != nil {
		conn.Close()
		return nil, core.NewMalformedResponseError("unreadable setup acknowledgement", err)
	}
	if frame.SetupComplete == nil {
		conn.Close()
		return nil, core.NewMalformedResponseError(fmt.Sprintf("expected setup acknowledgement, got %s", raw), nil)
	}
	_ = conn.SetReadDeadline(time.Time{})

	s := &Session{
		conn:   conn,
		logger: cfg.Logger,
		events: make(chan Event, eventBufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.emit(OpenedEvent{})
	go s.readLoop()

	s.logger.Info("live session established", "model", cfg.Model, "voice", cfg.Voice)
	return s, nil
}

// Events returns the session's event stream. The channel is closed after the
// terminal event is delivered.
func (s *Session) Events() <-chan Event {
	return s.events
}

// SendAudio streams one frame of 16kHz mono s16le microphone audio.
func (s *Session) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	select {
	case <-s.stop:
		return core.NewConnectionError("live session is closed", nil)
	default:
	}

	frame := RealtimeInputFrame{RealtimeInput: RealtimeInput{
		MediaChunks: []InlineData{{
			MIMEType: CaptureMIMEType,
			Data:     audio.BytesToBase64(pcm),
		}},
	}}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(frame); err != nil {
		return core.NewConnectionError("live audio write failed", err)
	}
	return nil
}

// Close shuts the session down and waits for the event stream to drain.
// Safe to call repeatedly and concurrently.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

// Err reports the transport failure that ended the session, if any. Valid
// after the event stream has closed.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.stop:
	}
}

func (s *Session) readLoop() {
	defer func() {
		close(s.done)
		close(s.events)
	}()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stop:
				// Local close; the read error is expected.
				s.deliverTerminal(ClosedEvent{})
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.deliverTerminal(ClosedEvent{})
				return
			}
			werr := core.NewConnectionError("live channel read failed", err)
			s.setErr(werr)
			s.deliverTerminal(ErrorEvent{Err: werr})
			return
		}

		frame, err := DecodeServerFrame(raw)
		if err != nil {
			s.logger.Warn("dropping unreadable live frame", "error", err)
			continue
		}
		s.handleFrame(frame)
	}
}

func (s *Session) handleFrame(frame *ServerFrame) {
	switch {
	case frame.ServerContent != nil:
		sc := frame.ServerContent
		if sc.Interrupted {
			s.emit(InterruptedEvent{})
		}
		for _, chunk := range sc.AudioChunks() {
			pcm, err := audio.Base64ToBytes(chunk)
			if err != nil {
				// One bad chunk must not tear the session down.
				s.logger.Warn("dropping undecodable audio chunk", "error", err)
				continue
			}
			if len(pcm) > 0 {
				s.emit(AudioEvent{PCM: pcm})
			}
		}
		if sc.TurnComplete {
			s.emit(TurnCompleteEvent{})
		}
	case frame.GoAway != nil:
		s.emit(GoAwayEvent{TimeLeft: frame.GoAway.TimeLeft})
	case frame.SetupComplete != nil:
		// Duplicate acknowledgement; ignore.
	default:
		s.logger.Debug("ignoring unrecognized live frame")
	}
}

// deliverTerminal sends the final event without blocking shutdown. When the
// buffer is full the oldest queued events are discarded to make room: the
// session is over, and the terminal event must be the one thing a consumer
// is guaranteed to see before the channel closes.
func (s *Session) deliverTerminal(ev Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}
