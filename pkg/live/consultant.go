package live

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/ahouse2/financial-legal-analysis/pkg/audio"
	"github.com/ahouse2/financial-legal-analysis/pkg/core"
)

// State is the consultant lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Source is a started capture device producing 16kHz mono s16le audio.
// Read blocks until data is available; it returns io.EOF after Close.
type Source interface {
	Read(p []byte) (int, error)
	Close() error
}

// Stream is the transport surface the consultant drives. *Session
// satisfies it; tests substitute fakes.
type Stream interface {
	Events() <-chan Event
	SendAudio(pcm []byte) error
	Close() error
	Err() error
}

// Dialer establishes the live transport for one session.
type Dialer func(ctx context.Context) (Stream, error)

// SourceOpener acquires the capture device for one session. It returns a
// permission_denied error when the device is refused or unavailable.
type SourceOpener func() (Source, error)

// captureFrameBytes is 20ms of 16kHz mono s16le, the outbound frame size.
const captureFrameBytes = audio.CaptureSampleRateHz / 50 * audio.BytesPerSample

// ConsultantConfig wires a Consultant's collaborators.
type ConsultantConfig struct {
	Dial    Dialer
	OpenMic SourceOpener
	Sink    Sink
	// Clock is used for playback scheduling; nil selects the wall clock.
	Clock Clock
	// FrameBytes overrides the outbound frame size. Defaults to 20ms.
	FrameBytes int
	Logger     *slog.Logger
}

type activeSession struct {
	stream Stream
	mic    Source
	sched  *Scheduler
	done   chan struct{}
}

// Consultant manages a voice consultation: it opens the microphone, dials
// the live transport, pumps captured frames out and schedules returned
// speech, and tears everything down on Stop. Start after Start replaces the
// previous session; Stop is idempotent.
type Consultant struct {
	cfg    ConsultantConfig
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	starting bool
	sess     *activeSession

	errCh chan error

	levelMu sync.Mutex
	peak    int
	rms     float64
}

// NewConsultant validates the wiring and returns an idle consultant.
func NewConsultant(cfg ConsultantConfig) (*Consultant, error) {
	if cfg.Dial == nil || cfg.OpenMic == nil || cfg.Sink == nil {
		return nil, core.NewInvalidRequestError("consultant requires a dialer, a microphone opener and a sink")
	}
	if cfg.FrameBytes <= 0 {
		cfg.FrameBytes = captureFrameBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Consultant{
		cfg:    cfg,
		logger: cfg.Logger,
		state:  StateIdle,
		errCh:  make(chan error, 1),
	}, nil
}

// State reports the current lifecycle phase.
func (c *Consultant) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ErrCh delivers asynchronous session failures. The channel holds at most
// one error; later failures while it is full are logged and dropped.
func (c *Consultant) ErrCh() <-chan error {
	return c.errCh
}

// Level returns the peak and RMS of the most recent captured frame.
func (c *Consultant) Level() (peak int, rms float64) {
	c.levelMu.Lock()
	defer c.levelMu.Unlock()
	return c.peak, c.rms
}

// Start opens the microphone, dials the transport and begins streaming.
// Any previous session is fully torn down first. A microphone refusal is
// reported as permission_denied, a dial failure as connection_error; in both
// cases the consultant returns to idle.
func (c *Consultant) Start(ctx context.Context) error {
	c.Stop()

	c.mu.Lock()
	if c.sess != nil || c.starting {
		c.mu.Unlock()
		return core.NewInvalidRequestError("consultant already starting")
	}
	c.starting = true
	c.state = StateConnecting
	c.mu.Unlock()

	mic, err := c.cfg.OpenMic()
	if err != nil {
		c.setIdle()
		if core.IsType(err, core.ErrPermissionDenied) {
			return err
		}
		return core.NewPermissionDeniedError("microphone unavailable", err)
	}

	stream, err := c.cfg.Dial(ctx)
	if err != nil {
		_ = mic.Close()
		c.setIdle()
		if core.IsType(err, core.ErrConnection) {
			return err
		}
		return core.NewConnectionError("live transport dial failed", err)
	}

	sess := &activeSession{
		stream: stream,
		mic:    mic,
		sched:  NewScheduler(c.cfg.Sink, c.cfg.Clock),
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	c.sess = sess
	c.starting = false
	c.state = StateConnected
	c.mu.Unlock()

	go c.captureLoop(sess)
	go c.receiveLoop(sess)

	c.logger.Info("consultation started")
	return nil
}

// Stop tears down the current session: capture stops, the transport closes,
// queued playback is cancelled and the cursor rewinds. Safe to call when
// already idle.
func (c *Consultant) Stop() {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.state = StateIdle
	c.mu.Unlock()

	if sess == nil {
		return
	}

	_ = sess.mic.Close()
	_ = sess.stream.Close()
	// The receive pump must drain before playback is cancelled; otherwise a
	// buffered chunk could be scheduled onto a fresh cursor after StopAll
	// and play back after Stop has returned.
	<-sess.done
	sess.sched.StopAll()

	c.levelMu.Lock()
	c.peak, c.rms = 0, 0
	c.levelMu.Unlock()

	c.logger.Info("consultation stopped")
}

func (c *Consultant) setIdle() {
	c.mu.Lock()
	c.starting = false
	c.state = StateIdle
	c.mu.Unlock()
}

// current reports whether sess is still the active session.
func (c *Consultant) current(sess *activeSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess == sess
}

func (c *Consultant) fail(sess *activeSession, err error) {
	if !c.current(sess) {
		return
	}
	select {
	case c.errCh <- err:
	default:
		c.logger.Warn("dropping session error, channel full", "error", err)
	}
	go c.Stop()
}

func (c *Consultant) captureLoop(sess *activeSession) {
	buf := make([]byte, 0, c.cfg.FrameBytes*2)
	tmp := make([]byte, c.cfg.FrameBytes)

	for {
		n, err := sess.mic.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		for len(buf) >= c.cfg.FrameBytes {
			frame := make([]byte, c.cfg.FrameBytes)
			copy(frame, buf)
			buf = buf[c.cfg.FrameBytes:]

			peak, rms := audio.Level(frame)
			c.levelMu.Lock()
			c.peak, c.rms = peak, rms
			c.levelMu.Unlock()

			if serr := sess.stream.SendAudio(frame); serr != nil {
				c.fail(sess, serr)
				return
			}
		}
		if err != nil {
			if err != io.EOF && c.current(sess) {
				c.fail(sess, core.NewConnectionError("microphone read failed", err))
			}
			return
		}
	}
}

func (c *Consultant) receiveLoop(sess *activeSession) {
	defer close(sess.done)

	for ev := range sess.stream.Events() {
		switch ev := ev.(type) {
		case OpenedEvent:
			c.logger.Debug("live channel open")
		case AudioEvent:
			if !c.current(sess) {
				continue
			}
			if _, err := sess.sched.Schedule(ev.PCM); err != nil {
				c.logger.Warn("dropping unplayable chunk", "error", err)
			}
		case TurnCompleteEvent:
			c.logger.Debug("model turn complete")
		case InterruptedEvent:
			// The model was cut off; drop queued speech so the reply to
			// the interruption is not stuck behind stale audio.
			sess.sched.StopAll()
		case GoAwayEvent:
			c.logger.Warn("server close warning", "time_left", ev.TimeLeft)
		case ClosedEvent:
			if c.current(sess) {
				go c.Stop()
			}
		case ErrorEvent:
			c.fail(sess, ev.Err)
		}
	}
}
