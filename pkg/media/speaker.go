package media

import (
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/ahouse2/financial-legal-analysis/pkg/audio"
	"github.com/ahouse2/financial-legal-analysis/pkg/core"
)

// Speaker plays 24kHz mono s16le audio through the default output device.
// It satisfies the playback scheduler's sink. Write appends to an internal
// buffer that an oto player drains; Flush drops everything queued so
// playback stops at once.
type Speaker struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	player  *oto.Player
	playing bool
	closed  bool
}

// OpenSpeaker initializes the output device and waits for it to become
// ready.
func OpenSpeaker() (*Speaker, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   audio.PlaybackSampleRateHz,
		ChannelCount: audio.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, core.NewPermissionDeniedError("speaker unavailable", err)
	}
	<-ready

	s := &Speaker{otoCtx: otoCtx, buf: make([]byte, 0, audio.PlaybackSampleRateHz*audio.BytesPerSample)}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Write queues PCM for playback, starting the player lazily on first data.
func (s *Speaker) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return core.NewConnectionError("speaker is closed", nil)
	}
	s.buf = append(s.buf, pcm...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(readerFunc(s.pull))
		s.player.Play()
	}
	s.cond.Signal()
	return nil
}

// pull feeds the oto player. It blocks until audio is queued, and emits
// silence once the speaker is closed so oto can drain cleanly.
func (s *Speaker) pull(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Flush discards queued audio and tears the current player down so stale
// speech never overlaps what comes next.
func (s *Speaker) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	player := s.player
	s.player = nil
	s.playing = false
	s.mu.Unlock()
	s.cond.Broadcast()

	if player != nil {
		player.Pause()
		player.Reset()
		player.Close()
	}
}

// Close releases the output device. Idempotent.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	player := s.player
	s.player = nil
	s.mu.Unlock()
	s.cond.Broadcast()

	if player != nil {
		player.Close()
	}
	return nil
}

// readerFunc adapts a pull function to io.Reader for oto.
type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
