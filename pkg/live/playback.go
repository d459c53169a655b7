package live

import (
	"sync"
	"time"

	"github.com/ahouse2/financial-legal-analysis/pkg/audio"
	"github.com/ahouse2/financial-legal-analysis/pkg/core"
)

// Clock abstracts wall time and timers so playback scheduling is
// deterministic under test.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{time.AfterFunc(d, fn)}
}

type realTimer struct{ t *time.Timer }

func (t realTimer) Stop() bool { return t.t.Stop() }

// RealClock returns the wall-clock implementation used in production.
func RealClock() Clock { return realClock{} }

// Sink consumes scheduled PCM. Write is called once per chunk at its start
// time; Flush discards anything buffered but not yet audible.
type Sink interface {
	Write(pcm []byte) error
	Flush()
}

type playbackUnit struct {
	start Timer
	done  Timer
}

// Scheduler queues model speech chunks back to back. Each chunk starts at the
// later of the playback cursor and now, and the cursor advances by the chunk
// duration, so chunks never overlap and gaps only appear when the stream
// stalls. StopAll halts everything in flight and rewinds the cursor.
type Scheduler struct {
	clock        Clock
	sink         Sink
	sampleRateHz int
	channels     int

	mu     sync.Mutex
	cursor time.Time
	units  map[*playbackUnit]struct{}
}

// NewScheduler builds a scheduler for 24kHz mono model speech. A nil clock
// selects the wall clock.
func NewScheduler(sink Sink, clock Clock) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}
	return &Scheduler{
		clock:        clock,
		sink:         sink,
		sampleRateHz: audio.PlaybackSampleRateHz,
		channels:     audio.Channels,
		units:        make(map[*playbackUnit]struct{}),
	}
}

// Schedule queues one PCM chunk and returns its start time. Empty chunks are
// ignored.
func (s *Scheduler) Schedule(pcm []byte) (time.Time, error) {
	dur := audio.PCMDuration(len(pcm), s.sampleRateHz, s.channels)
	if dur <= 0 {
		return time.Time{}, nil
	}
	if len(pcm)%audio.BytesPerSample != 0 {
		return time.Time{}, core.NewDecodeError("pcm chunk is not sample aligned")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	start := s.cursor
	if start.Before(now) {
		start = now
	}
	s.cursor = start.Add(dur)

	unit := &playbackUnit{}
	s.units[unit] = struct{}{}
	unit.start = s.clock.AfterFunc(start.Sub(now), func() {
		s.play(unit, pcm, dur)
	})
	return start, nil
}

func (s *Scheduler) play(unit *playbackUnit, pcm []byte, dur time.Duration) {
	s.mu.Lock()
	if _, live := s.units[unit]; !live {
		s.mu.Unlock()
		return
	}
	unit.done = s.clock.AfterFunc(dur, func() {
		s.mu.Lock()
		delete(s.units, unit)
		s.mu.Unlock()
	})
	s.mu.Unlock()

	_ = s.sink.Write(pcm)
}

// Pending reports how many chunks are scheduled or playing.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.units)
}

// StopAll cancels every scheduled and in-flight chunk, flushes the sink and
// rewinds the cursor so the next session starts fresh. Idempotent.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for unit := range s.units {
		if unit.start != nil {
			unit.start.Stop()
		}
		if unit.done != nil {
			unit.done.Stop()
		}
		delete(s.units, unit)
	}
	s.cursor = time.Time{}
	s.mu.Unlock()

	s.sink.Flush()
}
