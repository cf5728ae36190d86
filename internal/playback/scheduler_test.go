package playback

import (
	"encoding/base64"
	"sync"
	"testing"
)

// fakeClock is a settable playback clock.
type fakeClock struct {
	mu  sync.Mutex
	now float64
}

func (c *fakeClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t float64) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakeSink struct {
	mu      sync.Mutex
	played  []*Source
	stopped int
}

func (f *fakeSink) Play(src *Source) {
	f.mu.Lock()
	f.played = append(f.played, src)
	f.mu.Unlock()
}

func (f *fakeSink) StopAll() {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
}

func pcmB64(samples int) string {
	return base64.StdEncoding.EncodeToString(make([]byte, samples*2))
}

func TestScheduler_GaplessOrdering(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	s := NewScheduler(clock, sink)

	// four buffers of varying duration arrive while the clock sits at 0:
	// each must start exactly where the previous one ends
	durationsSamples := []int{24000, 12000, 6000, 24000} // 1s, 0.5s, 0.25s, 1s at 24k
	var prev *Source
	for i, n := range durationsSamples {
		src, err := s.Schedule(pcmB64(n), 24000)
		if err != nil {
			t.Fatalf("schedule %d: %v", i, err)
		}
		if prev != nil {
			if src.Start != prev.End() {
				t.Fatalf("buffer %d: start %v != previous end %v", i, src.Start, prev.End())
			}
			if src.Start < prev.Start {
				t.Fatalf("buffer %d: non-monotonic start", i)
			}
		}
		prev = src
	}
	if got := s.NextStart(); got != prev.End() {
		t.Fatalf("nextStartTime %v != last end %v", got, prev.End())
	}
}

func TestScheduler_LateArrivalStartsNow(t *testing.T) {
	clock := &fakeClock{}
	s := NewScheduler(clock, &fakeSink{})

	first, _ := s.Schedule(pcmB64(24000), 24000) // 1s
	if first.Start != 0 {
		t.Fatalf("first buffer should start at 0, got %v", first.Start)
	}

	// clock overtakes the queue; the next buffer must start at "now", not stall
	clock.Set(2.5)
	second, _ := s.Schedule(pcmB64(24000), 24000)
	if second.Start != 2.5 {
		t.Fatalf("late buffer should start at 2.5, got %v", second.Start)
	}
}

func TestScheduler_InterruptClearsPendingAndResets(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	s := NewScheduler(clock, sink)

	for i := 0; i < 3; i++ {
		if _, err := s.Schedule(pcmB64(24000), 24000); err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}
	if s.Pending() != 3 {
		t.Fatalf("expected 3 pending, got %d", s.Pending())
	}

	s.Interrupt()
	if s.Pending() != 0 {
		t.Fatalf("expected empty pending set after interrupt, got %d", s.Pending())
	}
	if s.NextStart() != 0 {
		t.Fatalf("expected nextStartTime reset to 0, got %v", s.NextStart())
	}
	if sink.stopped != 1 {
		t.Fatalf("expected sink stop, got %d", sink.stopped)
	}

	// a buffer arriving after the reset schedules from the current clock,
	// never from the stale pre-interruption timeline
	clock.Set(5)
	src, _ := s.Schedule(pcmB64(12000), 24000)
	if src.Start != 5 {
		t.Fatalf("post-interrupt buffer should start at 5, got %v", src.Start)
	}
}

func TestScheduler_DecodeErrorsDropChunk(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	s := NewScheduler(clock, sink)

	if _, err := s.Schedule("not-base64!!", 24000); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := s.Schedule(base64.StdEncoding.EncodeToString([]byte{1}), 24000); err == nil {
		t.Fatalf("expected odd-length payload rejection")
	}
	if _, err := s.Schedule(pcmB64(100), 0); err == nil {
		t.Fatalf("expected invalid sample rate rejection")
	}
	// the timeline must be untouched by dropped chunks
	if s.NextStart() != 0 || len(sink.played) != 0 {
		t.Fatalf("dropped chunks must not advance the timeline")
	}
	if _, err := s.Schedule(pcmB64(2400), 24000); err != nil {
		t.Fatalf("scheduler must keep working after drops: %v", err)
	}
}

// raceSink records one event per sink call, noting whether a delivered
// source had already been discarded from the pending set. A discarded
// delivery is only acceptable when a StopAll follows it; otherwise stale
// audio would keep playing after a barge-in.
type raceSink struct {
	sched *Scheduler
	mu    sync.Mutex
	log   []raceEvent
}

type raceEvent struct {
	stop   bool
	orphan bool
}

func (f *raceSink) Play(src *Source) {
	f.sched.mu.Lock()
	member := false
	for _, p := range f.sched.pending {
		if p == src {
			member = true
			break
		}
	}
	f.sched.mu.Unlock()
	f.mu.Lock()
	f.log = append(f.log, raceEvent{orphan: !member})
	f.mu.Unlock()
}

func (f *raceSink) StopAll() {
	f.mu.Lock()
	f.log = append(f.log, raceEvent{stop: true})
	f.mu.Unlock()
}

func TestScheduler_InterruptSilencesRacingDelivery(t *testing.T) {
	clock := &fakeClock{}
	sink := &raceSink{}
	s := NewScheduler(clock, sink)
	sink.sched = s

	const iterations = 2000
	samples := make([]int16, 240)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			s.scheduleSamples(samples, 24000)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			s.Interrupt()
		}
	}()
	wg.Wait()

	// every delivery of an already-discarded source must be followed by a
	// StopAll, so the interrupt that discarded it still wins
	unsilenced := 0
	for _, ev := range sink.log {
		if ev.stop {
			unsilenced = 0
		} else if ev.orphan {
			unsilenced++
		}
	}
	if unsilenced != 0 {
		t.Fatalf("%d sources played after their barge-in already stopped playback", unsilenced)
	}
}

func TestScheduler_PendingPrunesFinishedSources(t *testing.T) {
	clock := &fakeClock{}
	s := NewScheduler(clock, &fakeSink{})
	s.Schedule(pcmB64(24000), 24000) // plays over [0, 1)
	s.Schedule(pcmB64(24000), 24000) // plays over [1, 2)
	clock.Set(1.5)
	if got := s.Pending(); got != 1 {
		t.Fatalf("expected 1 live source at t=1.5, got %d", got)
	}
}
