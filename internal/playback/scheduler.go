package playback

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"
)

// Clock provides the playback timeline in seconds. It must be monotonic.
type Clock interface {
	Now() float64
}

// Sink begins audible delivery of a scheduled source. StopAll must silence
// everything immediately, including sources already handed to Play.
type Sink interface {
	Play(src *Source)
	StopAll()
}

// Source is one scheduled unit of outbound audio.
type Source struct {
	Samples    []int16
	SampleRate int
	// Start is the offset on the playback clock at which this source begins.
	Start float64
}

// Duration returns the source length in seconds.
func (s *Source) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// End returns Start + Duration.
func (s *Source) End() float64 { return s.Start + s.Duration() }

// Scheduler queues incoming audio buffers for gapless sequential playback.
//
// It keeps a monotonically advancing nextStartTime: each buffer starts at
// max(nextStartTime, now), so back-to-back buffers play with no gap and no
// overlap, and a buffer arriving after the clock has caught up starts
// immediately instead of stalling. Interrupt stops and discards every
// pending source atomically and resets the timeline to zero.
type Scheduler struct {
	mu      sync.Mutex
	clock   Clock
	sink    Sink
	next    float64
	pending []*Source
	// gen counts interruptions; a source scheduled under an older gen is
	// never handed to the sink.
	gen uint64
	// deliverMu serializes sink.Play with sink.StopAll so an interrupt
	// issued mid-delivery still silences the source it raced with.
	deliverMu sync.Mutex
}

// NewScheduler creates a Scheduler over the given clock and sink.
func NewScheduler(clock Clock, sink Sink) *Scheduler {
	return &Scheduler{clock: clock, sink: sink}
}

// Schedule decodes a base64 PCM16LE payload and queues it. A decode failure
// drops the chunk and leaves the timeline untouched; audio is lossy-tolerant
// so a single bad chunk never ends the session.
func (s *Scheduler) Schedule(data string, sampleRate int) (*Source, error) {
	samples, err := decodePCM16(data)
	if err != nil {
		log.Printf("playback: dropping undecodable chunk: %v", err)
		return nil, err
	}
	if sampleRate <= 0 {
		log.Printf("playback: dropping chunk with invalid sample rate %d", sampleRate)
		return nil, fmt.Errorf("playback: invalid sample rate %d", sampleRate)
	}
	return s.scheduleSamples(samples, sampleRate), nil
}

func (s *Scheduler) scheduleSamples(samples []int16, sampleRate int) *Source {
	s.mu.Lock()
	now := s.clock.Now()
	start := s.next
	if now > start {
		start = now
	}
	src := &Source{Samples: samples, SampleRate: sampleRate, Start: start}
	s.next = src.End()
	s.prune(now)
	s.pending = append(s.pending, src)
	gen := s.gen
	sink := s.sink
	s.mu.Unlock()

	if sink == nil {
		return src
	}
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.mu.Lock()
	live := gen == s.gen
	s.mu.Unlock()
	// An interrupt between the scheduling section and here already
	// discarded src; delivering it would resume stale audio after the
	// barge-in. An interrupt arriving after this check waits on deliverMu
	// and its StopAll runs once Play returns.
	if live {
		sink.Play(src)
	}
	return src
}

// prune drops sources that have finished playing. Caller holds s.mu.
func (s *Scheduler) prune(now float64) {
	kept := s.pending[:0]
	for _, src := range s.pending {
		if src.End() > now {
			kept = append(kept, src)
		}
	}
	s.pending = kept
}

// Interrupt stops every scheduled source, clears the pending set, and
// resets the timeline so the next chunk starts at "now". The reset and the
// discard happen under one lock so a chunk arriving concurrently can never
// schedule against the stale pre-interruption time.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	s.pending = nil
	s.next = 0
	s.gen++
	sink := s.sink
	s.mu.Unlock()

	if sink == nil {
		return
	}
	s.deliverMu.Lock()
	sink.StopAll()
	s.deliverMu.Unlock()
}

// Pending reports how many sources are queued or playing.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(s.clock.Now())
	return len(s.pending)
}

// NextStart exposes the current nextStartTime for observability.
func (s *Scheduler) NextStart() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func decodePCM16(data string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("playback: base64: %w", err)
	}
	if len(raw) == 0 || len(raw)%2 != 0 {
		return nil, fmt.Errorf("playback: bad pcm16 payload length %d", len(raw))
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
	}
	return samples, nil
}

// WallClock is the production Clock: seconds elapsed since construction.
type WallClock struct {
	epoch time.Time
}

// NewWallClock starts a playback timeline at zero.
func NewWallClock() *WallClock { return &WallClock{epoch: time.Now()} }

// Now returns seconds since the clock was created.
func (w *WallClock) Now() float64 { return time.Since(w.epoch).Seconds() }
