package rtc

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v3/pkg/media"
)

type fakeTrack struct{ writes int32 }

func (f *fakeTrack) WriteSample(s media.Sample) error {
	atomic.AddInt32(&f.writes, 1)
	return nil
}

func TestVoiceWriter_PacerWritesFrames(t *testing.T) {
	ft := &fakeTrack{}
	w := &VoiceWriter{
		enc:          nil, // encoder not needed for this test
		track:        ft,
		frameSamples: 960,
		frames:       make(chan []byte, 8),
		stopCh:       make(chan struct{}),
	}
	// Start pacer
	done := make(chan struct{})
	go func() { w.pacer(); close(done) }()

	// Push a few frames into the queue
	for i := 0; i < 3; i++ {
		w.pushFrame([]byte{0x01, 0x02})
	}

	// Allow pacer to tick and drain
	time.Sleep(50 * time.Millisecond)
	close(w.stopCh)
	<-done

	if atomic.LoadInt32(&ft.writes) == 0 {
		t.Fatalf("expected pacer to write at least one frame")
	}
}

func TestVoiceWriter_StopAllDrains(t *testing.T) {
	ft := &fakeTrack{}
	w := &VoiceWriter{
		enc:          nil,
		track:        ft,
		frameSamples: 960,
		frames:       make(chan []byte, 8),
		stopCh:       make(chan struct{}),
		pcmBuf:       []int16{1, 2, 3},
	}
	// Seed frames channel
	w.frames <- []byte{0x01}
	w.frames <- []byte{0x02}
	w.StopAll()
	select {
	case <-w.frames:
		t.Fatalf("expected frames channel to be drained")
	default:
	}
	if len(w.pcmBuf) != 0 {
		t.Fatalf("expected pcmBuf to be cleared, got len=%d", len(w.pcmBuf))
	}
}

func TestResampleTo48k(t *testing.T) {
	in := []int16{1, 2, 3}

	got := resampleTo48k(in, 24000)
	want := []int16{1, 1, 2, 2, 3, 3}
	if len(got) != len(want) {
		t.Fatalf("24k doubling: got len=%d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("24k doubling at %d: got %d want %d", i, got[i], want[i])
		}
	}

	same := resampleTo48k(in, 48000)
	if len(same) != len(in) || same[0] != in[0] {
		t.Fatalf("48k input should pass through unchanged")
	}

	if out := resampleTo48k(in, 0); out != nil {
		t.Fatalf("non-positive rate should yield nil, got len=%d", len(out))
	}
}
