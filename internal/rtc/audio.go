package rtc

import (
	"sync"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/Swooye/FiveNursings-sub000/internal/playback"
)

// sampleWriter is the subset of a WebRTC local track the writer needs.
type sampleWriter interface {
	WriteSample(s media.Sample) error
}

// VoiceWriter delivers assistant audio to the browser: it resamples model
// PCM to 48kHz mono, encodes Opus frames, and writes them paced to a WebRTC
// track. It implements playback.Sink so the session scheduler can drive it.
type VoiceWriter struct {
	enc          *opus.Encoder
	track        sampleWriter
	pcmBuf       []int16
	frameSamples int
	frames       chan []byte
	stopCh       chan struct{}
	stopped      bool
	mu           sync.Mutex
}

// NewVoiceWriter constructs a paced writer with 20ms frames at 48kHz mono.
func NewVoiceWriter(track sampleWriter) (*VoiceWriter, error) {
	enc, err := opus.NewEncoder(48000, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	w := &VoiceWriter{
		enc:          enc,
		track:        track,
		frameSamples: 960, // 20ms at 48kHz
		frames:       make(chan []byte, 512),
		stopCh:       make(chan struct{}),
	}
	go w.pacer()
	return w, nil
}

// Play resamples one scheduled source to 48kHz and queues it for encoding.
// Sources arrive in scheduler order, so frame order is playback order.
func (w *VoiceWriter) Play(src *playback.Source) {
	w.writePCM48k(resampleTo48k(src.Samples, src.SampleRate))
}

// StopAll silences the writer immediately for barge-in: queued frames and
// any partial encode buffer are discarded.
func (w *VoiceWriter) StopAll() {
	w.mu.Lock()
	for {
		select {
		case <-w.frames:
		default:
			w.pcmBuf = w.pcmBuf[:0]
			w.mu.Unlock()
			return
		}
	}
}

// writePCM48k buffers 48kHz mono samples and emits encoded Opus frames.
func (w *VoiceWriter) writePCM48k(samples []int16) {
	if len(samples) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pcmBuf = append(w.pcmBuf, samples...)

	opusBuf := make([]byte, 4000)
	for len(w.pcmBuf) >= w.frameSamples {
		frame := w.pcmBuf[:w.frameSamples]
		n, _ := w.enc.Encode(frame, opusBuf)
		if n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			w.pushFrame(pkt)
		}
		copy(w.pcmBuf, w.pcmBuf[w.frameSamples:])
		w.pcmBuf = w.pcmBuf[:len(w.pcmBuf)-w.frameSamples]
	}
}

// FlushTail pads the remaining PCM to a full frame and appends a short
// silence tail so the last words are not clipped.
func (w *VoiceWriter) FlushTail() {
	opusBuf := make([]byte, 4000)
	w.mu.Lock()
	if len(w.pcmBuf) > 0 {
		pad := make([]int16, w.frameSamples)
		copy(pad, w.pcmBuf)
		n, _ := w.enc.Encode(pad, opusBuf)
		if n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			w.pushFrame(pkt)
		}
		w.pcmBuf = w.pcmBuf[:0]
	}
	w.mu.Unlock()
	silence := make([]int16, w.frameSamples)
	for i := 0; i < 10; i++ {
		n, _ := w.enc.Encode(silence, opusBuf)
		if n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			w.pushFrame(pkt)
		}
	}
}

// Close stops the pacer.
func (w *VoiceWriter) Close() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
	w.mu.Unlock()
}

func (w *VoiceWriter) pacer() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-w.frames:
				_ = w.track.WriteSample(media.Sample{Data: frame, Duration: 20 * time.Millisecond})
			default:
			}
		}
	}
}

// pushFrame enqueues a frame, blocking until space is available or stopped.
func (w *VoiceWriter) pushFrame(pkt []byte) {
	for {
		select {
		case <-w.stopCh:
			return
		case w.frames <- pkt:
			return
		}
	}
}

// resampleTo48k converts mono PCM to 48kHz. The model emits 24kHz, an exact
// factor of two, so each sample is doubled; other rates fall back to
// nearest-neighbor.
func resampleTo48k(samples []int16, rate int) []int16 {
	switch rate {
	case 48000:
		return samples
	case 24000:
		out := make([]int16, len(samples)*2)
		for i, s := range samples {
			out[i*2] = s
			out[i*2+1] = s
		}
		return out
	default:
		if rate <= 0 || len(samples) == 0 {
			return nil
		}
		n := len(samples) * 48000 / rate
		out := make([]int16, n)
		for i := 0; i < n; i++ {
			out[i] = samples[i*rate/48000]
		}
		return out
	}
}

// newOutTrack creates the 48kHz mono Opus track sent to the browser.
func newOutTrack() (*webrtc.TrackLocalStaticSample, error) {
	return webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1},
		"assistant-audio", "assistant",
	)
}
