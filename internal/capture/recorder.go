package capture

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sync"
)

const (
	// SampleRate is the capture rate expected by the streaming backend.
	SampleRate = 16000
	// ChunkSamples is the fixed chunk cadence (~256ms at 16kHz).
	ChunkSamples = 4096
	// MimeType is the wire format tag on every outbound chunk.
	MimeType = "audio/pcm;rate=16000"
)

// Chunk is one wire-ready slice of captured audio: base64 PCM16LE plus its
// mime type.
type Chunk struct {
	MimeType string
	Data     string
}

// Source delivers platform-native float frames from a capture device.
// Start returns an error when the device is unavailable or permission is
// denied; the caller must treat that as terminal for the session.
type Source interface {
	Start(onFrame func(samples []float32)) error
	Stop() error
}

// Recorder quantizes incoming samples to 16-bit PCM and frames them into
// fixed-size chunks, emitting each chunk as soon as it fills. It holds no
// audio beyond the current partial chunk.
type Recorder struct {
	mu      sync.Mutex
	buf     []int16
	src     Source
	started bool
	emit    func(Chunk)
}

// NewRecorder creates a Recorder that calls emit once per filled chunk.
func NewRecorder(emit func(Chunk)) *Recorder {
	return &Recorder{
		buf:  make([]int16, 0, ChunkSamples),
		emit: emit,
	}
}

// Start begins capture from the source. It fails without retry when the
// source cannot start.
func (r *Recorder) Start(src Source) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("capture: already started")
	}
	r.started = true
	r.src = src
	r.mu.Unlock()

	if err := src.Start(r.PushFloat32); err != nil {
		r.mu.Lock()
		r.started = false
		r.src = nil
		r.mu.Unlock()
		return fmt.Errorf("capture: start: %w", err)
	}
	return nil
}

// Stop halts the source and discards any partial chunk.
func (r *Recorder) Stop() {
	r.mu.Lock()
	src := r.src
	r.started = false
	r.src = nil
	r.buf = r.buf[:0]
	r.mu.Unlock()
	if src != nil {
		_ = src.Stop()
	}
}

// PushFloat32 quantizes float samples in [-1, 1] to int16 and frames them.
// Out-of-range samples are clamped to full scale.
func (r *Recorder) PushFloat32(samples []float32) {
	if len(samples) == 0 {
		return
	}
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		v := int32(s * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		pcm[i] = int16(v)
	}
	r.PushPCM16(pcm)
}

// PushPCM16 frames already-quantized samples into outbound chunks.
func (r *Recorder) PushPCM16(samples []int16) {
	var full [][]int16
	r.mu.Lock()
	r.buf = append(r.buf, samples...)
	for len(r.buf) >= ChunkSamples {
		chunk := make([]int16, ChunkSamples)
		copy(chunk, r.buf[:ChunkSamples])
		full = append(full, chunk)
		copy(r.buf, r.buf[ChunkSamples:])
		r.buf = r.buf[:len(r.buf)-ChunkSamples]
	}
	emit := r.emit
	r.mu.Unlock()

	if emit == nil {
		return
	}
	for _, chunk := range full {
		emit(encodeChunk(chunk))
	}
}

// encodeChunk serializes samples as little-endian bytes and base64.
func encodeChunk(samples []int16) Chunk {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:(i+1)*2], uint16(s))
	}
	return Chunk{
		MimeType: MimeType,
		Data:     base64.StdEncoding.EncodeToString(raw),
	}
}
