package capture

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"
)

func TestRecorder_EmitsFixedSizeChunks(t *testing.T) {
	var chunks []Chunk
	r := NewRecorder(func(c Chunk) { chunks = append(chunks, c) })

	// 1.5 chunks worth of samples: exactly one chunk should be emitted
	r.PushPCM16(make([]int16, ChunkSamples+ChunkSamples/2))
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	raw, err := base64.StdEncoding.DecodeString(chunks[0].Data)
	if err != nil {
		t.Fatalf("chunk not base64: %v", err)
	}
	if len(raw) != ChunkSamples*2 {
		t.Fatalf("expected %d bytes, got %d", ChunkSamples*2, len(raw))
	}
	if chunks[0].MimeType != MimeType {
		t.Fatalf("unexpected mime type %q", chunks[0].MimeType)
	}

	// the remaining half chunk fills on the next push
	r.PushPCM16(make([]int16, ChunkSamples/2))
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks after second push, got %d", len(chunks))
	}
}

func TestRecorder_QuantizationClampsAndScales(t *testing.T) {
	var chunk Chunk
	r := NewRecorder(func(c Chunk) { chunk = c })

	samples := make([]float32, ChunkSamples)
	samples[0] = 0.5
	samples[1] = 1.5  // above full scale
	samples[2] = -2.0 // below full scale
	samples[3] = -1.0
	r.PushFloat32(samples)

	raw, _ := base64.StdEncoding.DecodeString(chunk.Data)
	got := func(i int) int16 { return int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2])) }
	if got(0) != 16384 {
		t.Fatalf("0.5 should scale to 16384, got %d", got(0))
	}
	if got(1) != 32767 {
		t.Fatalf("over-range should clamp to 32767, got %d", got(1))
	}
	if got(2) != -32768 {
		t.Fatalf("under-range should clamp to -32768, got %d", got(2))
	}
	if got(3) != -32768 {
		t.Fatalf("-1.0 maps to -32768, got %d", got(3))
	}
}

func TestRecorder_ChunksArriveInCaptureOrder(t *testing.T) {
	var firstSamples []int16
	n := 0
	r := NewRecorder(func(c Chunk) {
		n++
		if n == 1 {
			raw, _ := base64.StdEncoding.DecodeString(c.Data)
			firstSamples = make([]int16, len(raw)/2)
			for i := range firstSamples {
				firstSamples[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
			}
		}
	})
	ramp := make([]int16, ChunkSamples*2)
	for i := range ramp {
		ramp[i] = int16(i)
	}
	r.PushPCM16(ramp)
	if n != 2 {
		t.Fatalf("expected 2 chunks, got %d", n)
	}
	for i, s := range firstSamples {
		if s != int16(i) {
			t.Fatalf("sample %d out of order: got %d", i, s)
		}
	}
}

type failingSource struct{}

func (failingSource) Start(func([]float32)) error { return errors.New("mic permission denied") }
func (failingSource) Stop() error                 { return nil }

func TestRecorder_StartFailureIsTerminal(t *testing.T) {
	r := NewRecorder(nil)
	if err := r.Start(failingSource{}); err == nil {
		t.Fatalf("expected start error")
	}
	// a failed start must leave the recorder restartable
	r.Stop()
	stub := &stubSource{}
	if err := r.Start(stub); err != nil {
		t.Fatalf("restart after failure: %v", err)
	}
}

type stubSource struct{ stopped bool }

func (s *stubSource) Start(func([]float32)) error { return nil }
func (s *stubSource) Stop() error                 { s.stopped = true; return nil }

func TestRecorder_StopDiscardsPartialChunk(t *testing.T) {
	emitted := 0
	r := NewRecorder(func(Chunk) { emitted++ })
	src := &stubSource{}
	if err := r.Start(src); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.PushPCM16(make([]int16, ChunkSamples/2))
	r.Stop()
	if !src.stopped {
		t.Fatalf("expected source stopped")
	}
	if emitted != 0 {
		t.Fatalf("partial chunk must not be emitted, got %d", emitted)
	}
}
