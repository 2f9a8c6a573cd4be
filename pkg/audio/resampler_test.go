package audio

import "testing"

func TestResamplerSameRatePassthroughLength(t *testing.T) {
	r := NewResampler(16000, 16000, 1, 100)
	chunk := make([]byte, 3200) // 100ms @ 16kHz mono PCM16
	out := r.Push(chunk)
	if len(out) != len(chunk) {
		t.Fatalf("expected passthrough length %d, got %d", len(chunk), len(out))
	}
}

func TestResamplerBuffersPartialBlocks(t *testing.T) {
	r := NewResampler(16000, 16000, 1, 100)
	half := make([]byte, 1600)
	if out := r.Push(half); out != nil {
		t.Fatalf("expected nil output for partial block, got %d bytes", len(out))
	}
	out := r.Push(half)
	if len(out) != 3200 {
		t.Fatalf("expected 3200 bytes after completing block, got %d", len(out))
	}
}

func TestResamplerFlushEmitsRemainder(t *testing.T) {
	r := NewResampler(16000, 16000, 1, 100)
	r.Push(make([]byte, 1000))
	out := r.Flush()
	if len(out) != 1000 {
		t.Fatalf("expected flush to emit remainder, got %d bytes", len(out))
	}
}

func TestResamplerDownsamplesMultiChannel(t *testing.T) {
	r := NewResampler(16000, 8000, 2, 100)
	frames := 1600 // 100ms @ 16kHz
	chunk := make([]byte, frames*2*2)
	for i := 0; i < frames; i++ {
		v := int16(1000)
		off := i * 4
		chunk[off] = byte(v)
		chunk[off+1] = byte(v >> 8)
		chunk[off+2] = byte(v)
		chunk[off+3] = byte(v >> 8)
	}
	out := r.Push(chunk)
	if len(out) == 0 {
		t.Fatal("expected non-empty resampled output")
	}
	expectedFrames := frames / 2
	gotFrames := len(out) / 2
	if gotFrames < expectedFrames-2 || gotFrames > expectedFrames+2 {
		t.Fatalf("expected ~%d output frames, got %d", expectedFrames, gotFrames)
	}
}

func TestResamplerClipsOverflow(t *testing.T) {
	out := floatToPCM16([]float64{2.0, -2.0, 0.5})
	if int16(uint16(out[0])|uint16(out[1])<<8) != 32767 {
		t.Errorf("expected clip to max int16")
	}
	got := int16(uint16(out[2]) | uint16(out[3])<<8)
	if got != -32767 {
		t.Errorf("expected clip to -32767, got %d", got)
	}
}
