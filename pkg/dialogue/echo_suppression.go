package dialogue

import (
	"bytes"
	"math"
	"sync"
	"time"
)

// EchoSuppressor detects microphone input that is actually the agent's own
// speech leaking back in through a speaker, using correlation against a
// rolling buffer of recently-egressed audio. It is an optional pre-VAD
// filter: the remote VAD contract (§4.3-style protocol) assumes a clean
// signal, so this stays disabled unless a deployment's client plays agent
// audio through a speaker the same microphone can pick up.
type EchoSuppressor struct {
	mu            sync.Mutex
	played        *bytes.Buffer
	maxBufSize    int
	threshold     float64
	silenceWindow time.Duration
	lastPlayed    time.Time
	enabled       bool
}

// NewEchoSuppressor returns a suppressor in its disabled (opt-in) state.
func NewEchoSuppressor() *EchoSuppressor {
	return &EchoSuppressor{
		played:        new(bytes.Buffer),
		maxBufSize:    64000, // ~2s at 16kHz mono PCM16
		threshold:     0.55,
		silenceWindow: 1200 * time.Millisecond,
	}
}

// SetEnabled toggles the suppressor; sessions wire this from config.
func (es *EchoSuppressor) SetEnabled(enabled bool) {
	es.mu.Lock()
	es.enabled = enabled
	es.mu.Unlock()
}

// RecordPlayed records audio that was just sent to the client as egress, so
// it can later be recognized as echo on the ingress path.
func (es *EchoSuppressor) RecordPlayed(chunk []byte) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if !es.enabled || len(chunk) == 0 {
		return
	}
	es.played.Write(chunk)
	es.lastPlayed = time.Now()
	if es.played.Len() > es.maxBufSize {
		data := es.played.Bytes()
		trimmed := data[len(data)-es.maxBufSize:]
		es.played.Reset()
		es.played.Write(trimmed)
	}
}

// IsEcho reports whether inputChunk correlates highly enough with recently
// played audio to be treated as echo rather than genuine user speech.
func (es *EchoSuppressor) IsEcho(inputChunk []byte) bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	if !es.enabled || len(inputChunk) == 0 {
		return false
	}
	if time.Since(es.lastPlayed) > es.silenceWindow {
		return false
	}
	ref := es.played.Bytes()
	if len(ref) == 0 {
		return false
	}
	return correlate(inputChunk, ref) > es.threshold
}

// Clear drops the played-audio buffer, e.g. on barge-in.
func (es *EchoSuppressor) Clear() {
	es.mu.Lock()
	es.played.Reset()
	es.mu.Unlock()
}

func correlate(input, reference []byte) float64 {
	in := pcm16ToFloat(input)
	ref := pcm16ToFloat(reference)
	if len(in) == 0 || len(ref) == 0 {
		return 0
	}

	n := len(in)
	if n > len(ref) {
		n = len(ref)
	}
	refTail := ref[len(ref)-n:]
	inHead := in[:n]

	inEnergy := energy(inHead)
	refEnergy := energy(refTail)
	if inEnergy == 0 || refEnergy == 0 {
		return 0
	}

	var dot float64
	for i := range inHead {
		dot += inHead[i] * refTail[i]
	}

	norm := math.Sqrt(inEnergy * refEnergy)
	if norm == 0 {
		return 0
	}
	corr := dot / norm
	if corr < 0 {
		return 0
	}
	if corr > 1 {
		return 1
	}
	return corr
}

func pcm16ToFloat(data []byte) []float64 {
	out := make([]float64, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(uint16(data[i]) | uint16(data[i+1])<<8)
		out = append(out, float64(sample)/32768.0)
	}
	return out
}

func energy(samples []float64) float64 {
	var e float64
	for _, s := range samples {
		e += s * s
	}
	return e
}
