package transport

import (
	"context"
	"sync"
	"time"

	"github.com/duplexvoice/agentcore/pkg/audio"
)

// Ms2Bytes converts a duration in milliseconds to a PCM16 byte count at
// the given sample rate and channel count. This is the only correct
// direction of the conversion; do not swap it with Bytes2Ms.
func Ms2Bytes(ms, sampleRate, channels int) int {
	return ms * sampleRate / 1000 * 2 * channels
}

// Bytes2Ms is the inverse of Ms2Bytes.
func Bytes2Ms(n, sampleRate, channels int) int {
	return n * 1000 / (sampleRate * 2 * channels)
}

// PacedEgress wraps a WSAudioChannel, smoothing bursty TTS writes into
// fixed-size chunks emitted on a wall-clock ticker. clear() makes
// barge-in a cheap, atomic operation: it drops whatever agent audio has
// been produced but not yet sent, without touching the websocket.
type PacedEgress struct {
	*WSAudioChannel

	chunkMS    int
	chunkBytes int
	sampleRate int
	channels   int

	mu      sync.Mutex
	queue   *audio.ByteQueue
	flushed bool

	onFlush func()

	stop chan struct{}
	done chan struct{}
}

// NewPacedEgress builds a paced channel emitting chunkMS-long frames of
// dstSampleRate/dstChannels audio. onFlush is invoked exactly once each
// time the queue drains after Flush() was called, from the ticker
// goroutine.
func NewPacedEgress(readResamp *audio.Resampler, chunkMS, dstSampleRate, dstChannels int, onFlush func()) *PacedEgress {
	return &PacedEgress{
		WSAudioChannel: NewWSAudioChannel(readResamp),
		chunkMS:        chunkMS,
		chunkBytes:     Ms2Bytes(chunkMS, dstSampleRate, dstChannels),
		sampleRate:     dstSampleRate,
		channels:       dstChannels,
		queue:          audio.NewByteQueue(),
		onFlush:        onFlush,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// StartTicker spawns the background pacing goroutine. Call once after
// Connect succeeds.
func (p *PacedEgress) StartTicker(ctx context.Context) {
	go p.tick(ctx)
}

func (p *PacedEgress) tick(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(time.Duration(p.chunkMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.tickOnce(ctx)
		}
	}
}

func (p *PacedEgress) tickOnce(ctx context.Context) {
	p.mu.Lock()
	chunk := p.queue.Pop(p.chunkBytes)
	shouldFlush := len(chunk) == 0 && p.flushed
	if shouldFlush {
		p.flushed = false
	}
	p.mu.Unlock()

	if len(chunk) > 0 {
		_ = p.WSAudioChannel.Write(ctx, chunk, 0)
		return
	}

	if shouldFlush && p.onFlush != nil {
		p.onFlush()
	}
}

// Write appends a byte payload to the pacing queue and clears the sticky
// flushed flag, since new audio means the previous flush cycle is over.
func (p *PacedEgress) Write(ctx context.Context, data []byte, timestampMS int64) error {
	p.mu.Lock()
	p.queue.Append(data)
	p.flushed = false
	p.mu.Unlock()
	return nil
}

// Flush sets the sticky flag meaning "no more audio is coming for the
// current response"; once the queue drains, onFlush fires exactly once.
func (p *PacedEgress) Flush() {
	p.mu.Lock()
	p.flushed = true
	p.mu.Unlock()
}

// Clear empties the queue immediately, discarding any agent audio that
// has been produced but not yet sent. Used by barge-in.
func (p *PacedEgress) Clear() {
	p.mu.Lock()
	p.queue.Clear()
	p.flushed = false
	p.mu.Unlock()
}

// StopTicker halts the pacing goroutine and waits for it to exit.
func (p *PacedEgress) StopTicker() {
	close(p.stop)
	<-p.done
}
