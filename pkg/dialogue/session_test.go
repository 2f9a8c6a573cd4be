package dialogue

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeVAD lets a test script userSpeaking/utterance decisions and records
// every chunk handed to Call.
type fakeVAD struct {
	mu       sync.Mutex
	calls    [][]byte
	closed   bool
	decision chan vadDecision
}

type vadDecision struct {
	speaking  bool
	utterance []byte
	err       error
}

func newFakeVAD() *fakeVAD {
	return &fakeVAD{decision: make(chan vadDecision, 8)}
}

func (v *fakeVAD) Call(ctx context.Context, chunk []byte) error {
	v.mu.Lock()
	v.calls = append(v.calls, chunk)
	v.mu.Unlock()
	return nil
}

func (v *fakeVAD) Next(ctx context.Context) (bool, []byte, error) {
	select {
	case d := <-v.decision:
		return d.speaking, d.utterance, d.err
	case <-ctx.Done():
		return false, nil, ctx.Err()
	}
}

func (v *fakeVAD) Close() error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	return nil
}

func (v *fakeVAD) push(d vadDecision) { v.decision <- d }

// fakeASR always returns a fixed transcript for any utterance.
type fakeASR struct {
	transcript string
	err        error
}

func (a *fakeASR) Transcribe(ctx context.Context, utterance []byte, sampleRate int) (string, error) {
	return a.transcript, a.err
}

// fakeSLM streams a fixed set of chunks, then closes.
type fakeSLM struct {
	chunks []string
}

func (s *fakeSLM) Stream(ctx context.Context, history []Message, systemPrompts []string) (<-chan string, <-chan error) {
	out := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		for _, c := range s.chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errCh
}

// fakeTTS echoes one audio chunk per text segment received.
type fakeTTS struct{}

func (fakeTTS) Stream(ctx context.Context, textIn <-chan string, bundle ControlBundle, refAudio []byte, sessionID, responseID string) (<-chan []byte, <-chan error) {
	out := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		for range textIn {
			select {
			case out <- []byte{0xAA, 0xBB}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errCh
}

// fakeControl always resolves to the bundle it was built with.
type fakeControl struct {
	bundle ControlBundle
}

func (c *fakeControl) Complete(ctx context.Context, transcript string) (ControlBundle, error) {
	return c.bundle, nil
}

// fakeAudioSource delivers chunks pushed by the test, signaling disconnect
// by closing in.
type fakeAudioSource struct {
	in chan []byte
}

func newFakeAudioSource() *fakeAudioSource {
	return &fakeAudioSource{in: make(chan []byte, 8)}
}

func (f *fakeAudioSource) Read(ctx context.Context) ([]byte, bool) {
	select {
	case chunk, ok := <-f.in:
		return chunk, ok
	case <-ctx.Done():
		return nil, false
	}
}

// fakeAudioSink records every write along with Flush/Clear calls. onFlush,
// when set, mimics transport.PacedEgress's production wiring: it fires
// once the queued audio is considered drained, driving the session's
// SPEAKING -> LISTENING transition the same way the real ticker does.
type fakeAudioSink struct {
	mu      sync.Mutex
	written [][]byte
	flushed int
	cleared int
	onFlush func()
}

func (f *fakeAudioSink) Write(ctx context.Context, data []byte, timestampMS int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeAudioSink) Flush() {
	f.mu.Lock()
	f.flushed++
	onFlush := f.onFlush
	f.mu.Unlock()
	if onFlush != nil {
		onFlush()
	}
}

func (f *fakeAudioSink) Clear() {
	f.mu.Lock()
	f.cleared++
	f.mu.Unlock()
}

func (f *fakeAudioSink) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

// fakeEventSink records every event sent.
type fakeEventSink struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEventSink) Send(ctx context.Context, name string, data interface{}) error {
	f.mu.Lock()
	f.events = append(f.events, name)
	f.mu.Unlock()
	return nil
}

func (f *fakeEventSink) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == name {
			return true
		}
	}
	return false
}

func newTestSession(t *testing.T, vad *fakeVAD, asr ASRProvider, slm SLMProvider, tts TTSProvider) (*Session, *fakeAudioSource, *fakeAudioSink, *fakeEventSink) {
	t.Helper()
	src := newFakeAudioSource()
	sink := &fakeAudioSink{}
	events := &fakeEventSink{}

	sess := NewSession("sess-1", src, sink, events, Providers{
		VAD: vad,
		ASR: asr,
		SLM: slm,
		TTS: tts,
	}, SessionConfig{SampleRate: 16000, Channels: 1}, NoOpLogger{})
	sink.onFlush = sess.HandleEgressDrained
	return sess, src, sink, events
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestSessionRunsOneCompleteTurn(t *testing.T) {
	vad := newFakeVAD()
	asr := &fakeASR{transcript: "hello there"}
	slm := &fakeSLM{chunks: []string{"hi", " back"}}
	tts := fakeTTS{}

	sess, _, sink, events := newTestSession(t, vad, asr, slm, tts)
	sess.Listen()
	defer sess.Destroy()

	vad.push(vadDecision{utterance: []byte{1, 2, 3, 4}})

	waitFor(t, time.Second, func() bool { return sink.writeCount() >= 2 })
	waitFor(t, time.Second, func() bool { return sess.History().Len() == 2 })

	msgs := sess.History().Snapshot()
	if msgs[0].Role != "user" || msgs[0].Transcript != "hello there" {
		t.Fatalf("unexpected user message: %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Text != "hi back" {
		t.Fatalf("unexpected assistant message: %+v", msgs[1])
	}
	if !events.has("agent_status_changed") {
		t.Fatal("expected at least one agent_status_changed event")
	}

	waitFor(t, time.Second, func() bool { return sess.Status() == StatusListening })
}

func TestSessionBargeInCancelsCurrentResponse(t *testing.T) {
	vad := newFakeVAD()
	asr := &fakeASR{transcript: "first turn"}
	// blockingSLMProvider never closes its stream on its own, so the turn
	// is still in flight when the barge-in decision arrives.
	blockingSLM := blockingSLMProvider{}

	sess, _, sink, _ := newTestSession(t, vad, asr, blockingSLM, fakeTTS{})
	sess.Listen()
	defer sess.Destroy()

	vad.push(vadDecision{utterance: []byte{1, 2, 3, 4}})
	waitFor(t, time.Second, func() bool { return sess.Status() == StatusSpeaking || sess.Status() == StatusThinking })

	vad.push(vadDecision{speaking: true})
	waitFor(t, time.Second, func() bool { return sess.Status() == StatusListening })

	waitFor(t, time.Second, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.cleared >= 1
	})
}

// blockingSLMProvider streams nothing and only unblocks when ctx is done,
// simulating an in-flight turn that a barge-in must cancel.
type blockingSLMProvider struct{}

func (b blockingSLMProvider) Stream(ctx context.Context, history []Message, systemPrompts []string) (<-chan string, <-chan error) {
	out := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		<-ctx.Done()
	}()
	return out, errCh
}

func TestSessionMuteUserPushesSilence(t *testing.T) {
	vad := newFakeVAD()
	sess, _, _, _ := newTestSession(t, vad, &fakeASR{}, &fakeSLM{}, fakeTTS{})
	sess.Listen()
	defer sess.Destroy()

	sess.MuteUser()

	waitFor(t, time.Second, func() bool {
		vad.mu.Lock()
		defer vad.mu.Unlock()
		for _, c := range vad.calls {
			if len(c) == sess.cfg.SampleRate {
				return true
			}
		}
		return false
	})
}

func TestSessionDestroyIsIdempotentAndClosesVAD(t *testing.T) {
	vad := newFakeVAD()
	sess, _, _, _ := newTestSession(t, vad, &fakeASR{}, &fakeSLM{}, fakeTTS{})
	sess.Listen()

	sess.Destroy()
	sess.Destroy()

	vad.mu.Lock()
	closed := vad.closed
	vad.mu.Unlock()
	if !closed {
		t.Fatal("expected VAD to be closed after Destroy")
	}
}

func TestSessionDiarControlSuppressesResponse(t *testing.T) {
	vad := newFakeVAD()
	asr := &fakeASR{transcript: "hello there"}
	slm := &fakeSLM{chunks: []string{"should never be reached"}}

	src := newFakeAudioSource()
	sink := &fakeAudioSink{}
	events := &fakeEventSink{}
	diar := &fakeControl{bundle: ControlBundle{Response: false, Emotion: "default", Speed: "default", Timbre: "default"}}

	sess := NewSession("sess-2", src, sink, events, Providers{
		VAD:         vad,
		ASR:         asr,
		SLM:         slm,
		TTS:         fakeTTS{},
		DiarControl: diar,
	}, SessionConfig{SampleRate: 16000, Channels: 1}, NoOpLogger{})
	sink.onFlush = sess.HandleEgressDrained
	sess.Listen()
	defer sess.Destroy()

	vad.push(vadDecision{utterance: []byte{1, 2, 3, 4}})

	waitFor(t, time.Second, func() bool { return sess.History().Len() == 1 })
	waitFor(t, time.Second, func() bool { return sess.Status() == StatusListening })

	if sink.writeCount() != 0 {
		t.Fatalf("expected no audio written when diar control suppresses the response, got %d writes", sink.writeCount())
	}
	msgs := sess.History().Snapshot()
	if msgs[0].Role != "user" {
		t.Fatalf("expected the suppressed turn to still record the user message, got %+v", msgs[0])
	}
}

func TestSessionDisconnectTriggersDestroy(t *testing.T) {
	vad := newFakeVAD()
	sess, src, _, _ := newTestSession(t, vad, &fakeASR{}, &fakeSLM{}, fakeTTS{})
	sess.Listen()

	close(src.in)

	waitFor(t, time.Second, func() bool {
		vad.mu.Lock()
		defer vad.mu.Unlock()
		return vad.closed
	})
}
