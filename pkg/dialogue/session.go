package dialogue

import (
	"context"
	"sync"
	"time"

	"github.com/duplexvoice/agentcore/pkg/registry"
)

// AudioSource is the read side of the audio channel: a blocking pull of
// the next inbound PCM16 chunk.
type AudioSource interface {
	Read(ctx context.Context) ([]byte, bool)
}

// AudioSink is the write side of the audio channel that the response
// pipeline and barge-in logic drive. A transport.PacedEgress satisfies
// this directly.
type AudioSink interface {
	Write(ctx context.Context, data []byte, timestampMS int64) error
	Flush()
	Clear()
}

// EventSink is the one-way event push surface the orchestrator uses for
// agent_status_changed / set_avatar / agent_can_speak.
type EventSink interface {
	Send(ctx context.Context, name string, data interface{}) error
}

// Providers bundles every component slot a Session needs. ASR, SLM and
// TTS are required; VAD is required for ingress processing; the two
// control providers are optional — a nil slot resolves to the default
// bundle exactly as an absent control-LLM does per the component
// contract.
type Providers struct {
	VAD         VADProvider
	ASR         ASRProvider
	SLM         SLMProvider
	TTS         TTSProvider
	TTSControl  ControlProvider
	DiarControl ControlProvider
}

// SessionConfig carries the per-session tunables the orchestrator needs
// beyond its providers and channels.
type SessionConfig struct {
	SampleRate      int
	Channels        int
	SystemPrompts   []string
	EchoSuppression bool
	IngressQueueLen int
}

// Session is the per-call unit of isolation: it owns one instance of
// every component and the conversation history, and drives the
// ingress/VAD/response-driver trio for the life of the call.
type Session struct {
	id  string
	log Logger

	audioIn  AudioSource
	audioOut AudioSink
	events   EventSink
	echo     *EchoSuppressor

	providers Providers
	cfg       SessionConfig

	history *History
	tasks   *registry.TaskRegistry

	mu                sync.Mutex
	status            AgentStatus
	lastAvatar        string
	currentCancel     context.CancelFunc
	currentResponseWG sync.WaitGroup

	diarMu     sync.Mutex
	diarMap    map[string]int
	speakerSeq int

	ingress chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	destroyed bool
	once      sync.Once
}

// NewSession constructs a Session ready to have Listen called on it. The
// caller is responsible for having already connected audioIn/audioOut/
// events (e.g. via the websocket upgrade handlers) before calling Listen.
func NewSession(id string, audioIn AudioSource, audioOut AudioSink, events EventSink, providers Providers, cfg SessionConfig, log Logger) *Session {
	if log == nil {
		log = NoOpLogger{}
	}
	if cfg.IngressQueueLen <= 0 {
		cfg.IngressQueueLen = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		log:       log,
		audioIn:   audioIn,
		audioOut:  audioOut,
		events:    events,
		echo:      NewEchoSuppressor(),
		providers: providers,
		cfg:       cfg,
		history:   NewHistory(),
		tasks:     registry.NewTaskRegistry(log),
		status:    StatusListening,
		ingress:   make(chan []byte, cfg.IngressQueueLen),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.echo.SetEnabled(cfg.EchoSuppression)
	return s
}

// ID satisfies registry.Session.
func (s *Session) ID() string { return s.id }

// Status returns the current agent status.
func (s *Session) Status() AgentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// History exposes the session's conversation history for read access
// (e.g. from an HTTP debug endpoint).
func (s *Session) History() *History { return s.history }

// Listen starts the ingress pump, VAD pump, and response driver, all
// running until the session is destroyed.
func (s *Session) Listen() {
	if s.providers.VAD == nil {
		s.log.Error("session started without a VAD provider", "session_id", s.id, "err", ErrNilProvider)
		return
	}
	if err := s.providers.VAD.Call(s.ctx, nil); err != nil {
		s.log.Debug("vad warmup call failed, continuing", "err", err)
	}

	vadChunks := make(chan []byte, s.cfg.IngressQueueLen)

	s.tasks.CreateTask(s.ctx, func(ctx context.Context) { s.ingressPump(ctx) })
	s.tasks.CreateTask(s.ctx, func(ctx context.Context) { s.vadPump(ctx, vadChunks) })
	s.tasks.CreateTask(s.ctx, func(ctx context.Context) { s.responseDriver(ctx) })
}

// ingressPump consumes audioIn.Read and pushes each chunk into the bounded
// internal queue. On disconnect it pushes a nil sentinel and destroys the
// session.
func (s *Session) ingressPump(ctx context.Context) {
	// Destroy waits for every tracked task to return, so it must not run
	// synchronously on a goroutine the task registry is itself waiting on.
	defer func() { go s.Destroy() }()
	for {
		chunk, ok := s.audioIn.Read(ctx)
		if !ok {
			select {
			case s.ingress <- nil:
			case <-ctx.Done():
			}
			return
		}
		if len(chunk) == 0 {
			continue
		}
		if s.echo.IsEcho(chunk) {
			continue
		}
		select {
		case s.ingress <- chunk:
		case <-ctx.Done():
			return
		}
	}
}

// vadPump pops chunks from the ingress queue and forwards each to the VAD
// provider, stopping on the nil sentinel.
func (s *Session) vadPump(ctx context.Context, _ chan []byte) {
	for {
		select {
		case chunk, ok := <-s.ingress:
			if !ok || chunk == nil {
				return
			}
			if err := s.providers.VAD.Call(ctx, chunk); err != nil {
				s.log.Warn("vad call failed", "session_id", s.id, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// responseDriver iterates VAD decisions and drives one response at a
// time, cancelling the previous one on interruption or on the next
// utterance.
func (s *Session) responseDriver(ctx context.Context) {
	for {
		userSpeaking, utterance, err := s.providers.VAD.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("vad decision failed", "session_id", s.id, "err", err)
			continue
		}

		if userSpeaking {
			s.mu.Lock()
			wasListening := s.status == StatusListening
			s.mu.Unlock()
			if !wasListening {
				s.transitionTo(ctx, StatusListening)
				s.cancelCurrentResponse()
				s.audioOut.Clear()
				s.echo.Clear()
			}
			continue
		}

		if utterance != nil {
			s.cancelCurrentResponse()
			s.startResponse(utterance)
		}
	}
}

// HandleEgressDrained is the paced egress's onFlush callback: it fires
// once queued agent audio has actually been sent over the wire, which is
// the point at which the client may be told it can speak again.
func (s *Session) HandleEgressDrained() {
	s.transitionTo(s.ctx, StatusListening)
}

// MuteUser pushes sampleRate bytes of zero PCM into the ingress queue, a
// coarse-grained way to force the VAD to report end-of-utterance.
func (s *Session) MuteUser() {
	zeros := make([]byte, s.cfg.SampleRate)
	select {
	case s.ingress <- zeros:
	case <-s.ctx.Done():
	}
}

// recordSpeaker assigns audioID to the current speaker bucket, advancing
// to a new bucket whenever diar-control reports a speaker change (or on
// the very first tagged utterance), and returns the accumulated map ready
// for History.AnnotateSpeakers. There is no standalone diarization-cluster
// provider in this system's component model; diar-control's boolean
// "diarization" field is the only per-turn signal available, so it is
// read here as "this utterance starts a new speaker turn".
func (s *Session) recordSpeaker(audioID string, newSpeaker bool) map[string]int {
	s.diarMu.Lock()
	defer s.diarMu.Unlock()
	if s.diarMap == nil {
		s.diarMap = make(map[string]int)
	}
	if newSpeaker || len(s.diarMap) == 0 {
		s.speakerSeq++
	}
	s.diarMap[audioID] = s.speakerSeq
	return s.diarMap
}

func (s *Session) transitionTo(ctx context.Context, status AgentStatus) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.mu.Unlock()

	_ = s.events.Send(ctx, "agent_status_changed", map[string]interface{}{
		"timestamp": nowMillis(),
		"status":    string(status),
	})
	_ = s.events.Send(ctx, "agent_can_speak", map[string]interface{}{
		"can_speak": status != StatusListening,
	})
}

func (s *Session) maybeSetAvatar(ctx context.Context, avatar string) {
	if avatar == "" {
		avatar = "default"
	}
	s.mu.Lock()
	changed := avatar != s.lastAvatar
	s.lastAvatar = avatar
	s.mu.Unlock()

	if changed && avatar != "default" {
		_ = s.events.Send(ctx, "set_avatar", map[string]string{"avatar": avatar})
	}
}

func (s *Session) cancelCurrentResponse() {
	s.mu.Lock()
	cancel := s.currentCancel
	s.currentCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.currentResponseWG.Wait()
}

func (s *Session) startResponse(utterance []byte) {
	respCtx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.currentCancel = cancel
	s.mu.Unlock()

	s.currentResponseWG.Add(1)
	s.tasks.CreateTask(respCtx, func(ctx context.Context) {
		defer s.currentResponseWG.Done()
		s.runResponse(ctx, utterance)
	})
}

// Destroy tears the session down: cancels every background task, closes
// the VAD provider, and is safe to call more than once or concurrently.
func (s *Session) Destroy() {
	s.once.Do(func() {
		s.mu.Lock()
		s.destroyed = true
		s.mu.Unlock()

		s.cancel()
		s.tasks.Destroy()
		if s.providers.VAD != nil {
			if err := s.providers.VAD.Close(); err != nil {
				s.log.Debug("vad close error", "session_id", s.id, "err", err)
			}
		}
	})
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
