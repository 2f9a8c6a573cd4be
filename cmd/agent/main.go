package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/duplexvoice/agentcore/pkg/audio"
	"github.com/duplexvoice/agentcore/pkg/config"
	"github.com/duplexvoice/agentcore/pkg/dialogue"
	"github.com/duplexvoice/agentcore/pkg/logging"
	"github.com/duplexvoice/agentcore/pkg/providers"
	"github.com/duplexvoice/agentcore/pkg/registry"
	"github.com/duplexvoice/agentcore/pkg/transport"
)

const (
	egressSampleRate     = 16000
	httpShutdownTimeout  = 5 * time.Second
)

var validate = validator.New()

// startSessionRequest is the recognised body of POST /start_session.
type startSessionRequest struct {
	SampleRate      int    `json:"sample_rate" validate:"omitempty,min=8000,max=48000"`
	NumChannels     int    `json:"num_channels" validate:"omitempty,min=1,max=2"`
	TargetLanguage  string `json:"target_language"`
	VoiceClone      bool   `json:"voice_clone"`
	GenerateSpeech  bool   `json:"generate_speech"`
	NoiseReduction  bool   `json:"noise_reduction"`
}

// pendingSession holds everything resolved at /start_session time, waiting
// for both the audio and event websockets to attach before the dialogue
// Session is actually constructed and Listen()'d.
type pendingSession struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	providers  dialogue.Providers
	cfg        dialogue.SessionConfig
	log        dialogue.Logger

	audio   *transport.PacedEgress
	events  *transport.EventChannel
	sess    *dialogue.Session
	started bool
}

// onEgressDrained is handed to transport.NewPacedEgress before the dialogue
// Session exists (the audio websocket can attach before the event one), so
// it reads ps.sess lazily: a flush that lands before the session is fully
// wired is a no-op rather than a race to construct in the other order.
func (ps *pendingSession) onEgressDrained() {
	ps.mu.Lock()
	sess := ps.sess
	ps.mu.Unlock()
	if sess != nil {
		sess.HandleEgressDrained()
	}
}

type server struct {
	store    *registry.SessionStore
	confStore *config.Store
	log      *logging.ZapLogger

	mu       sync.Mutex
	pending  map[string]*pendingSession
}

func newServer(confStore *config.Store, log *logging.ZapLogger) *server {
	return &server{
		store:     registry.NewSessionStore(),
		confStore: confStore,
		log:       log,
		pending:   make(map[string]*pendingSession),
	}
}

func (s *server) startSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sampleRate := req.SampleRate
	if sampleRate == 0 {
		sampleRate = egressSampleRate
	}
	channels := req.NumChannels
	if channels == 0 {
		channels = 1
	}

	doc := s.confStore.Current()

	vadProvider, err := providers.NewVAD(doc.VAD.Provider, doc.VAD.Params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	asrProvider, err := providers.NewASR(doc.ASR.Provider, doc.ASR.Params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	slmProvider, err := providers.NewSLM(doc.SLM.Provider, doc.SLM.Params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ttsProvider, err := providers.NewTTS(doc.TTS.Provider, doc.TTS.Params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ttsControl, err := providers.NewControl(doc.TTSControl.Provider, doc.TTSControl.Params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	diarControl, err := providers.NewControl(doc.DiarControl.Provider, doc.DiarControl.Params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	sessionID := uuid.NewString()
	ps := &pendingSession{
		sampleRate: sampleRate,
		channels:   channels,
		providers: dialogue.Providers{
			VAD:         vadProvider,
			ASR:         asrProvider,
			SLM:         slmProvider,
			TTS:         ttsProvider,
			TTSControl:  ttsControl,
			DiarControl: diarControl,
		},
		cfg: dialogue.SessionConfig{
			SampleRate:      egressSampleRate,
			Channels:        1,
			SystemPrompts:   providers.Strs(doc.SLM.Params, "system_prompts"),
			EchoSuppression: doc.EchoSuppression,
		},
		log: s.log,
	}

	s.mu.Lock()
	s.pending[sessionID] = ps
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID})
}

func (s *server) mute(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" validate:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, ok := s.store.Get(req.SessionID)
	if !ok {
		s.log.Debug("mute requested for unknown session", "session_id", req.SessionID, "err", dialogue.ErrSessionNotFound)
	} else if dlgSess, ok := sess.(*dialogue.Session); ok {
		dlgSess.MuteUser()
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *server) audioWS(c *gin.Context) {
	sessionID := c.Param("session_id")
	s.mu.Lock()
	ps, ok := s.pending[sessionID]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": dialogue.ErrSessionNotFound.Error()})
		return
	}

	resamp := audio.NewResampler(ps.sampleRate, egressSampleRate, ps.channels, 20)
	egress := transport.NewPacedEgress(resamp, 100, egressSampleRate, 1, ps.onEgressDrained)
	if err := egress.Connect(c.Writer, c.Request); err != nil {
		s.log.Warn("audio channel connect failed", "session_id", sessionID, "err", err)
		return
	}
	egress.StartTicker(c.Request.Context())

	ps.mu.Lock()
	ps.audio = egress
	s.maybeStart(sessionID, ps)
	ps.mu.Unlock()
}

func (s *server) eventWS(c *gin.Context) {
	sessionID := c.Param("session_id")
	s.mu.Lock()
	ps, ok := s.pending[sessionID]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": dialogue.ErrSessionNotFound.Error()})
		return
	}

	events := transport.NewEventChannel()
	if err := events.Connect(c.Writer, c.Request); err != nil {
		s.log.Warn("event channel connect failed", "session_id", sessionID, "err", err)
		return
	}

	ps.mu.Lock()
	ps.events = events
	s.maybeStart(sessionID, ps)
	ps.mu.Unlock()
}

// maybeStart constructs and starts the dialogue Session once both the
// audio and event channels have attached. Caller holds ps.mu.
func (s *server) maybeStart(sessionID string, ps *pendingSession) {
	if ps.started || ps.audio == nil || ps.events == nil {
		return
	}
	ps.started = true

	sess := dialogue.NewSession(sessionID, ps.audio, ps.audio, ps.events, ps.providers, ps.cfg, ps.log)
	ps.sess = sess // caller holds ps.mu
	s.store.Insert(sess)
	sess.Listen()

	s.mu.Lock()
	delete(s.pending, sessionID)
	s.mu.Unlock()
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("note: no .env file found, using process environment")
	}

	zlog, err := logging.NewZapLogger(os.Getenv("AGENT_ENV") != "production")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	configPath := os.Getenv("AGENT_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	doc, err := config.Load(configPath)
	if err != nil {
		zlog.Error("failed to load config, using empty document", "err", err)
		doc = &config.Document{}
	}
	confStore := config.NewStore(doc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := config.WatchAndReload(ctx, configPath, confStore); err != nil {
		zlog.Warn("config hot-reload disabled", "err", err)
	}

	srv := newServer(confStore, zlog)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/start_session", srv.startSession)
	router.POST("/mute", srv.mute)
	router.GET("/ws/agent/audio/:session_id", srv.audioWS)
	router.GET("/ws/agent/event/:session_id", srv.eventWS)

	addr := os.Getenv("AGENT_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	httpServer := &http.Server{Addr: addr, Handler: router}
	go func() {
		zlog.Info("agent core listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Error("http server failed", "err", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	zlog.Info("shutting down")
	cancel()
	srv.store.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
}
