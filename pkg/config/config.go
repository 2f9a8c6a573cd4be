// Package config loads the declarative component-slot document: which
// concrete provider fills each of vad/asr/slm/tts/data/event/tts_control/
// diar_control, and that provider's constructor parameters.
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// SlotConfig is one component slot's resolved provider name and
// constructor parameters. Params is left as a free-form map since each
// provider interprets its own keys (api key, base url, model, ...); the
// core itself never inspects Params beyond handing it to the constructor.
type SlotConfig struct {
	Provider string                 `yaml:"provider"`
	Params   map[string]interface{} `yaml:"params"`
}

// Document is the full component-slot configuration for one deployment.
type Document struct {
	VAD             SlotConfig `yaml:"vad"`
	ASR             SlotConfig `yaml:"asr"`
	SLM             SlotConfig `yaml:"slm"`
	TTS             SlotConfig `yaml:"tts"`
	Data            SlotConfig `yaml:"data"`
	Event           SlotConfig `yaml:"event"`
	TTSControl      SlotConfig `yaml:"tts_control"`
	DiarControl     SlotConfig `yaml:"diar_control"`
	ChunkMS         int        `yaml:"chunk_ms"`
	SampleRate      int        `yaml:"sample_rate"`
	Channels        int        `yaml:"channels"`
	EchoSuppression bool       `yaml:"echo_suppression"`
}

// defaults fills in the spec's stated defaults for anything the document
// left zero-valued.
func (d *Document) defaults() {
	if d.ChunkMS == 0 {
		d.ChunkMS = 100
	}
	if d.SampleRate == 0 {
		d.SampleRate = 16000
	}
	if d.Channels == 0 {
		d.Channels = 1
	}
}

// Load reads and parses a Document from path.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	doc.defaults()
	return &doc, nil
}

// Store holds the currently-active Document and notifies subscribers
// when a hot reload replaces it.
type Store struct {
	mu   sync.RWMutex
	doc  *Document
	subs []chan *Document
}

// NewStore wraps an initial Document in a Store.
func NewStore(doc *Document) *Store {
	return &Store{doc: doc}
}

// Current returns the active Document.
func (s *Store) Current() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Replace swaps in a newly-loaded Document and notifies subscribers.
func (s *Store) Replace(doc *Document) {
	s.mu.Lock()
	s.doc = doc
	subs := append([]chan *Document(nil), s.subs...)
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- doc:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- doc:
			default:
			}
		}
	}
}

// Subscribe returns a channel that receives the new Document each time
// Replace is called. The channel is buffered by 1 so a reload is never
// lost if the subscriber is momentarily busy; a second reload before the
// first is read overwrites the pending one.
func (s *Store) Subscribe() <-chan *Document {
	ch := make(chan *Document, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}
