package dialogue

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
)

// AudioID returns the hex md5 digest used to key a user audio turn, both
// as the wire audio_id and as the diarization lookup key.
func AudioID(pcm []byte) string {
	sum := md5.Sum(pcm)
	return hex.EncodeToString(sum[:])
}

// History is the append-only ordered sequence of Messages for one session.
// It is exclusively mutated by the orchestrator's response() pipeline, and
// since at most one response runs at a time per session the mutex here
// only guards readers (e.g. the HTTP surface) racing the orchestrator.
type History struct {
	mu       sync.RWMutex
	messages []Message
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// AppendUser records a completed ASR turn.
func (h *History) AppendUser(audio []byte, transcript string) Message {
	msg := Message{
		Role:       "user",
		Transcript: transcript,
		AudioID:    AudioID(audio),
		Audio:      audio,
	}
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()
	return msg
}

// AppendAssistant records the text produced by a response, whether it
// completed or was cancelled mid-stream.
func (h *History) AppendAssistant(text string) {
	h.mu.Lock()
	h.messages = append(h.messages, Message{Role: "assistant", Text: text})
	h.mu.Unlock()
}

// Snapshot returns a copy of the history as it stands right now, safe to
// hand to a concurrent SLM call without holding the lock for the call's
// duration.
func (h *History) Snapshot() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len reports the number of messages recorded so far.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// AnnotateSpeakers tags each historical user message whose audio_id has a
// diarization result with that speaker index (SpeakerID/HasSpeaker); the
// SLM client renders the tag as a "[speaker N] " text part ahead of that
// turn's audio. diar maps audio_id -> speaker index. The receiver's own messages are not
// mutated; AnnotateSpeakers returns a new slice suitable for handing to
// the SLM client.
func (h *History) AnnotateSpeakers(diar map[string]int) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(diar) == 0 {
		out := make([]Message, len(h.messages))
		copy(out, h.messages)
		return out
	}

	out := make([]Message, 0, len(h.messages))
	for _, m := range h.messages {
		if m.Role == "user" {
			if speaker, ok := diar[m.AudioID]; ok {
				m.SpeakerID = speaker
				m.HasSpeaker = true
			}
		}
		out = append(out, m)
	}
	return out
}
