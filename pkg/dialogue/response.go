package dialogue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// latencyBreakdown mirrors the teacher's ManagedStream.GetLatencyBreakdown:
// per-turn timing milestones logged at turn end, not surfaced to the
// client (no metrics exporter dependency is introduced solely for this).
type latencyBreakdown struct {
	turnStart     time.Time
	asrDoneMS     int64
	firstChunkMS  int64
	sawFirstChunk bool
}

func (l *latencyBreakdown) markASRDone() {
	l.asrDoneMS = time.Since(l.turnStart).Milliseconds()
}

func (l *latencyBreakdown) markFirstChunk() {
	if !l.sawFirstChunk {
		l.firstChunkMS = time.Since(l.turnStart).Milliseconds()
		l.sawFirstChunk = true
	}
}

// runResponse drives one full turn: ASR resolves the transcript first,
// then both control completions run in parallel against that transcript,
// then (once diar-control clears the turn to proceed) the SLM stream is
// tee'd so TTS consumes it for playback while a second copy accumulates
// the full reply text for history. It returns when the turn finishes
// normally or ctx is cancelled by a barge-in or disconnect.
func (s *Session) runResponse(ctx context.Context, utterance []byte) {
	responseID := uuid.NewString()
	latency := &latencyBreakdown{turnStart: time.Now()}

	s.transitionTo(ctx, StatusThinking)

	transcript, err := s.providers.ASR.Transcribe(ctx, utterance, s.cfg.SampleRate)
	latency.markASRDone()
	if err != nil {
		s.log.Warn("transcription failed", "session_id", s.id, "response_id", responseID, "err", err)
		s.transitionTo(ctx, StatusListening)
		return
	}
	if transcript == "" {
		s.log.Debug("empty transcription, nothing to respond to", "session_id", s.id, "response_id", responseID, "err", ErrEmptyTranscription)
		s.transitionTo(ctx, StatusListening)
		return
	}

	s.history.AppendUser(utterance, transcript)

	ttsCtrl := DefaultControlBundle()
	diarCtrl := DefaultControlBundle()

	g, gctx := errgroup.WithContext(ctx)
	if s.providers.TTSControl != nil {
		g.Go(func() error {
			bundle, err := s.providers.TTSControl.Complete(gctx, transcript)
			if err == nil {
				ttsCtrl = bundle
			}
			return nil
		})
	}
	if s.providers.DiarControl != nil {
		g.Go(func() error {
			bundle, err := s.providers.DiarControl.Complete(gctx, transcript)
			if err == nil {
				diarCtrl = bundle
			}
			return nil
		})
	}
	_ = g.Wait() // per-provider errors already swallowed above; a failed control call just keeps its default bundle

	ttsCtrl = MergeSpeech(ttsCtrl, utterance, transcript)

	if !diarCtrl.Response {
		s.log.Debug("diar_control suppressed response", "session_id", s.id, "response_id", responseID)
		s.transitionTo(ctx, StatusListening)
		return
	}

	history := s.history.Snapshot()
	if s.providers.DiarControl != nil {
		diar := s.recordSpeaker(AudioID(utterance), diarCtrl.Diarization)
		history = s.history.AnnotateSpeakers(diar)
	}

	slmOut, slmErrCh := s.providers.SLM.Stream(ctx, history, s.cfg.SystemPrompts)
	ttsText, historyText := TeeText(slmOut)
	fullReply := drainHistoryText(historyText)

	ttsAudio, ttsErrCh := s.providers.TTS.Stream(ctx, ttsText, ttsCtrl, ttsCtrl.Speech, s.id, responseID)

	const timestampMS = 0
	wroteAny := false
	for chunk := range ttsAudio {
		if !latency.sawFirstChunk {
			latency.markFirstChunk()
			s.maybeSetAvatar(ctx, ttsCtrl.Emotion)
			s.transitionTo(ctx, StatusSpeaking)
		}
		if err := s.audioOut.Write(ctx, chunk, timestampMS); err != nil {
			s.log.Warn("audio write failed", "session_id", s.id, "err", err)
			break
		}
		s.echo.RecordPlayed(chunk)
		wroteAny = true
	}
	if wroteAny {
		s.audioOut.Flush()
	}

	if err := <-ttsErrCh; err != nil {
		if ctx.Err() != nil {
			s.log.Debug("tts stream ended by cancellation", "session_id", s.id, "response_id", responseID, "err", ErrContextCancelled)
		} else {
			s.log.Warn("tts stream error", "session_id", s.id, "response_id", responseID, "err", fmt.Errorf("%w: %v", ErrTTSFailed, err))
		}
	}
	if err := <-slmErrCh; err != nil {
		if ctx.Err() != nil {
			s.log.Debug("slm stream ended by cancellation", "session_id", s.id, "response_id", responseID, "err", ErrContextCancelled)
		} else {
			s.log.Warn("slm stream error", "session_id", s.id, "response_id", responseID, "err", fmt.Errorf("%w: %v", ErrLLMFailed, err))
		}
	}

	if reply := <-fullReply; reply != "" {
		s.history.AppendAssistant(reply)
	}

	s.log.Debug("turn latency", "session_id", s.id, "response_id", responseID,
		"asr_ms", latency.asrDoneMS, "first_chunk_ms", latency.firstChunkMS,
		"total_ms", time.Since(latency.turnStart).Milliseconds())

	// The paced egress's onFlush callback drives SPEAKING -> LISTENING once
	// queued audio actually drains over the wire; only resolve it here when
	// nothing was ever queued (e.g. TTS produced no chunks).
	if !wroteAny && ctx.Err() == nil {
		s.transitionTo(ctx, StatusListening)
	}
}

// drainHistoryText collects every chunk off the tee'd history-logger side
// into a single string, delivered on the returned channel once the SLM
// stream closes it.
func drainHistoryText(historyText <-chan string) <-chan string {
	out := make(chan string, 1)
	go func() {
		var full string
		for chunk := range historyText {
			full += chunk
		}
		out <- full
		close(out)
	}()
	return out
}
