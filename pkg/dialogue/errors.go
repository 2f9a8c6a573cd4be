package dialogue

import "errors"

var (
	// ErrEmptyTranscription is returned when ASR produces an empty string
	// for a non-empty utterance.
	ErrEmptyTranscription = errors.New("transcription returned empty text")

	// ErrLLMFailed wraps any SLM generation failure.
	ErrLLMFailed = errors.New("language model generation failed")

	// ErrTTSFailed wraps any TTS synthesis failure.
	ErrTTSFailed = errors.New("text-to-speech synthesis failed")

	// ErrNilProvider is returned when a required component slot is unset.
	ErrNilProvider = errors.New("required provider is nil")

	// ErrContextCancelled marks a response as having ended via cancellation
	// rather than completion; it is not logged as a failure.
	ErrContextCancelled = errors.New("operation cancelled by context")

	// ErrSessionNotFound marks a lookup of an unknown session id by the
	// HTTP/websocket surface.
	ErrSessionNotFound = errors.New("session not found")

	// ErrProtocolViolation marks a malformed or out-of-order wire message.
	ErrProtocolViolation = errors.New("protocol invariant violated")

	// ErrChannelNotReady is returned by a write or read attempted before
	// connect.
	ErrChannelNotReady = errors.New("channel not ready")
)
