package dialogue

import "github.com/bytedance/sonic"

// FixControl parses a control LLM's JSON completion body with a lenient
// decode into a free-form map, then normalizes it into the fixed
// ControlBundle shape. Unknown keys are silently dropped; missing or
// mistyped keys fall back to their default.
//
// raw is the raw JSON text returned by the completion (already extracted
// from whatever wrapper the chat/completions response used).
func FixControl(raw string) ControlBundle {
	bundle := DefaultControlBundle()
	if raw == "" {
		return bundle
	}

	var fields map[string]interface{}
	if err := sonic.UnmarshalString(raw, &fields); err != nil {
		return bundle
	}

	if v, ok := fields["diarization"].(bool); ok {
		bundle.Diarization = v
	}
	if v, ok := fields["response"].(bool); ok {
		bundle.Response = v
	}
	if v, ok := fields["emotion"].(string); ok && v != "" {
		bundle.Emotion = v
	}
	if v, ok := fields["speed"].(string); ok && v != "" {
		bundle.Speed = v
	}
	if v, ok := fields["timbre"].(string); ok && v != "" {
		bundle.Timbre = v
	}

	return bundle
}

// MergeSpeech attaches the utterance audio and its transcript to a control
// bundle, as response() does before handing it to the TTS provider.
func MergeSpeech(bundle ControlBundle, speech []byte, transcript string) ControlBundle {
	bundle.Speech = speech
	bundle.Transcript = transcript
	return bundle
}
