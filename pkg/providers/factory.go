// Package providers resolves a config.SlotConfig (a provider name plus
// its free-form constructor params) into the concrete dialogue provider
// instance it names. It is the one place that knows every backend this
// module ships, so adding a backend means adding one case here rather
// than touching the orchestrator.
package providers

import (
	"fmt"

	"github.com/duplexvoice/agentcore/pkg/dialogue"
	"github.com/duplexvoice/agentcore/pkg/providers/control"
	"github.com/duplexvoice/agentcore/pkg/providers/slm"
	"github.com/duplexvoice/agentcore/pkg/providers/stt"
	"github.com/duplexvoice/agentcore/pkg/providers/tts"
	"github.com/duplexvoice/agentcore/pkg/providers/vad"
)

func str(params map[string]interface{}, key, fallback string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// Strs extracts a string-list param (e.g. a slm slot's system_prompts).
func Strs(params map[string]interface{}, key string) []string {
	v, ok := params[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// NewVAD resolves the vad slot. "remote_ws" is presently the only backend.
func NewVAD(provider string, params map[string]interface{}) (dialogue.VADProvider, error) {
	switch provider {
	case "remote_ws", "":
		return vad.NewClient(str(params, "url", "")), nil
	default:
		return nil, fmt.Errorf("providers: unknown vad provider %q", provider)
	}
}

// NewASR resolves the asr slot.
func NewASR(provider string, params map[string]interface{}) (dialogue.ASRProvider, error) {
	apiKey := str(params, "api_key", "")
	model := str(params, "model", "")
	switch provider {
	case "http_asr", "":
		return stt.NewClient(str(params, "url", ""), apiKey, 16000), nil
	case "openai_whisper":
		return stt.NewOpenAIWhisper(apiKey, model), nil
	case "groq_whisper":
		return stt.NewGroqWhisper(apiKey, model), nil
	case "deepgram":
		return stt.NewDeepgram(apiKey), nil
	case "assemblyai":
		return stt.NewAssemblyAI(apiKey), nil
	default:
		return nil, fmt.Errorf("providers: unknown asr provider %q", provider)
	}
}

// NewSLM resolves the slm slot.
func NewSLM(provider string, params map[string]interface{}) (dialogue.SLMProvider, error) {
	switch provider {
	case "openai_compatible_chat", "":
		return slm.NewClient(str(params, "url", ""), str(params, "api_key", ""), str(params, "model", "")), nil
	default:
		return nil, fmt.Errorf("providers: unknown slm provider %q", provider)
	}
}

// NewTTS resolves the tts slot.
func NewTTS(provider string, params map[string]interface{}) (dialogue.TTSProvider, error) {
	switch provider {
	case "http_multipart", "":
		return tts.NewClient(str(params, "url", "")), nil
	case "lokutor_ws":
		return tts.NewStreamingClient(str(params, "api_key", ""), str(params, "host", "")), nil
	default:
		return nil, fmt.Errorf("providers: unknown tts provider %q", provider)
	}
}

// NewControl resolves the tts_control/diar_control slots. An empty
// provider name resolves to (nil, nil): an absent control slot is valid
// and falls back to dialogue.DefaultControlBundle().
func NewControl(provider string, params map[string]interface{}) (dialogue.ControlProvider, error) {
	apiKey := str(params, "api_key", "")
	model := str(params, "model", "")
	prompt := str(params, "prompt", "")
	switch provider {
	case "":
		return nil, nil
	case "openai_compatible":
		return control.NewClient(str(params, "url", ""), apiKey, model, prompt), nil
	case "openai_control":
		return control.NewOpenAIControl(apiKey, model, prompt), nil
	case "anthropic_control":
		return control.NewAnthropicControl(apiKey, model, prompt), nil
	case "google_control":
		return control.NewGoogleControl(apiKey, model, prompt), nil
	default:
		return nil, fmt.Errorf("providers: unknown control provider %q", provider)
	}
}
