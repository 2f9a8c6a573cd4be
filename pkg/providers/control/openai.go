package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/duplexvoice/agentcore/pkg/dialogue"
)

// OpenAIControl is a control-LLM backend that speaks the OpenAI chat
// completions API directly, for deployments whose control slot needs
// OpenAI-specific request shaping (e.g. a fine-tuned model) that the
// generic Client in client.go would not apply.
type OpenAIControl struct {
	apiKey string
	url    string
	model  string
	prompt string
}

// NewOpenAIControl builds an OpenAI-backed control provider. model defaults
// to gpt-4o when empty.
func NewOpenAIControl(apiKey, model, prompt string) *OpenAIControl {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIControl{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/chat/completions",
		model:  model,
		prompt: prompt,
	}
}

// Complete satisfies dialogue.ControlProvider: it asks the model for a
// control decision and coerces whatever comes back into a fixed-shape
// ControlBundle, falling back to the default bundle on any failure.
func (l *OpenAIControl) Complete(ctx context.Context, transcript string) (dialogue.ControlBundle, error) {
	text, err := l.chat(ctx, transcript)
	if err != nil {
		return dialogue.DefaultControlBundle(), err
	}
	return dialogue.FixControl(text), nil
}

func (l *OpenAIControl) chat(ctx context.Context, transcript string) (string, error) {
	payload := map[string]interface{}{
		"model": l.model,
		"messages": []map[string]string{
			{"role": "system", "content": l.prompt},
			{"role": "user", "content": transcript},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("openai control error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from openai")
	}
	return result.Choices[0].Message.Content, nil
}

// Name identifies this backend for the provider factory's "provider" key.
func (l *OpenAIControl) Name() string { return "openai_control" }
