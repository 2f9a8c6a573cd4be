package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/duplexvoice/agentcore/pkg/dialogue"
)

// AnthropicControl backs the control slot with Anthropic's messages API
// instead of an OpenAI-compatible chat/completions endpoint.
type AnthropicControl struct {
	apiKey string
	url    string
	model  string
	prompt string
}

// NewAnthropicControl builds an Anthropic-backed control provider. model
// defaults to claude-3-5-sonnet-20240620 when empty.
func NewAnthropicControl(apiKey, model, prompt string) *AnthropicControl {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicControl{
		apiKey: apiKey,
		url:    "https://api.anthropic.com/v1/messages",
		model:  model,
		prompt: prompt,
	}
}

func (l *AnthropicControl) Complete(ctx context.Context, transcript string) (dialogue.ControlBundle, error) {
	text, err := l.message(ctx, transcript)
	if err != nil {
		return dialogue.DefaultControlBundle(), err
	}
	return dialogue.FixControl(text), nil
}

func (l *AnthropicControl) message(ctx context.Context, transcript string) (string, error) {
	payload := map[string]interface{}{
		"model": l.model,
		"messages": []map[string]string{
			{"role": "user", "content": transcript},
		},
		"max_tokens": 1024,
	}
	if l.prompt != "" {
		payload["system"] = l.prompt
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
	req.Header.Set("x-api-key", l.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("anthropic control error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("no content returned from anthropic")
	}
	return result.Content[0].Text, nil
}

func (l *AnthropicControl) Name() string { return "anthropic_control" }
