// Package control implements the non-streaming control-LLM client shared
// by the tts-control and diar-control component slots: a JSON completion
// whose content is coerced into the fixed ControlBundle shape.
package control

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/duplexvoice/agentcore/pkg/dialogue"
)

// Client is a generic OpenAI-compatible non-streaming chat/completions
// client whose response content is expected to be a JSON object.
type Client struct {
	url        string
	apiKey     string
	model      string
	prompt     string
	httpClient *http.Client
}

// NewClient builds a control-LLM client. prompt is the system prompt that
// instructs the model to return the control JSON shape; it is specific to
// whichever slot (tts-control or diar-control) this client instance fills.
func NewClient(url, apiKey, model, prompt string) *Client {
	return &Client{
		url:        url,
		apiKey:     apiKey,
		model:      model,
		prompt:     prompt,
		httpClient: &http.Client{},
	}
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete asks the control LLM about transcript and coerces whatever it
// returns into a ControlBundle. A request failure (network, non-2xx, an
// undecodable response body) returns the default bundle together with the
// error; malformed JSON in the completion content resolves to the default
// bundle with no error.
func (c *Client) Complete(ctx context.Context, transcript string) (dialogue.ControlBundle, error) {
	payload := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": c.prompt},
			{"role": "user", "content": transcript},
		},
	}
	body, err := sonic.Marshal(payload)
	if err != nil {
		return dialogue.DefaultControlBundle(), fmt.Errorf("control: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return dialogue.DefaultControlBundle(), fmt.Errorf("control: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dialogue.DefaultControlBundle(), fmt.Errorf("control: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return dialogue.DefaultControlBundle(), fmt.Errorf("control: status %d", resp.StatusCode)
	}

	var result completionResponse
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&result); err != nil {
		return dialogue.DefaultControlBundle(), fmt.Errorf("control: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return dialogue.DefaultControlBundle(), fmt.Errorf("control: no choices returned")
	}

	return dialogue.FixControl(result.Choices[0].Message.Content), nil
}
