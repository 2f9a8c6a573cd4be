// Package slm implements the streaming speech-aware language model
// client: an OpenAI-compatible chat/completions call with stream=true,
// yielding text chunks as they arrive.
package slm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/duplexvoice/agentcore/pkg/audio"
	"github.com/duplexvoice/agentcore/pkg/dialogue"
)

// Client is an OpenAI-compatible streaming chat/completions client.
type Client struct {
	baseURL       string
	apiKey        string
	model         string
	systemPrompts []string
	httpClient    *http.Client
}

// NewClient builds an SLM client against an OpenAI-compatible
// chat/completions endpoint.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/chat/completions",
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
	}
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type audioContentPart struct {
	Type       string          `json:"type"`
	InputAudio inputAudioField `json:"input_audio"`
	ID         string          `json:"id"`
	Transcript string          `json:"transcript"`
}

type inputAudioField struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream builds the message list (system prompts + history + the new
// user audio turn) and opens a streaming chat/completions call. The
// returned text channel yields content deltas as they arrive; the error
// channel carries at most one terminal error. Both are closed when the
// stream ends.
func (c *Client) Stream(ctx context.Context, history []dialogue.Message, systemPrompts []string) (<-chan string, <-chan error) {
	textCh := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(textCh)
		defer close(errCh)

		messages := c.buildMessages(history, systemPrompts)
		payload := map[string]interface{}{
			"model":    c.model,
			"messages": messages,
			"stream":   true,
		}
		body, err := sonic.Marshal(payload)
		if err != nil {
			errCh <- fmt.Errorf("slm: marshal request: %w", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			errCh <- fmt.Errorf("slm: build request: %w", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			errCh <- fmt.Errorf("slm: request: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errCh <- fmt.Errorf("slm: status %d", resp.StatusCode)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var chunk streamChunk
			if err := sonic.UnmarshalString(data, &chunk); err != nil {
				continue // transient malformed frame; skip rather than abort the stream
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}

			select {
			case textCh <- delta:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- fmt.Errorf("slm: stream read: %w", err)
		}
	}()

	return textCh, errCh
}

// buildMessages assembles system prompts, the annotated history, and the
// new user audio turn into the OpenAI-compatible message list. Diarization
// annotation (a synthetic "[speaker N]" text part ahead of a historical
// user audio turn) is applied by the caller via dialogue.History.AnnotateSpeakers
// before calling Stream, so this just renders whatever speaker tag is
// already set on each message.
func (c *Client) buildMessages(history []dialogue.Message, systemPrompts []string) []chatMessage {
	messages := make([]chatMessage, 0, len(systemPrompts)+len(history))
	for _, p := range systemPrompts {
		messages = append(messages, chatMessage{Role: "system", Content: p})
	}

	for _, m := range history {
		switch m.Role {
		case "assistant":
			messages = append(messages, chatMessage{Role: "assistant", Content: m.Text})
		case "user":
			var content []interface{}
			if m.HasSpeaker {
				content = append(content, map[string]string{
					"type": "text",
					"text": fmt.Sprintf("[speaker %d] ", m.SpeakerID),
				})
			}
			content = append(content, audioContentPart{
				Type: "input_audio",
				InputAudio: inputAudioField{
					Data:   base64.StdEncoding.EncodeToString(audio.NewWavBuffer(m.Audio, 16000)),
					Format: "wav",
				},
				ID:         m.AudioID,
				Transcript: m.Transcript,
			})
			messages = append(messages, chatMessage{Role: "user", Content: content})
		}
	}

	return messages
}
