// Package stt implements the one-shot HTTP ASR client: a WAV-wrapped PCM
// utterance in, a transcript string out.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/duplexvoice/agentcore/pkg/audio"
)

const requestTimeout = 5 * time.Second

// Client is a generic multipart-POST ASR client matching the remote
// contract: multipart WAV upload, JSON {"transcript": <string>} response.
type Client struct {
	url        string
	apiKey     string
	sampleRate int
	httpClient *http.Client
}

// NewClient builds an ASR client against url, authenticating with apiKey
// (sent as a bearer token) and framing outbound PCM at sampleRate.
func NewClient(url, apiKey string, sampleRate int) *Client {
	return &Client{
		url:        url,
		apiKey:     apiKey,
		sampleRate: sampleRate,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Transcribe wraps utterance in a WAV container and posts it, retrying
// once with backoff on a transient remote fault before surfacing the
// error to the caller.
func (c *Client) Transcribe(ctx context.Context, utterance []byte, sampleRate int) (string, error) {
	if sampleRate <= 0 {
		sampleRate = c.sampleRate
	}

	result, err := backoff.Retry(ctx, func() (string, error) {
		return c.transcribeOnce(ctx, utterance, sampleRate)
	}, backoff.WithMaxTries(2))
	if err != nil {
		return "", fmt.Errorf("stt: transcribe: %w", err)
	}
	return result, nil
}

func (c *Client) transcribeOnce(ctx context.Context, utterance []byte, sampleRate int) (string, error) {
	wavData := audio.NewWavBuffer(utterance, sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", backoff.Permanent(err)
	}
	if _, err := part.Write(wavData); err != nil {
		return "", backoff.Permanent(err)
	}
	if err := writer.Close(); err != nil {
		return "", backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err // transient: network error, retry
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("stt: server error %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", backoff.Permanent(fmt.Errorf("stt: status %d: %s", resp.StatusCode, respBody))
	}

	var result struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", backoff.Permanent(fmt.Errorf("stt: decode response: %w", err))
	}

	return result.Transcript, nil
}
