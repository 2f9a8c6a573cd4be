package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/duplexvoice/agentcore/pkg/audio"
)

// GroqWhisper is an alternate ASR backend using Groq's hosted Whisper
// endpoint, picked for its lower round-trip latency versus OpenAI's.
type GroqWhisper struct {
	apiKey string
	url    string
	model  string
}

// NewGroqWhisper builds a Groq Whisper ASR backend. model defaults to
// whisper-large-v3-turbo when empty.
func NewGroqWhisper(apiKey, model string) *GroqWhisper {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqWhisper{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/audio/transcriptions",
		model:  model,
	}
}

func (s *GroqWhisper) Transcribe(ctx context.Context, utterance []byte, sampleRate int) (string, error) {
	wavData := audio.NewWavBuffer(utterance, sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("model", s.model); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(wavData)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("groq whisper error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Text, nil
}

func (s *GroqWhisper) Name() string { return "groq_whisper" }
