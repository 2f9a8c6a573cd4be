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

// OpenAIWhisper is an alternate ASR backend speaking OpenAI's
// audio/transcriptions endpoint directly, for deployments that want
// Whisper specifically rather than whatever the generic Client in
// client.go is pointed at.
type OpenAIWhisper struct {
	apiKey string
	url    string
	model  string
}

// NewOpenAIWhisper builds an OpenAI Whisper ASR backend. model defaults to
// whisper-1 when empty.
func NewOpenAIWhisper(apiKey, model string) *OpenAIWhisper {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAIWhisper{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/audio/transcriptions",
		model:  model,
	}
}

// Transcribe satisfies dialogue.ASRProvider.
func (s *OpenAIWhisper) Transcribe(ctx context.Context, utterance []byte, sampleRate int) (string, error) {
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
	if _, err := part.Write(wavData); err != nil {
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
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai whisper error: %s (status %d)", string(respBody), resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Text, nil
}

func (s *OpenAIWhisper) Name() string { return "openai_whisper" }
