// Package tts implements the streaming text-to-speech client: a text
// stream and a control bundle in, PCM16 chunks out, segmented on
// punctuation boundaries.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/duplexvoice/agentcore/pkg/audio"
	"github.com/duplexvoice/agentcore/pkg/dialogue"
)

const readChunkBytes = 4096

// Client is a multipart-POST streaming TTS client matching the remote
// contract: `params` (JSON) + optional `ref_audio` (WAV) in, a raw PCM16
// byte stream out.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient builds a TTS client against url.
func NewClient(url string) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{},
	}
}

// Stream consumes textIn, accumulating text and flushing it to the remote
// endpoint at each punctuation boundary (dialogue.ExtractTTSText), plus any
// residual text once textIn closes. Every accumulated segment becomes one
// streaming HTTP request; PCM16 chunks from each response are forwarded
// to the returned channel in order.
func (c *Client) Stream(ctx context.Context, textIn <-chan string, bundle dialogue.ControlBundle, refAudio []byte, sessionID, responseID string) (<-chan []byte, <-chan error) {
	audioCh := make(chan []byte)
	errCh := make(chan error, 1)

	go func() {
		defer close(audioCh)
		defer close(errCh)

		var buffered string
		for {
			select {
			case chunk, ok := <-textIn:
				if !ok {
					if buffered != "" {
						if err := c.synthesizeSegment(ctx, buffered, bundle, refAudio, sessionID, responseID, audioCh); err != nil {
							errCh <- err
						}
					}
					return
				}
				buffered += chunk
				segment, remainder := dialogue.ExtractTTSText(buffered)
				buffered = remainder
				if segment != "" {
					if err := c.synthesizeSegment(ctx, segment, bundle, refAudio, sessionID, responseID, audioCh); err != nil {
						errCh <- err
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, errCh
}

func (c *Client) synthesizeSegment(ctx context.Context, text string, bundle dialogue.ControlBundle, refAudio []byte, sessionID, responseID string, out chan<- []byte) error {
	params := map[string]interface{}{
		"gen_text":      text,
		"ref_text":      bundle.Transcript,
		"stream":        true,
		"dtype":         "np.int16",
		"text_frontend": true,
		"voice":         bundle.Timbre,
		"speed":         bundle.Speed,
		"emotion":       bundle.Emotion,
		"session_id":    sessionID,
		"response_id":   responseID,
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("tts: marshal params: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("params", string(paramsJSON)); err != nil {
		return fmt.Errorf("tts: write params field: %w", err)
	}
	if len(refAudio) > 0 {
		part, err := writer.CreateFormFile("ref_audio", "ref.wav")
		if err != nil {
			return fmt.Errorf("tts: create ref_audio part: %w", err)
		}
		if _, err := part.Write(audio.NewWavBuffer(refAudio, 16000)); err != nil {
			return fmt.Errorf("tts: write ref_audio: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("tts: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tts: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tts: status %d: %s", resp.StatusCode, respBody)
	}

	buf := make([]byte, readChunkBytes)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-ctx.Done():
				return nil
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("tts: read stream: %w", readErr)
		}
	}
}
