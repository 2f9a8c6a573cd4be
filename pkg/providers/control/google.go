package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/duplexvoice/agentcore/pkg/dialogue"
)

// GoogleControl backs the control slot with Gemini's generateContent API.
type GoogleControl struct {
	apiKey string
	url    string
	model  string
	prompt string
}

// NewGoogleControl builds a Gemini-backed control provider. model defaults
// to gemini-1.5-flash when empty.
func NewGoogleControl(apiKey, model, prompt string) *GoogleControl {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GoogleControl{
		apiKey: apiKey,
		url:    "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":generateContent",
		model:  model,
		prompt: prompt,
	}
}

func (l *GoogleControl) Complete(ctx context.Context, transcript string) (dialogue.ControlBundle, error) {
	text, err := l.generate(ctx, transcript)
	if err != nil {
		return dialogue.DefaultControlBundle(), err
	}
	return dialogue.FixControl(text), nil
}

type googleContentPart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string              `json:"role"`
	Parts []googleContentPart `json:"parts"`
}

func (l *GoogleControl) generate(ctx context.Context, transcript string) (string, error) {
	contents := []googleContent{}
	if l.prompt != "" {
		contents = append(contents, googleContent{Role: "user", Parts: []googleContentPart{{Text: l.prompt}}})
	}
	contents = append(contents, googleContent{Role: "user", Parts: []googleContentPart{{Text: transcript}}})

	payload := map[string]interface{}{"contents": contents}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url+"?key="+l.apiKey, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("google control error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []googleContentPart `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from google control")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

func (l *GoogleControl) Name() string { return "google_control" }
