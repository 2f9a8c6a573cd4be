package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/duplexvoice/agentcore/pkg/dialogue"
)

func TestClientCompleteCoercesBundle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}{}
		resp.Choices = append(resp.Choices, struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}{})
		resp.Choices[0].Message.Content = `{"response": false, "timbre": "warm", "unknown_field": 1}`
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "model", "classify")
	bundle, err := c.Complete(context.Background(), "some transcript")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.Response != false {
		t.Errorf("expected response=false")
	}
	if bundle.Timbre != "warm" {
		t.Errorf("expected timbre=warm, got %q", bundle.Timbre)
	}
	if bundle.Emotion != "default" {
		t.Errorf("expected default emotion, got %q", bundle.Emotion)
	}
}

func TestClientCompleteFallsBackToDefaultOnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "model", "classify")
	bundle, err := c.Complete(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error")
	}
	want := dialogue.DefaultControlBundle()
	if bundle.Response != want.Response || bundle.Timbre != want.Timbre || bundle.Emotion != want.Emotion || bundle.Speed != want.Speed || bundle.Diarization != want.Diarization {
		t.Errorf("expected default bundle on error, got %+v", bundle)
	}
}
