package slm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/duplexvoice/agentcore/pkg/dialogue"
)

func TestClientStreamYieldsDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Hello", ", ", "world"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", chunk)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key", "test-model")
	textCh, errCh := c.Stream(context.Background(), nil, []string{"system prompt"})

	var got string
	timeout := time.After(2 * time.Second)
loop:
	for {
		select {
		case chunk, ok := <-textCh:
			if !ok {
				break loop
			}
			got += chunk
		case err := <-errCh:
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		case <-timeout:
			t.Fatal("timed out waiting for stream")
		}
	}

	if got != "Hello, world" {
		t.Errorf("expected %q, got %q", "Hello, world", got)
	}
}

func TestClientStreamPropagatesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "model")
	_, errCh := c.Stream(context.Background(), nil, nil)

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error")
	}
}

func TestBuildMessagesIncludesSpeakerAnnotation(t *testing.T) {
	c := NewClient("http://example.com", "", "model")
	history := []dialogue.Message{
		{Role: "user", Audio: []byte{1, 2}, AudioID: "abc", Transcript: "hi", HasSpeaker: true, SpeakerID: 2},
		{Role: "assistant", Text: "hello"},
	}
	msgs := c.buildMessages(history, []string{"sys"})
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages (system + user + assistant), got %d", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("expected first message to be system prompt")
	}
	parts, ok := msgs[1].Content.([]interface{})
	if !ok || len(parts) != 2 {
		t.Fatalf("expected user content of speaker tag + audio part, got %#v", msgs[1].Content)
	}
	tag, ok := parts[0].(map[string]string)
	if !ok || tag["text"] != "[speaker 2] " {
		t.Errorf("expected leading \"[speaker 2] \" text part, got %#v", parts[0])
	}
}
