package tts

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/duplexvoice/agentcore/pkg/dialogue"
)

// StreamingClient is an alternate TTS backend that speaks a persistent
// synthesis websocket instead of client.go's one-request-per-segment HTTP
// multipart flow: a single connection is reused across every punctuation
// segment emitted for one response, each segment request gets its binary
// frames streamed back until that segment's "EOS" text frame.
type StreamingClient struct {
	apiKey string
	host   string
	scheme string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewStreamingClient builds a websocket-backed TTS client.
func NewStreamingClient(apiKey, host string) *StreamingClient {
	return &StreamingClient{apiKey: apiKey, host: host, scheme: "wss"}
}

func (t *StreamingClient) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	u := url.URL{Scheme: t.scheme, Host: t.host, Path: "/ws", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to streaming tts: %w", err)
	}

	t.conn = conn
	return conn, nil
}

// Stream satisfies dialogue.TTSProvider: text pulled off textIn is
// accumulated into punctuation segments (dialogue.ExtractTTSText, plus any
// residual text once textIn closes), and each segment is synthesized over
// the shared connection in turn, forwarding
// binary frames onto the returned audio channel until the segment's EOS,
// then moving to the next. The channel closes when textIn closes or ctx
// is cancelled.
func (t *StreamingClient) Stream(ctx context.Context, textIn <-chan string, bundle dialogue.ControlBundle, refAudio []byte, sessionID, responseID string) (<-chan []byte, <-chan error) {
	out := make(chan []byte)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		var buffered string
		for {
			select {
			case <-ctx.Done():
				return
			case text, ok := <-textIn:
				if !ok {
					if buffered != "" {
						if err := t.synthesizeSegment(ctx, buffered, bundle, out); err != nil {
							errCh <- err
						}
					}
					return
				}
				buffered += text
				segment, remainder := dialogue.ExtractTTSText(buffered)
				buffered = remainder
				if segment == "" {
					continue
				}
				if err := t.synthesizeSegment(ctx, segment, bundle, out); err != nil {
					errCh <- err
					return
				}
			}
		}
	}()

	return out, errCh
}

func (t *StreamingClient) synthesizeSegment(ctx context.Context, text string, bundle dialogue.ControlBundle, out chan<- []byte) error {
	conn, err := t.getConn(ctx)
	if err != nil {
		return err
	}

	req := map[string]interface{}{
		"text":    text,
		"emotion": bundle.Emotion,
		"speed":   bundle.Speed,
		"timbre":  bundle.Timbre,
	}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.dropConn()
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return fmt.Errorf("failed to send synthesis request: %w", err)
	}

	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			t.dropConn()
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return fmt.Errorf("failed to read from streaming tts: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			select {
			case out <- payload:
			case <-ctx.Done():
				return ctx.Err()
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return nil
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				return fmt.Errorf("streaming tts error: %s", msg)
			}
		}
	}
}

func (t *StreamingClient) dropConn() {
	t.mu.Lock()
	t.conn = nil
	t.mu.Unlock()
}

func (t *StreamingClient) Name() string { return "lokutor_ws" }

// Close releases the underlying connection, if one is open.
func (t *StreamingClient) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "")
		t.conn = nil
		return err
	}
	return nil
}
