// Package transport implements the websocket-backed duplex audio channel,
// its paced-egress specialization, and the one-way event channel that the
// dialogue core writes to.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"

	"github.com/duplexvoice/agentcore/pkg/audio"
	"github.com/duplexvoice/agentcore/pkg/dialogue"
)

// WireFrame is the outbound JSON shape for both audio and text frames on
// the audio channel.
type WireFrame struct {
	Data      string `json:"data"`
	DataType  string `json:"data_type"` // "bytes" or "text"
	TextType  string `json:"text_type,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// AudioChannel is a websocket-backed duplex byte stream: binary PCM16
// inbound, base64-JSON-wrapped frames outbound.
type AudioChannel interface {
	Connect(w http.ResponseWriter, r *http.Request) error
	Ready() bool
	// Read blocks for the next inbound PCM16 chunk, resampled if a read
	// resampler is configured. It returns (nil, false) on disconnect.
	Read(ctx context.Context) ([]byte, bool)
	// Write sends a byte payload, base64'd as-is (no write-side
	// resampling), as a single JSON frame. Text payloads go through
	// WriteText.
	Write(ctx context.Context, data []byte, timestampMS int64) error
	WriteText(ctx context.Context, text, textType string) error
	Flush()
	Clear()
	Close(reason string) error
}

// WSAudioChannel is the direct (non-paced) websocket AudioChannel
// implementation: writes go straight to the wire.
type WSAudioChannel struct {
	conn       *websocket.Conn
	readResamp *audio.Resampler
	closed     atomic.Bool
	mu         sync.Mutex
}

// NewWSAudioChannel builds a channel that resamples inbound audio with
// readResamp before handing chunks to Read. readResamp may be nil to pass
// bytes through unchanged.
func NewWSAudioChannel(readResamp *audio.Resampler) *WSAudioChannel {
	return &WSAudioChannel{readResamp: readResamp}
}

// Connect accepts the websocket upgrade.
func (c *WSAudioChannel) Connect(w http.ResponseWriter, r *http.Request) error {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return fmt.Errorf("transport: audio channel accept: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Ready reports whether the channel has an attached, not-yet-closed
// websocket.
func (c *WSAudioChannel) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed.Load()
}

// Read blocks for the next inbound binary frame.
func (c *WSAudioChannel) Read(ctx context.Context) ([]byte, bool) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, false
	}

	msgType, payload, err := conn.Read(ctx)
	if err != nil {
		c.closed.Store(true)
		return nil, false
	}
	if msgType != websocket.MessageBinary {
		return nil, true
	}

	if c.readResamp != nil {
		return c.readResamp.Push(payload), true
	}
	return payload, true
}

// Write sends a PCM16 byte payload as a base64 JSON frame.
func (c *WSAudioChannel) Write(ctx context.Context, data []byte, timestampMS int64) error {
	return c.writeFrame(ctx, WireFrame{
		Data:      base64Encode(data),
		DataType:  "bytes",
		Timestamp: timestampMS,
	})
}

// WriteText sends a text payload, e.g. a live ASR/AST caption.
func (c *WSAudioChannel) WriteText(ctx context.Context, text, textType string) error {
	return c.writeFrame(ctx, WireFrame{
		Data:     text,
		DataType: "text",
		TextType: textType,
	})
}

func (c *WSAudioChannel) writeFrame(ctx context.Context, frame WireFrame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport: audio channel: %w", dialogue.ErrChannelNotReady)
	}

	payload, err := sonic.Marshal(frame)
	if err != nil {
		return fmt.Errorf("transport: marshal frame: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

// Flush is a no-op on the base channel; overridden by PacedEgress.
func (c *WSAudioChannel) Flush() {}

// Clear is a no-op on the base channel; overridden by PacedEgress.
func (c *WSAudioChannel) Clear() {}

// Close closes the underlying websocket, if attached.
func (c *WSAudioChannel) Close(reason string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.closed.Store(true)
	return conn.Close(websocket.StatusNormalClosure, reason)
}
