package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"

	"github.com/duplexvoice/agentcore/pkg/dialogue"
)

// EventFrame is the outbound wire shape for every event pushed over the
// event channel.
type EventFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// AgentStatusChangedData is the payload for the agent_status_changed
// event.
type AgentStatusChangedData struct {
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
}

// SetAvatarData is the payload for the set_avatar event.
type SetAvatarData struct {
	Avatar string `json:"avatar"`
}

// AgentCanSpeakData is the payload for the supplemented agent_can_speak
// event, mirrored on every speaking-state transition so a client can gate
// local echo cancellation without inferring it from status text.
type AgentCanSpeakData struct {
	CanSpeak bool `json:"can_speak"`
}

// EventChannel is a one-way websocket JSON event push to the client.
type EventChannel struct {
	conn   *websocket.Conn
	closed atomic.Bool
	mu     sync.Mutex
}

// NewEventChannel returns an unattached event channel.
func NewEventChannel() *EventChannel {
	return &EventChannel{}
}

// Connect accepts the websocket upgrade for this channel.
func (e *EventChannel) Connect(w http.ResponseWriter, r *http.Request) error {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return fmt.Errorf("transport: event channel accept: %w", err)
	}
	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()
	return nil
}

// Ready reports whether the channel is attached and not closed.
func (e *EventChannel) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn != nil && !e.closed.Load()
}

// Send pushes a named JSON event with an arbitrary data payload.
func (e *EventChannel) Send(ctx context.Context, name string, data interface{}) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport: event channel: %w", dialogue.ErrChannelNotReady)
	}

	payload, err := sonic.Marshal(EventFrame{Event: name, Data: data})
	if err != nil {
		return fmt.Errorf("transport: marshal event: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

// Close closes the underlying websocket, if attached.
func (e *EventChannel) Close(reason string) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return nil
	}
	e.closed.Store(true)
	return conn.Close(websocket.StatusNormalClosure, reason)
}
