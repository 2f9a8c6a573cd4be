// Package vad wraps a remote voice-activity-detection websocket endpoint
// with the utterance-segmentation rules the dialogue core depends on.
package vad

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"

	"github.com/duplexvoice/agentcore/pkg/dialogue"
)

// Event is the raw decision frame the remote VAD emits, in 16kHz sample
// indices.
type Event struct {
	Start   *int `json:"start,omitempty"`
	End     *int `json:"end,omitempty"`
	Current *int `json:"current,omitempty"`
}

const (
	// DefaultVoicedMsToInterrupt is the default threshold of continuous
	// voiced samples (at 16kHz) since a finalized utterance before the
	// core treats renewed speech as a barge-in interrupt.
	DefaultVoicedMsToInterrupt = 1000
	// DefaultLeftPadMs is prepended to every finalized utterance's start
	// sample when slicing the rolling buffer.
	DefaultLeftPadMs = 300

	sampleRateHz = 16000
)

// Client wraps one remote VAD websocket connection for one session.
type Client struct {
	url               string
	voicedMsToInterrupt int
	leftPadMs         int

	mu            sync.Mutex
	conn          *websocket.Conn
	buffer        []byte // rolling PCM16 buffer, 2 bytes/sample
	start         int
	end           int
	haveEnd       bool
	lastUtterance []byte
}

// NewClient builds a VAD client for the given websocket URL, using
// spec-default thresholds unless overridden with the With* options.
func NewClient(wsURL string) *Client {
	return &Client{
		url:                 wsURL,
		voicedMsToInterrupt: DefaultVoicedMsToInterrupt,
		leftPadMs:           DefaultLeftPadMs,
	}
}

// WithVoicedMsToInterrupt overrides the barge-in continuous-voicing
// threshold.
func (c *Client) WithVoicedMsToInterrupt(ms int) *Client {
	c.voicedMsToInterrupt = ms
	return c
}

// WithLeftPadMs overrides the left-pad applied to finalized utterances.
func (c *Client) WithLeftPadMs(ms int) *Client {
	c.leftPadMs = ms
	return c
}

func (c *Client) voicedSamplesToInterrupt() int {
	return c.voicedMsToInterrupt * sampleRateHz / 1000
}

func (c *Client) leftPadSamples() int {
	return c.leftPadMs * sampleRateHz / 1000
}

// Setup opens the websocket connection to the remote VAD.
func (c *Client) Setup(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("vad: dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Call streams one PCM16@16kHz chunk to the remote detector and appends
// it to the local rolling buffer used for utterance slicing.
func (c *Client) Call(ctx context.Context, chunk []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.buffer = append(c.buffer, chunk...)
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("vad: call: %w", dialogue.ErrChannelNotReady)
	}
	return conn.Write(ctx, websocket.MessageBinary, chunk)
}

// Next blocks for the remote VAD's next message and applies the local
// interrupt/finalization rules, returning whether this is a barge-in
// interrupt and the finalized utterance, if any. It returns an error when
// the connection is not set up or the read fails (e.g. it was closed).
func (c *Client) Next(ctx context.Context) (userSpeaking bool, utterance []byte, err error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false, nil, fmt.Errorf("vad: next: %w", dialogue.ErrChannelNotReady)
	}

	_, payload, readErr := conn.Read(ctx)
	if readErr != nil {
		return false, nil, fmt.Errorf("vad: read: %w", readErr)
	}

	var ev Event
	if decodeErr := sonic.Unmarshal(payload, &ev); decodeErr != nil {
		return false, nil, fmt.Errorf("vad: decode event: %w: %v", dialogue.ErrProtocolViolation, decodeErr)
	}

	return c.apply(ev), c.lastUtterance, nil
}

// apply implements the §4.3 decision rules against one Event and updates
// the client's (start, end) memory. It returns whether this observation
// is a barge-in interrupt.
func (c *Client) apply(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.start
	end := c.end
	if ev.Start != nil {
		start = *ev.Start
	}
	if ev.End != nil {
		end = *ev.End
	}
	current := end
	if ev.Current != nil {
		current = *ev.Current
	}

	interrupt := false
	c.lastUtterance = nil

	if start > end {
		if c.haveEnd && end > 0 && current-start > c.voicedSamplesToInterrupt() {
			interrupt = true
		}
	} else {
		if start != c.start || end != c.end {
			from := (start - c.leftPadSamples()) * 2
			if from < 0 {
				from = 0
			}
			to := end * 2
			if to > len(c.buffer) {
				to = len(c.buffer)
			}
			if to > from {
				c.lastUtterance = append([]byte(nil), c.buffer[from:to]...)
			}
		}
		if end > 0 {
			c.haveEnd = true
		}
	}

	c.start = start
	c.end = end

	return interrupt
}

// Close closes the underlying websocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}
