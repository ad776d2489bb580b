// Package channel implements the bidirectional engagement channel between a
// visitor client and the triage backend. The channel survives transport
// drops: outbound events emitted while disconnected are queued and replayed
// in FIFO order once the connection is back, and reconnection is retried
// with capped exponential backoff up to a fixed attempt ceiling.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/carebridge/intake/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
	maxReconnectAttempts  = 5

	writeTimeout = 10 * time.Second
)

// ErrReconnectFailed is the terminal signal after the retry ceiling is
// exhausted. Further delivery requires a fresh Connect call.
var ErrReconnectFailed = errors.New("channel: reconnection failed")

// ErrClosed is returned by operations on a permanently closed channel
var ErrClosed = errors.New("channel: closed")

// State is the connection state of the channel
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// RetryPolicy bounds reconnection attempts
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultRetryPolicy is the production reconnect behavior
var DefaultRetryPolicy = RetryPolicy{
	InitialDelay: initialReconnectDelay,
	MaxDelay:     maxReconnectDelay,
	MaxAttempts:  maxReconnectAttempts,
}

// Handler processes one inbound event payload
type Handler func(data json.RawMessage)

// SnapshotFunc supplies the current session snapshot for outbound enrichment
type SnapshotFunc func() types.SessionSnapshot

// Channel manages the websocket connection to the triage backend
type Channel struct {
	url    string
	logger zerolog.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	state        State
	closed       bool
	reconnecting bool
	pending      []*types.Envelope // FIFO while disconnected

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	snapshot SnapshotFunc
	retry    RetryPolicy

	failureCh chan error

	// Now is overridable in tests
	Now func() time.Time

	// writeFrame performs the raw frame write; overridable in tests to
	// exercise write-failure paths deterministically
	writeFrame func(conn *websocket.Conn, data []byte) error
}

// New creates a disconnected channel pointed at the given backend URL.
// http(s) schemes are rewritten to ws(s).
func New(url string, logger zerolog.Logger) *Channel {
	if len(url) > 4 && url[:4] == "http" {
		url = "ws" + url[4:]
	}
	return &Channel{
		url:       url,
		logger:    logger.With().Str("component", "channel").Logger(),
		state:     StateDisconnected,
		retry:     DefaultRetryPolicy,
		handlers:  make(map[string]Handler),
		failureCh: make(chan error, 1),
		Now:       time.Now,
		writeFrame: func(conn *websocket.Conn, data []byte) error {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			return conn.WriteMessage(websocket.TextMessage, data)
		},
	}
}

// SetSnapshotFunc wires the session snapshot provider. Called once during
// two-phase initialization, after both the tracker and the channel exist.
func (c *Channel) SetSnapshotFunc(fn SnapshotFunc) {
	c.mu.Lock()
	c.snapshot = fn
	c.mu.Unlock()
}

// On registers a handler for a named inbound event. Registering the same
// event name again is a no-op so that reinitialization cannot double-process
// inbound messages.
func (c *Channel) On(event string, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	if _, exists := c.handlers[event]; exists {
		return
	}
	c.handlers[event] = h
}

// State returns the current connection state
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the channel is currently connected. Callers must
// check this before sending a session-start event: session starts establish
// server-side identity and must not sit in the pending queue.
func (c *Channel) Connected() bool {
	return c.State() == StateConnected
}

// Pending returns the number of queued outbound events
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// ReconnectFailures delivers the terminal signal when the retry ceiling is
// exhausted
func (c *Channel) ReconnectFailures() <-chan error {
	return c.failureCh
}

// Connect dials the backend, retrying with backoff up to the attempt
// ceiling. On success the pending queue is drained in FIFO order before any
// new send proceeds. Returns ErrReconnectFailed after the ceiling.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	return c.attemptLoop(ctx)
}

// SetRetryPolicy overrides the reconnect backoff bounds. Meant for tests and
// embedded use; call before Connect.
func (c *Channel) SetRetryPolicy(p RetryPolicy) {
	c.mu.Lock()
	c.retry = p
	c.mu.Unlock()
}

// attemptLoop performs bounded dial attempts with exponential backoff
func (c *Channel) attemptLoop(ctx context.Context) error {
	c.mu.Lock()
	retry := c.retry
	c.mu.Unlock()
	delay := retry.InitialDelay

	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err == nil {
			c.establish(conn)
			return nil
		}

		c.logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("connection attempt failed")

		if attempt == retry.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			c.setDisconnected()
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > retry.MaxDelay {
			delay = retry.MaxDelay
		}
	}

	c.setDisconnected()
	select {
	case c.failureCh <- ErrReconnectFailed:
	default:
	}
	c.logger.Warn().Int("attempts", retry.MaxAttempts).Msg("reconnection failed")
	return ErrReconnectFailed
}

// establish installs the connection, drains the pending queue in FIFO order
// and starts the read loop. The lock is held across the drain so no new send
// can interleave with replayed events.
func (c *Channel) establish(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		conn.Close()
		return
	}

	c.conn = conn
	c.state = StateConnected
	c.reconnecting = false

	queued := c.pending
	c.pending = nil
	for i, env := range queued {
		if err := c.writeEnvelope(conn, env); err != nil {
			// Put the failing envelope and the undrained remainder back, in
			// order, ahead of anything queued meanwhile; the read loop's
			// failure path drives the next reconnect
			c.pending = append(queued[i:], c.pending...)
			c.logger.Warn().Err(err).Int("requeued", len(c.pending)).Msg("drain interrupted")
			break
		}
	}

	c.logger.Debug().Int("drained", len(queued)-len(c.pending)).Msg("channel connected")
	go c.readLoop(conn)
}

func (c *Channel) setDisconnected() {
	c.mu.Lock()
	c.state = StateDisconnected
	c.reconnecting = false
	c.mu.Unlock()
}

// Send emits a named event. Connected channels transmit immediately with the
// session snapshot and a timestamp added; otherwise the event joins the
// pending queue instead of being dropped.
func (c *Channel) Send(event string, payload interface{}) error {
	env, err := c.buildEnvelope(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateConnected || c.conn == nil {
		c.pending = append(c.pending, env)
		n := len(c.pending)
		c.mu.Unlock()
		c.logger.Debug().Str("event", event).Int("pending", n).Msg("event queued")
		return nil
	}

	conn := c.conn
	err = c.writeEnvelope(conn, env)
	if err != nil {
		// Keep the event; the disconnect path will replay it
		c.pending = append(c.pending, env)
	}
	c.mu.Unlock()

	if err != nil {
		c.handleDisconnect(conn, err)
	}
	return nil
}

// buildEnvelope frames the payload, enriching it with the current session
// snapshot and a timestamp when the payload does not carry them already
func (c *Channel) buildEnvelope(event string, payload interface{}) (*types.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]json.RawMessage)
	if payload != nil {
		if err := json.Unmarshal(raw, &fields); err != nil {
			// Non-object payloads go out untouched
			return &types.Envelope{Event: event, Data: raw}, nil
		}
	}

	c.mu.Lock()
	snapshot := c.snapshot
	c.mu.Unlock()

	if snapshot != nil {
		if _, ok := fields["session"]; !ok {
			if data, err := json.Marshal(snapshot()); err == nil {
				fields["session"] = data
			}
		}
	}
	if ts, ok := fields["timestamp"]; !ok || string(ts) == "0" {
		fields["timestamp"] = json.RawMessage(strconv.FormatInt(c.Now().UnixMilli(), 10))
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return &types.Envelope{Event: event, Data: data}, nil
}

// writeEnvelope writes one frame with a deadline. Callers hold c.mu.
func (c *Channel) writeEnvelope(conn *websocket.Conn, env *types.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.writeFrame(conn, data)
}

// readLoop dispatches inbound events until the connection drops
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		var env types.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Warn().Err(err).Msg("discarding malformed inbound frame")
			continue
		}

		c.handlersMu.RLock()
		h := c.handlers[env.Event]
		c.handlersMu.RUnlock()

		if h == nil {
			c.logger.Debug().Str("event", env.Event).Msg("no handler for inbound event")
			continue
		}
		h(env.Data)
	}
}

// handleDisconnect transitions to disconnected and starts bounded background
// reconnection unless one is already running
func (c *Channel) handleDisconnect(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn.Close()
	c.conn = nil
	c.state = StateConnecting
	already := c.reconnecting
	c.reconnecting = true
	c.mu.Unlock()

	c.logger.Debug().Err(cause).Msg("connection lost")
	if !already {
		go c.attemptLoop(context.Background())
	}
}

// Close permanently closes the channel. Pending events are kept in memory
// for inspection but will never be delivered.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.state = StateDisconnected
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
