package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/carebridge/intake/internal/config"
	"github.com/carebridge/intake/internal/metrics"
	"github.com/carebridge/intake/internal/triage"
	"github.com/carebridge/intake/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// VisitorClient represents one visitor engagement channel connection
type VisitorClient struct {
	// Session ID learned from the first chatStart or behaviorUpdate
	sessionID string

	conn   *websocket.Conn
	triage *triage.Service
	cfg    *config.Config
	logger zerolog.Logger

	// Buffered channel of outbound frames
	send chan []byte

	// done channel to signal client shutdown
	done chan struct{}

	// closeOnce ensures send channel is closed only once
	closeOnce sync.Once
}

// NewVisitorClient creates a client for an upgraded connection
func NewVisitorClient(conn *websocket.Conn, svc *triage.Service, cfg *config.Config, logger zerolog.Logger) *VisitorClient {
	return &VisitorClient{
		conn:   conn,
		triage: svc,
		cfg:    cfg,
		logger: logger,
		send:   make(chan []byte, 64),
		done:   make(chan struct{}),
	}
}

// Start starts the client's read and write pumps
func (c *VisitorClient) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump pumps frames from the websocket connection into the triage service
func (c *VisitorClient) readPump() {
	defer func() {
		close(c.done)
		c.Close()
		c.conn.Close()
		metrics.Get().RecordWebSocketDisconnect()
		if c.sessionID != "" {
			c.triage.Disconnect(c.sessionID)
		}
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug().Err(err).Str("session_id", c.sessionID).Msg("visitor websocket read error")
			}
			break
		}

		metrics.Get().RecordWebSocketMessage()
		c.handleFrame(message)
	}
}

// handleFrame decodes one envelope and dispatches it by event name
func (c *VisitorClient) handleFrame(message []byte) {
	metrics.Get().RecordEventReceived()

	var env types.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		metrics.Get().RecordEventError()
		c.logger.Debug().Err(err).Msg("failed to parse envelope")
		c.sendEvent(types.EventError, types.ErrorMsg{Message: "malformed message"})
		return
	}

	switch env.Event {
	case types.EventChatStart:
		var msg types.ChatStartMsg
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			metrics.Get().RecordEventError()
			c.sendEvent(types.EventError, types.ErrorMsg{Message: "malformed chatStart"})
			return
		}
		started := c.triage.StartChat(msg)
		c.sessionID = started.SessionID
		c.sendEvent(types.EventChatStarted, started)

	case types.EventUserMessage:
		var msg types.UserMessageMsg
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			metrics.Get().RecordEventError()
			c.sendEvent(types.EventError, types.ErrorMsg{Message: "malformed userMessage"})
			return
		}
		if msg.SessionID == "" {
			msg.SessionID = c.sessionID
		}
		reply, processed := c.triage.HandleMessage(msg)
		c.sendEvent(types.EventBotMessage, reply)
		if processed != nil {
			c.sendEvent(types.EventPatientProcessed, *processed)
		}

	case types.EventChatEnd:
		var msg types.ChatEndMsg
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			metrics.Get().RecordEventError()
			c.sendEvent(types.EventError, types.ErrorMsg{Message: "malformed chatEnd"})
			return
		}
		if msg.SessionID == "" {
			msg.SessionID = c.sessionID
		}
		ended := c.triage.EndChat(msg)
		c.sendEvent(types.EventChatEnded, ended)

	case types.EventBehaviorUpdate:
		var msg types.BehaviorUpdateMsg
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			metrics.Get().RecordEventError()
			c.logger.Debug().Err(err).Msg("failed to parse behaviorUpdate")
			return
		}
		if c.sessionID == "" && msg.Session != nil {
			c.sessionID = msg.Session.SessionID
		}
		c.logger.Debug().
			Str("session_id", c.sessionID).
			Str("kind", msg.Event).
			Msg("behavior update")

	default:
		c.logger.Debug().Str("event", env.Event).Msg("unknown event")
		c.sendEvent(types.EventError, types.ErrorMsg{Message: "unknown event: " + env.Event})
		return
	}

	metrics.Get().RecordEventProcessed()
}

// sendEvent marshals an envelope onto the send channel
func (c *VisitorClient) sendEvent(event string, payload interface{}) {
	env, err := types.NewEnvelope(event, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("failed to build envelope")
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("failed to marshal envelope")
		return
	}
	c.safeSend(data)
}

// writePump pumps frames from the send channel to the websocket connection
func (c *VisitorClient) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				metrics.Get().RecordWebSocketError()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close closes the client's send channel so the write pump drains and exits
// with a close frame. Called from the read pump teardown; idempotent.
func (c *VisitorClient) Close() {
	c.closeOnce.Do(func() {
		defer func() {
			recover() // absorb panic if channel was already closed
		}()
		close(c.send)
	})
}

// safeSend attempts to enqueue a frame without blocking the read path
func (c *VisitorClient) safeSend(data []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}
