// Package tracker ties the session store, the scoring engine and the
// engagement channel together on the visitor side. Construction is explicit
// and two-phase: build the tracker and the channel independently, then wire
// them with AttachChannel. Nothing is constructed implicitly at import time.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carebridge/intake/internal/channel"
	"github.com/carebridge/intake/internal/scoring"
	"github.com/carebridge/intake/internal/session"
	"github.com/carebridge/intake/internal/types"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned when a chat is started without a live channel.
// Chat starts establish server-side session identity, so they must never sit
// in the pending queue behind message events that reference them.
var ErrNotConnected = errors.New("tracker: channel not connected")

// DefaultHeartbeatInterval paces the periodic behavior heartbeat
const DefaultHeartbeatInterval = 30 * time.Second

// Emitter is the outbound slice of the channel the tracker needs
type Emitter interface {
	Send(event string, payload interface{}) error
	Connected() bool
	SetSnapshotFunc(fn channel.SnapshotFunc)
}

// Tracker records visitor behavior into the session store and mirrors every
// tracked interaction onto the engagement channel
type Tracker struct {
	manager *session.Manager
	logger  zerolog.Logger

	mu sync.Mutex
	ch Emitter

	// Now is overridable in tests
	Now func() time.Time
}

// New creates a Tracker around an initialized session manager. The channel
// is attached separately once it exists.
func New(manager *session.Manager, logger zerolog.Logger) *Tracker {
	return &Tracker{
		manager: manager,
		logger:  logger.With().Str("component", "tracker").Logger(),
		Now:     time.Now,
	}
}

// Init loads or creates the session and announces it
func (t *Tracker) Init() *types.Session {
	sess := t.manager.LoadOrCreate()
	t.emit(types.BehaviorSessionStarted, nil)
	return sess
}

// AttachChannel wires the channel after both components exist and hands it
// the snapshot provider used for outbound enrichment
func (t *Tracker) AttachChannel(ch Emitter) {
	t.mu.Lock()
	t.ch = ch
	t.mu.Unlock()
	ch.SetSnapshotFunc(t.Snapshot)
}

// Snapshot returns the current scored session snapshot
func (t *Tracker) Snapshot() types.SessionSnapshot {
	return scoring.Snapshot(t.manager.Session(), t.Now())
}

// Session exposes the underlying session
func (t *Tracker) Session() *types.Session {
	return t.manager.Session()
}

// PageView records a page visit and emits a page_view update
func (t *Tracker) PageView(pageID, displayName string, pageType types.PageType) {
	t.manager.RecordPageView(pageID, displayName, pageType)
	t.emit(types.BehaviorPageView, map[string]string{
		"pageId":      pageID,
		"displayName": displayName,
		"type":        string(pageType),
	})
}

// PageExit closes the current visit and emits a page_exit update
func (t *Tracker) PageExit() {
	sess := t.manager.Session()
	visit := sess.CurrentVisit()
	if visit == nil {
		return
	}
	pageID := visit.PageID
	t.manager.CloseCurrentPageView()
	t.emit(types.BehaviorPageExit, map[string]string{"pageId": pageID})
}

// Scroll records a scroll observation; only quantile-boundary crossings are
// emitted so the channel is not flooded by raw scroll events
func (t *Tracker) Scroll(percentage int) {
	if t.manager.RecordScroll(percentage) {
		t.emit(types.BehaviorScroll, map[string]int{"depth": percentage})
	}
}

// Click records a click and emits a click update
func (t *Tracker) Click(element, label string) {
	t.manager.RecordClick(element, label)
	t.emit(types.BehaviorClick, map[string]string{
		"element": element,
		"label":   label,
	})
}

// StartChat opens a consultation session. The channel must be connected
// right now; queuing a chatStart would let later events reference a session
// the server has never seen.
func (t *Tracker) StartChat(ipAddress, userAgent string) error {
	t.mu.Lock()
	ch := t.ch
	t.mu.Unlock()

	if ch == nil || !ch.Connected() {
		return ErrNotConnected
	}

	now := t.Now()
	msg := types.ChatStartMsg{
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		Timestamp:    now.UnixMilli(),
		BehaviorData: scoring.Summary(t.manager.Session(), now),
	}
	if err := ch.Send(types.EventChatStart, msg); err != nil {
		return fmt.Errorf("failed to start chat: %w", err)
	}
	return nil
}

// SendMessage emits one visitor chat message
func (t *Tracker) SendMessage(message string) error {
	t.mu.Lock()
	ch := t.ch
	t.mu.Unlock()
	if ch == nil {
		return ErrNotConnected
	}

	return ch.Send(types.EventUserMessage, types.UserMessageMsg{
		SessionID: t.manager.Session().SessionID,
		Message:   message,
		Timestamp: t.Now().UnixMilli(),
	})
}

// EndChat closes the consultation session
func (t *Tracker) EndChat(reason string) error {
	t.mu.Lock()
	ch := t.ch
	t.mu.Unlock()
	if ch == nil {
		return ErrNotConnected
	}

	return ch.Send(types.EventChatEnd, types.ChatEndMsg{
		SessionID: t.manager.Session().SessionID,
		Reason:    reason,
		Timestamp: t.Now().UnixMilli(),
	})
}

// EndSession emits session_ended and discards local state
func (t *Tracker) EndSession() {
	t.emit(types.BehaviorSessionEnded, nil)
	t.manager.End()
}

// RunHeartbeat emits periodic heartbeat updates until the context is done
func (t *Tracker) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.emit(types.BehaviorHeartbeat, nil)
		}
	}
}

// emit sends one behaviorUpdate. Without an attached channel the update is
// dropped locally; the session store already holds the data.
func (t *Tracker) emit(kind string, data interface{}) {
	t.mu.Lock()
	ch := t.ch
	t.mu.Unlock()
	if ch == nil {
		t.logger.Debug().Str("kind", kind).Msg("no channel attached, update not emitted")
		return
	}

	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			t.logger.Error().Err(err).Str("kind", kind).Msg("failed to encode update data")
			return
		}
		raw = encoded
	}

	if err := ch.Send(types.EventBehaviorUpdate, types.BehaviorUpdateMsg{
		Event: kind,
		Data:  raw,
	}); err != nil {
		t.logger.Warn().Err(err).Str("kind", kind).Msg("failed to emit behavior update")
	}
}
