package sim

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrAlreadyRunning = errors.New("simulation already running")
	ErrNotRunning     = errors.New("simulation not running")
)

// Stats counts simulator activity. All counters are atomic.
type Stats struct {
	VisitorsStarted  int64
	VisitorsFinished int64
	PagesViewed      int64
	ChatsStarted     int64
	ChatsEnded       int64
	MessagesSent     int64
}

func (s *Stats) visitorStarted()  { atomic.AddInt64(&s.VisitorsStarted, 1) }
func (s *Stats) visitorFinished() { atomic.AddInt64(&s.VisitorsFinished, 1) }
func (s *Stats) pageViewed()      { atomic.AddInt64(&s.PagesViewed, 1) }
func (s *Stats) chatStarted()     { atomic.AddInt64(&s.ChatsStarted, 1) }
func (s *Stats) chatEnded()       { atomic.AddInt64(&s.ChatsEnded, 1) }
func (s *Stats) messageSent()     { atomic.AddInt64(&s.MessagesSent, 1) }

// Snapshot returns the counters as a map for the control API
func (s *Stats) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"visitors_started":  atomic.LoadInt64(&s.VisitorsStarted),
		"visitors_finished": atomic.LoadInt64(&s.VisitorsFinished),
		"pages_viewed":      atomic.LoadInt64(&s.PagesViewed),
		"chats_started":     atomic.LoadInt64(&s.ChatsStarted),
		"chats_ended":       atomic.LoadInt64(&s.ChatsEnded),
		"messages_sent":     atomic.LoadInt64(&s.MessagesSent),
	}
}

// Simulator spawns a steady population of concurrent visitors. Each visitor
// runs one journey and is replaced by a fresh one, keeping the configured
// concurrency level until stopped.
type Simulator struct {
	serverURL string
	logger    zerolog.Logger
	stats     *Stats

	mu         sync.Mutex
	running    bool
	target     int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	nextID     int
	seedSource int64
}

// NewSimulator creates a simulator targeting the given websocket URL
func NewSimulator(serverURL string, logger zerolog.Logger) *Simulator {
	return &Simulator{
		serverURL:  serverURL,
		logger:     logger.With().Str("component", "simulator").Logger(),
		stats:      &Stats{},
		seedSource: time.Now().UnixNano(),
	}
}

// Start launches the requested number of concurrent visitors
func (s *Simulator) Start(concurrency int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = ctx
	s.cancel = cancel
	s.running = true
	s.target = concurrency

	for i := 0; i < concurrency; i++ {
		s.spawnLocked(ctx, i)
	}

	s.logger.Info().Int("concurrency", concurrency).Msg("simulation started")
	return nil
}

// spawnLocked runs one visitor slot: each finished journey is replaced by a
// new visitor while the slot index is below the target.
func (s *Simulator) spawnLocked(ctx context.Context, slot int) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			s.mu.Lock()
			if !s.running || slot >= s.target {
				s.mu.Unlock()
				return
			}
			s.nextID++
			id := s.nextID
			s.seedSource++
			seed := s.seedSource
			s.mu.Unlock()

			v := NewVisitor(id, s.serverURL, seed, s.stats, s.logger)
			v.Run(ctx)
		}
	}()
}

// Scale adjusts the number of concurrent visitor slots
func (s *Simulator) Scale(concurrency int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}

	// Growing spawns new slots under the running context; shrinking needs
	// nothing extra, slots observe s.target on each loop iteration and exit
	if concurrency > s.target {
		for i := s.target; i < concurrency; i++ {
			s.spawnLocked(s.ctx, i)
		}
	}
	s.target = concurrency

	s.logger.Info().Int("concurrency", concurrency).Msg("simulation scaled")
	return nil
}

// Stop cancels all visitors and waits for them to finish
func (s *Simulator) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.logger.Info().Msg("simulation stopped")
	return nil
}

// Running reports whether the simulation is active
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Target returns the configured concurrency
func (s *Simulator) Target() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Stats returns the live counters
func (s *Simulator) Stats() *Stats {
	return s.stats
}
