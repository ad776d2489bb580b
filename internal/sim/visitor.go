package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/carebridge/intake/internal/channel"
	"github.com/carebridge/intake/internal/session"
	"github.com/carebridge/intake/internal/tracker"
	"github.com/carebridge/intake/internal/types"
	"github.com/rs/zerolog"
)

// page is one stop on a simulated journey
type page struct {
	id       string
	name     string
	pageType types.PageType
}

var sitePages = []page{
	{"home", "Home", types.PageTypeLanding},
	{"cardiology", "Cardiology", types.PageTypeDepartment},
	{"dermatology", "Dermatology", types.PageTypeDepartment},
	{"orthopedics", "Orthopedics", types.PageTypeDepartment},
	{"pediatrics", "Pediatrics", types.PageTypeDepartment},
	{"dental", "Dental Care", types.PageTypeDepartment},
	{"about", "About Us", types.PageTypeGeneric},
	{"contact", "Contact", types.PageTypeContact},
}

var chatMessages = []string{
	"Hello, I have a question about an appointment",
	"I have been having chest pain when climbing stairs",
	"Do you take new patients at the moment?",
	"How soon could I get a consultation?",
}

var contactMessages = []string{
	"You can reach me at %s@example.com",
	"My phone number is 0171 555 %04d",
}

// Visitor drives one full client stack (session store, tracker, channel)
// through a randomized journey against the server
type Visitor struct {
	id        int
	serverURL string
	rng       *rand.Rand
	logger    zerolog.Logger
	stats     *Stats
}

// NewVisitor creates a visitor with its own RNG stream
func NewVisitor(id int, serverURL string, seed int64, stats *Stats, logger zerolog.Logger) *Visitor {
	return &Visitor{
		id:        id,
		serverURL: serverURL,
		rng:       rand.New(rand.NewSource(seed)),
		logger:    logger.With().Int("visitor", id).Logger(),
		stats:     stats,
	}
}

// Run executes one complete journey, then returns. The context aborts the
// journey early.
func (v *Visitor) Run(ctx context.Context) {
	v.stats.visitorStarted()
	defer v.stats.visitorFinished()

	manager := session.NewManager(session.NewMemStore(), v.logger)
	trk := tracker.New(manager, v.logger)
	trk.Init()

	ch := channel.New(v.serverURL, v.logger)
	ch.SetRetryPolicy(channel.RetryPolicy{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		MaxAttempts:  3,
	})
	trk.AttachChannel(ch)
	defer ch.Close()

	if err := ch.Connect(ctx); err != nil {
		v.logger.Debug().Err(err).Msg("could not connect, browsing offline")
	}

	// Browse a few pages
	pageCount := 2 + v.rng.Intn(5)
	for i := 0; i < pageCount; i++ {
		if sleepOrDone(ctx, v.think()) {
			return
		}
		p := sitePages[v.rng.Intn(len(sitePages))]
		trk.PageView(p.id, p.name, p.pageType)
		v.stats.pageViewed()

		// Scroll through the page in a few steps
		depth := 20 + v.rng.Intn(81)
		for pct := 20; pct <= depth; pct += 20 + v.rng.Intn(20) {
			trk.Scroll(pct)
		}

		if v.rng.Float64() < 0.4 {
			trk.Click("cta-button", p.name)
		}

		trk.PageExit()
	}

	// Engaged visitors open a chat
	if ch.Connected() && v.rng.Float64() < 0.6 {
		v.runChat(ctx, trk)
	}

	trk.EndSession()
}

// runChat performs a short consultation over the attached channel
func (v *Visitor) runChat(ctx context.Context, trk *tracker.Tracker) {
	if err := trk.StartChat("10.0.0.1", "visitorsim/1.0"); err != nil {
		v.logger.Debug().Err(err).Msg("chat start failed")
		return
	}
	v.stats.chatStarted()

	msgCount := 1 + v.rng.Intn(3)
	for i := 0; i < msgCount; i++ {
		if sleepOrDone(ctx, v.think()) {
			return
		}
		trk.SendMessage(chatMessages[v.rng.Intn(len(chatMessages))])
		v.stats.messageSent()
	}

	// Most visitors leave contact details
	if v.rng.Float64() < 0.8 {
		if sleepOrDone(ctx, v.think()) {
			return
		}
		var msg string
		if v.rng.Intn(2) == 0 {
			msg = fmt.Sprintf(contactMessages[0], fmt.Sprintf("visitor%d", v.id))
		} else {
			msg = fmt.Sprintf(contactMessages[1], v.rng.Intn(10000))
		}
		trk.SendMessage(msg)
		v.stats.messageSent()
	}

	trk.EndChat("user_ended")
	v.stats.chatEnded()
}

// think returns a short randomized dwell time
func (v *Visitor) think() time.Duration {
	return time.Duration(200+v.rng.Intn(800)) * time.Millisecond
}

// sleepOrDone sleeps for d and reports whether the context was canceled
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(d):
		return false
	}
}
