package session

import (
	"encoding/json"
	"time"

	"github.com/carebridge/intake/internal/types"
	"github.com/rs/zerolog"
)

// TTL is the fixed inactivity window after which a persisted session is
// discarded instead of resumed
const TTL = 30 * time.Minute

// scrollQuantile is the bucket size for notable scroll changes
const scrollQuantile = 25

// Manager owns one visitor session: lifecycle, mutation and persistence.
// All methods are synchronous and meant for a single client context; the
// manager never shares a session across visitors.
type Manager struct {
	store  Store
	sess   *types.Session
	logger zerolog.Logger

	// Now is overridable in tests
	Now func() time.Time
}

// NewManager creates a Manager on top of the given store
func NewManager(store Store, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.With().Str("component", "session").Logger(),
		Now:    time.Now,
	}
}

// LoadOrCreate returns the persisted session if it is still within TTL,
// otherwise a fresh one. Corrupt or unreadable persisted state is treated as
// absent and never surfaces as an error.
func (m *Manager) LoadOrCreate() *types.Session {
	now := m.Now().UnixMilli()

	data, err := m.store.Load()
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to read persisted session, starting fresh")
	} else if data != nil {
		var sess types.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			m.logger.Warn().Err(err).Msg("corrupt persisted session, starting fresh")
		} else if sess.SessionID != "" && !expired(&sess, now) {
			m.normalize(&sess)
			m.sess = &sess
			m.logger.Debug().Str("session_id", sess.SessionID).Msg("session resumed")
			return m.sess
		}
	}

	m.sess = &types.Session{
		SessionID:          NewSessionID(now),
		StartTime:          now,
		LastActivity:       now,
		Pages:              []types.PageVisit{},
		ScrollDepthByPage:  make(map[string]int),
		Clicks:             []types.Click{},
		DepartmentInterest: make(map[string]int),
	}
	m.save()
	m.logger.Debug().Str("session_id", m.sess.SessionID).Msg("session created")
	return m.sess
}

// expired checks the 30-minute window against the last recorded activity,
// falling back to the session start when no activity was ever saved
func expired(sess *types.Session, nowMillis int64) bool {
	ref := sess.LastActivity
	if ref == 0 {
		ref = sess.StartTime
	}
	return nowMillis-ref >= TTL.Milliseconds()
}

// normalize repairs nil collections from older or partial snapshots
func (m *Manager) normalize(sess *types.Session) {
	if sess.ScrollDepthByPage == nil {
		sess.ScrollDepthByPage = make(map[string]int)
	}
	if sess.DepartmentInterest == nil {
		sess.DepartmentInterest = make(map[string]int)
	}
	if sess.Pages == nil {
		sess.Pages = []types.PageVisit{}
	}
	if sess.Clicks == nil {
		sess.Clicks = []types.Click{}
	}
}

// Session returns the current session, loading or creating one if needed
func (m *Manager) Session() *types.Session {
	if m.sess == nil {
		return m.LoadOrCreate()
	}
	return m.sess
}

// RecordPageView appends a new page visit and makes it the current one.
// Department pages also bump the department interest counter.
func (m *Manager) RecordPageView(pageID, displayName string, pageType types.PageType) *types.PageVisit {
	sess := m.Session()
	now := m.Now().UnixMilli()

	sess.Pages = append(sess.Pages, types.PageVisit{
		PageID:      pageID,
		DisplayName: displayName,
		Type:        pageType,
		EntryTime:   now,
	})

	if pageType == types.PageTypeDepartment {
		sess.DepartmentInterest[pageID]++
	}

	m.save()
	return &sess.Pages[len(sess.Pages)-1]
}

// CloseCurrentPageView closes the open visit, computing its time spent and
// accumulating it into the session total. No-op without an open visit.
func (m *Manager) CloseCurrentPageView() {
	sess := m.Session()
	visit := sess.CurrentVisit()
	if visit == nil {
		return
	}

	now := m.Now().UnixMilli()
	if now < visit.EntryTime {
		now = visit.EntryTime
	}
	visit.ExitTime = &now
	visit.TimeSpent = now - visit.EntryTime
	sess.TotalTimeSpent += visit.TimeSpent

	m.save()
}

// RecordScroll records a scroll depth observation for the current visit and
// reports whether the visit crossed a 25% quantile boundary. The stored value
// is always the maximum seen; the notability signal only throttles emission.
func (m *Manager) RecordScroll(percentage int) (notable bool) {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}

	sess := m.Session()
	visit := sess.CurrentVisit()
	if visit == nil {
		return false
	}

	if percentage > visit.ScrollDepth {
		notable = percentage/scrollQuantile > visit.ScrollDepth/scrollQuantile
		visit.ScrollDepth = percentage
		if percentage > sess.ScrollDepthByPage[visit.PageID] {
			sess.ScrollDepthByPage[visit.PageID] = percentage
		}
		m.save()
	}
	return notable
}

// RecordClick appends a click and attributes it to the current visit
func (m *Manager) RecordClick(element, label string) {
	sess := m.Session()
	now := m.Now().UnixMilli()

	sess.Clicks = append(sess.Clicks, types.Click{
		Element:   element,
		Label:     label,
		Timestamp: now,
	})

	if visit := sess.CurrentVisit(); visit != nil {
		visit.Interactions++
	}

	m.save()
}

// End closes the open visit and discards the persisted session
func (m *Manager) End() {
	m.CloseCurrentPageView()
	if err := m.store.Clear(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to clear persisted session")
	}
	m.sess = nil
}

// save persists the full snapshot, refreshing lastActivity
func (m *Manager) save() {
	if m.sess == nil {
		return
	}
	m.sess.LastActivity = m.Now().UnixMilli()

	data, err := json.Marshal(m.sess)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to marshal session")
		return
	}
	if err := m.store.Save(data); err != nil {
		m.logger.Warn().Err(err).Msg("failed to persist session")
	}
}
