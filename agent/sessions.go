package agent

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultIdleTTL is how long an unused widget is kept.
	DefaultIdleTTL = 30 * time.Minute

	// DefaultMaxWidgets bounds the number of live widgets.
	DefaultMaxWidgets = 10000

	sweepInterval = time.Minute
)

type widgetKey struct {
	session string
	agent   string
}

type widgetEntry struct {
	widget   *Widget
	lastUsed time.Time
}

// Sessions keeps one widget per session and agent. Widgets unused for IdleTTL
// are dropped, and when MaxWidgets is reached the least recently used idle
// widget makes room. Dropped transcripts that were never closed are lost.
type Sessions struct {
	registry   *Registry
	responder  Responder
	saver      HistorySaver
	notifier   CloseNotifier
	now        func() time.Time
	idleTTL    time.Duration
	maxWidgets int
	logger     *slog.Logger

	mu        sync.Mutex
	widgets   map[widgetKey]*widgetEntry
	lastSweep time.Time
}

// SessionsConfig configures Sessions.
type SessionsConfig struct {
	Registry  *Registry
	Responder Responder
	Saver     HistorySaver
	Notifier  CloseNotifier
	Now       func() time.Time

	// IdleTTL defaults to DefaultIdleTTL.
	IdleTTL time.Duration

	// MaxWidgets defaults to DefaultMaxWidgets.
	MaxWidgets int

	Logger *slog.Logger
}

// NewSessions creates an empty session table.
func NewSessions(cfg SessionsConfig) *Sessions {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.MaxWidgets <= 0 {
		cfg.MaxWidgets = DefaultMaxWidgets
	}
	return &Sessions{
		registry:   cfg.Registry,
		responder:  cfg.Responder,
		saver:      cfg.Saver,
		notifier:   cfg.Notifier,
		now:        cfg.Now,
		idleTTL:    cfg.IdleTTL,
		maxWidgets: cfg.MaxWidgets,
		logger:     cfg.Logger,
		widgets:    make(map[widgetKey]*widgetEntry),
	}
}

// Registry returns the agent catalog.
func (s *Sessions) Registry() *Registry {
	return s.registry
}

// Widget returns the widget of agentID in sessionID, creating it if needed.
func (s *Sessions) Widget(sessionID, agentID string) (*Widget, error) {
	def, err := s.definition(sessionID, agentID)
	if err != nil {
		return nil, err
	}

	key := widgetKey{session: sessionID, agent: agentID}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.widgets[key]; ok {
		e.lastUsed = now
		return e.widget, nil
	}

	if len(s.widgets) >= s.maxWidgets || now.Sub(s.lastSweep) >= sweepInterval {
		s.sweepLocked(now)
	}
	if len(s.widgets) >= s.maxWidgets {
		s.evictOldestLocked()
	}

	w := NewWidget(WidgetConfig{
		Definition: def,
		SessionID:  sessionID,
		Responder:  s.responder,
		Saver:      s.saver,
		Notifier:   s.notifier,
		Now:        s.now,
		Logger:     s.logger.With("session_id", sessionID),
	})
	s.widgets[key] = &widgetEntry{widget: w, lastUsed: now}
	return w, nil
}

// Lookup returns the existing widget of agentID in sessionID without creating
// one.
func (s *Sessions) Lookup(sessionID, agentID string) (*Widget, bool, error) {
	if _, err := s.definition(sessionID, agentID); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.widgets[widgetKey{session: sessionID, agent: agentID}]
	if !ok {
		return nil, false, nil
	}
	e.lastUsed = s.now()
	return e.widget, true, nil
}

func (s *Sessions) definition(sessionID, agentID string) (*Definition, error) {
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	def, ok := s.registry.Get(agentID)
	if !ok {
		return nil, ErrUnknownAgent
	}
	return def, nil
}

// sweepLocked drops widgets idle for longer than the TTL. Widgets waiting for
// an answer are kept.
func (s *Sessions) sweepLocked(now time.Time) {
	s.lastSweep = now
	for key, e := range s.widgets {
		if now.Sub(e.lastUsed) > s.idleTTL && e.widget.State() != StateSending {
			delete(s.widgets, key)
		}
	}
}

func (s *Sessions) evictOldestLocked() {
	var (
		oldest   widgetKey
		oldestAt time.Time
		found    bool
	)
	for key, e := range s.widgets {
		if e.widget.State() == StateSending {
			continue
		}
		if !found || e.lastUsed.Before(oldestAt) {
			oldest, oldestAt, found = key, e.lastUsed, true
		}
	}
	if found {
		delete(s.widgets, oldest)
		s.logger.Warn("widget limit reached, evicting least recently used",
			"session_id", oldest.session,
			"agent_id", oldest.agent,
		)
	}
}

// Forget drops every widget of sessionID.
func (s *Sessions) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.widgets {
		if key.session == sessionID {
			delete(s.widgets, key)
		}
	}
}

// Len returns the number of live widgets.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.widgets)
}
