package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-assets/internal/asset"
	"github.com/joeblew999/plat-assets/internal/geo"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// Session is one report in progress: an engine and its form.
type Session struct {
	ID      string
	Created time.Time
	Engine  *asset.Engine
	Form    *asset.MemoryForm

	mu      sync.Mutex
	touched time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.touched = now
	s.mu.Unlock()
}

func (s *Session) idle(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.touched)
}

// SessionOptions configures a Sessions manager.
type SessionOptions struct {
	Geo      *geo.Provider
	Fetcher  asset.Fetcher
	Renderer asset.Renderer
	TTL      time.Duration
	Logger   *slog.Logger
	// Now is the clock; tests replace it.
	Now func() time.Time
}

// Sessions owns the live report sessions.
type Sessions struct {
	catalog *Catalog
	opts    SessionOptions

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessions creates a session manager over catalog.
func NewSessions(catalog *Catalog, opts SessionOptions) *Sessions {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sessions{catalog: catalog, opts: opts, sessions: make(map[string]*Session)}
}

// CreateInput is the initial state of a new session.
type CreateInput struct {
	Bodies []string
	Pin    *orb.Point
}

// Create starts a session. A nil Bodies leaves jurisdiction unknown.
func (m *Sessions) Create(in CreateInput) (*Session, error) {
	id := uuid.NewString()
	form := asset.NewMemoryForm()
	e, err := asset.NewEngine(m.catalog.Registry(), asset.Options{
		Geo:      m.opts.Geo,
		Form:     form,
		Fetcher:  m.opts.Fetcher,
		Renderer: m.opts.Renderer,
		Logger:   m.opts.Logger.With(slog.String("session", id)),
	})
	if err != nil {
		return nil, err
	}
	if in.Bodies != nil {
		e.SetBodies(in.Bodies)
	}
	if in.Pin != nil {
		e.PinMoved(*in.Pin)
	}

	now := m.opts.Now()
	s := &Session{ID: id, Created: now, Engine: e, Form: form, touched: now}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	m.opts.Logger.Info("session created", slog.String("session", id))
	return s, nil
}

// Get returns a live session and marks it used.
func (m *Sessions) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	now := m.opts.Now()
	if !ok || s.idle(now) > m.opts.TTL {
		return nil, ErrSessionNotFound
	}
	s.touch(now)
	return s, nil
}

// Delete ends a session.
func (m *Sessions) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Engine.Close()
	m.opts.Logger.Info("session ended", slog.String("session", id))
	return nil
}

// Len returns the number of sessions held, expired or not.
func (m *Sessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep ends sessions idle for longer than the TTL and returns how many.
func (m *Sessions) Sweep() int {
	now := m.opts.Now()
	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idle(now) > m.opts.TTL {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range expired {
		s.Engine.Close()
	}
	if len(expired) > 0 {
		m.opts.Logger.Info("sessions expired", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps expired sessions every interval until ctx is done, then ends
// every remaining session.
func (m *Sessions) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

func (m *Sessions) closeAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.Engine.Close()
	}
}
