// Package store implements the session-record store contract. Memory is
// the in-process implementation; the contract-level operations in ops.go
// work against any core.SessionStore.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/shojbahmed330/voicebook/internal/core"
	"github.com/shojbahmed330/voicebook/internal/domain"
)

// Archiver receives sessions that reached a terminal status.
type Archiver interface {
	Save(s *domain.Session) error
}

// Memory is a threadsafe in-memory session store with subscriptions.
// Subscribers are notified synchronously after every committed update.
type Memory struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]*domain.Session
	subs     map[domain.SessionID]map[int]func(*domain.Session)
	nextSub  int
	archive  Archiver
}

type Option func(*Memory)

// WithArchive persists sessions to the archive when they end.
func WithArchive(a Archiver) Option {
	return func(m *Memory) { m.archive = a }
}

func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		sessions: make(map[domain.SessionID]*domain.Session),
		subs:     make(map[domain.SessionID]map[int]func(*domain.Session)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Create(_ context.Context, s *domain.Session) (domain.SessionID, error) {
	id, err := gonanoid.New(16)
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}

	stored := s.Clone()
	stored.ID = domain.SessionID(id)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	m.mu.Lock()
	m.sessions[stored.ID] = stored
	m.mu.Unlock()

	s.ID = stored.ID
	log.Info().Str("module", "store").Str("session", id).Str("kind", string(stored.Kind)).Msg("session created")
	return stored.ID, nil
}

func (m *Memory) Get(_ context.Context, id domain.SessionID) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Clone(), nil
}

// ListLive returns non-terminal room sessions, for the rooms hub.
func (m *Memory) ListLive(_ context.Context) []*domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if !s.Kind.IsDirect() && !s.Status.IsTerminal() {
			out = append(out, s.Clone())
		}
	}
	return out
}

func (m *Memory) Subscribe(id domain.SessionID, onChange func(*domain.Session)) func() {
	m.mu.Lock()
	key := m.nextSub
	m.nextSub++
	if m.subs[id] == nil {
		m.subs[id] = make(map[int]func(*domain.Session))
	}
	m.subs[id][key] = onChange
	var current *domain.Session
	if s, ok := m.sessions[id]; ok {
		current = s.Clone()
	}
	m.mu.Unlock()

	// Initial snapshot, like a fresh listener on a live document.
	if current != nil {
		onChange(current)
	}

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if subs, ok := m.subs[id]; ok {
			delete(subs, key)
			if len(subs) == 0 {
				delete(m.subs, id)
			}
		}
	}
}

func (m *Memory) TransactionalUpdate(_ context.Context, id domain.SessionID, fn func(*domain.Session) error) error {
	m.mu.Lock()
	current, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", core.ErrStoreTransaction, err)
	}
	m.sessions[id] = next
	m.mu.Unlock()

	m.notify(id, next)
	return nil
}

func (m *Memory) SetStatus(ctx context.Context, id domain.SessionID, status domain.SessionStatus) error {
	var archived *domain.Session
	err := m.TransactionalUpdate(ctx, id, func(s *domain.Session) error {
		if s.Status == status {
			return nil
		}
		if !domain.CanTransition(s.Status, status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, s.Status, status)
		}
		s.Status = status
		if status.IsTerminal() {
			s.EndedAt = time.Now()
			archived = s.Clone()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if archived != nil && m.archive != nil {
		if aerr := m.archive.Save(archived); aerr != nil {
			log.Warn().Err(aerr).Str("module", "store").Str("session", string(id)).Msg("archive save failed")
		}
	}
	log.Info().Str("module", "store").Str("session", string(id)).Str("status", string(status)).Msg("status set")
	return nil
}

// Remove deletes the record and notifies subscribers with nil, the way a
// deleted live document reads on the listener side.
func (m *Memory) Remove(_ context.Context, id domain.SessionID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	m.notify(id, nil)
	log.Info().Str("module", "store").Str("session", string(id)).Msg("session removed")
}

func (m *Memory) notify(id domain.SessionID, s *domain.Session) {
	m.mu.Lock()
	callbacks := make([]func(*domain.Session), 0, len(m.subs[id]))
	for _, cb := range m.subs[id] {
		callbacks = append(callbacks, cb)
	}
	m.mu.Unlock()

	// Callbacks run outside the lock; each subscriber gets its own copy.
	for _, cb := range callbacks {
		cb(s.Clone())
	}
}
