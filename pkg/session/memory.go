package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bitop-dev/shopagent/pkg/ai"
)

type memKey struct{ app, user, id string }

// Memory is an in-process Service. Sessions are lost on restart.
type Memory struct {
	mu       sync.RWMutex
	sessions map[memKey]*Session
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[memKey]*Session)}
}

var _ Service = (*Memory)(nil)

func (m *Memory) Create(_ context.Context, app, user, id string, state map[string]any) (*Session, error) {
	if id == "" {
		id = newSessionID()
	}
	if err := validKey(app, user, id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey{app, user, id}
	if _, ok := m.sessions[k]; ok {
		return nil, ErrExists
	}
	now := time.Now().UTC()
	s := &Session{
		ID:             id,
		AppName:        app,
		UserID:         user,
		State:          mergeState(nil, state),
		Created:        now,
		LastUpdateTime: now,
	}
	m.sessions[k] = s
	return s.clone(true), nil
}

func (m *Memory) Get(_ context.Context, app, user, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[memKey{app, user, id}]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(true), nil
}

func (m *Memory) List(_ context.Context, app, user string) ([]*Session, error) {
	m.mu.RLock()
	var out []*Session
	for k, s := range m.sessions {
		if k.app == app && k.user == user {
			out = append(out, s.clone(false))
		}
	}
	m.mu.RUnlock()
	sortNewest(out)
	return out, nil
}

func (m *Memory) Delete(_ context.Context, app, user, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey{app, user, id}
	if _, ok := m.sessions[k]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, k)
	return nil
}

func (m *Memory) Append(_ context.Context, app, user, id string, msgs ...ai.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[memKey{app, user, id}]
	if !ok {
		return ErrNotFound
	}
	for _, msg := range msgs {
		s.Messages = append(s.Messages, ai.Deref(msg))
	}
	s.LastUpdateTime = time.Now().UTC()
	return nil
}

func (m *Memory) UpdateState(_ context.Context, app, user, id string, delta map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[memKey{app, user, id}]
	if !ok {
		return ErrNotFound
	}
	s.State = mergeState(s.State, delta)
	s.LastUpdateTime = time.Now().UTC()
	return nil
}

func sortNewest(list []*Session) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].LastUpdateTime.Equal(list[j].LastUpdateTime) {
			return list[i].ID < list[j].ID
		}
		return list[i].LastUpdateTime.After(list[j].LastUpdateTime)
	})
}
