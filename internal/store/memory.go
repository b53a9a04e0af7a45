package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

type memory struct {
	mu      sync.RWMutex
	lobbies map[string]*Record
}

// NewMemoryStore keeps records for the life of the process.
func NewMemoryStore() LobbyStore {
	return &memory{lobbies: make(map[string]*Record)}
}

func (m *memory) Create(_ context.Context, code string, host Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lobbies[code]; ok {
		return ErrCodeTaken
	}
	host.Slot, host.Role = 0, RoleHost
	if host.JoinedAt.IsZero() {
		host.JoinedAt = time.Now().UTC()
	}
	m.lobbies[code] = &Record{
		Code:      code,
		HostID:    host.PlayerID,
		Open:      true,
		CreatedAt: time.Now().UTC(),
		Members:   []Member{host},
	}
	return nil
}

func (m *memory) Join(_ context.Context, code string, mem Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.lobbies[code]
	if !ok {
		return ErrNotFound
	}
	if mem.Role == "" {
		mem.Role = RoleMember
	}
	if mem.JoinedAt.IsZero() {
		mem.JoinedAt = time.Now().UTC()
	}
	if i := indexOf(rec, mem.PlayerID); i >= 0 {
		rec.Members[i] = mem
	} else {
		rec.Members = append(rec.Members, mem)
	}
	slices.SortFunc(rec.Members, func(a, b Member) int { return a.Slot - b.Slot })
	return nil
}

func (m *memory) SetReady(_ context.Context, code, playerID string, ready bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.lobbies[code]
	if !ok {
		return ErrNotFound
	}
	i := indexOf(rec, playerID)
	if i < 0 {
		return ErrNotMember
	}
	rec.Members[i].Ready = ready
	return nil
}

func (m *memory) Leave(_ context.Context, code, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.lobbies[code]
	if !ok {
		return ErrNotFound
	}
	i := indexOf(rec, playerID)
	if i < 0 {
		return ErrNotMember
	}
	rec.Members = slices.Delete(rec.Members, i, i+1)
	for j := range rec.Members {
		rec.Members[j].Slot = j
		rec.Members[j].Role = RoleMember
	}
	if len(rec.Members) > 0 {
		rec.Members[0].Role = RoleHost
		rec.HostID = rec.Members[0].PlayerID
	}
	return nil
}

func (m *memory) Start(_ context.Context, code string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.lobbies[code]
	if !ok {
		return ErrNotFound
	}
	rec.Open = false
	rec.StartedAt = &at
	return nil
}

func (m *memory) GetByCode(_ context.Context, code string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.lobbies[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	cp.Members = slices.Clone(rec.Members)
	return &cp, nil
}

func (m *memory) Close() error { return nil }

func indexOf(rec *Record, playerID string) int {
	return slices.IndexFunc(rec.Members, func(m Member) bool { return m.PlayerID == playerID })
}
