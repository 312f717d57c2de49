package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/concierge/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Memory is an in-process Repository. Values are cloned on the way in and out
// so callers never share state with the store.
type Memory struct {
	mu        sync.RWMutex
	states    map[model.StateID]*model.AgentState
	analytics map[model.SessionID]*model.ConversationAnalytics
}

// NewMemory creates an empty in-memory repository
func NewMemory() *Memory {
	return &Memory{
		states:    make(map[model.StateID]*model.AgentState),
		analytics: make(map[model.SessionID]*model.ConversationAnalytics),
	}
}

func (m *Memory) LoadState(ctx context.Context, id model.StateID) (*model.AgentState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "state not found", goerr.V("state_id", id))
	}
	return state.Clone(), nil
}

func (m *Memory) SaveState(ctx context.Context, id model.StateID, state *model.AgentState) error {
	if state == nil {
		return goerr.New("state is nil", goerr.V("state_id", id))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = state.Clone()
	return nil
}

func (m *Memory) GetAnalytics(ctx context.Context, id model.SessionID) (*model.ConversationAnalytics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.analytics[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "analytics not found", goerr.V("session_id", id))
	}
	return a.Clone(), nil
}

func (m *Memory) PutAnalytics(ctx context.Context, analytics *model.ConversationAnalytics) error {
	if analytics == nil || analytics.SessionID == "" {
		return goerr.New("analytics must have a session ID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.analytics[analytics.SessionID] = analytics.Clone()
	return nil
}

func (m *Memory) ListAnalytics(ctx context.Context, offset, limit int) ([]*model.ConversationAnalytics, error) {
	offset, limit = normalizePage(offset, limit)

	m.mu.RLock()
	all := make([]*model.ConversationAnalytics, 0, len(m.analytics))
	for _, a := range m.analytics {
		all = append(all, a.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].LastUpdated.Equal(all[j].LastUpdated) {
			return all[i].SessionID < all[j].SessionID
		}
		return all[i].LastUpdated.After(all[j].LastUpdated)
	})

	if offset >= len(all) {
		return []*model.ConversationAnalytics{}, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

// ScanAnalytics visits a copy of the records taken under one read lock
func (m *Memory) ScanAnalytics(ctx context.Context, fn func(*model.ConversationAnalytics) error) error {
	m.mu.RLock()
	all := make([]*model.ConversationAnalytics, 0, len(m.analytics))
	for _, a := range m.analytics {
		all = append(all, a.Clone())
	}
	m.mu.RUnlock()

	for _, a := range all {
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}
