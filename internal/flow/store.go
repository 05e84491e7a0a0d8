package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store persists one State per session. Save succeeds only when the stored
// version still equals st.Version and bumps it on success.
type Store interface {
	Load(ctx context.Context, sessionID string) (*State, error)
	Save(ctx context.Context, st *State) error
}

// MemoryStore keeps states in process. Used for local runs without Redis
// and in tests.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string][]byte
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string][]byte), now: time.Now}
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) (*State, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}
	m.mu.Lock()
	data, ok := m.states[sessionID]
	m.mu.Unlock()
	if !ok {
		return NewState(sessionID), nil
	}
	return decodeState(data)
}

func (m *MemoryStore) Save(ctx context.Context, st *State) error {
	if st == nil || st.SessionID == "" {
		return ErrSessionRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var stored int64
	if data, ok := m.states[st.SessionID]; ok {
		prev, err := decodeState(data)
		if err != nil {
			return err
		}
		stored = prev.Version
	}
	if stored != st.Version {
		return ErrStaleState
	}
	next := st.Clone()
	next.Version++
	next.UpdatedAt = m.now().UTC()
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("flow: marshal state: %w", err)
	}
	m.states[st.SessionID] = data
	st.Version = next.Version
	st.UpdatedAt = next.UpdatedAt
	return nil
}

func decodeState(data []byte) (*State, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("flow: decode state: %w", err)
	}
	if len(st.Stack) == 0 {
		st.Stack = []Step{Root}
	}
	return &st, nil
}
