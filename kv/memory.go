package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Backend. Items are stored as JSON documents so
// callers never share mutable state with the store.
//
// Thread-safety: All methods are safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte
	strict bool
}

// MemoryOption configures a Memory backend.
type MemoryOption func(*Memory)

// WithTables pre-creates the named tables.
func WithTables(tables ...string) MemoryOption {
	return func(m *Memory) {
		for _, t := range tables {
			if _, ok := m.tables[t]; !ok {
				m.tables[t] = make(map[string][]byte)
			}
		}
	}
}

// WithStrictTables makes puts to unknown tables fail instead of creating them.
func WithStrictTables() MemoryOption {
	return func(m *Memory) {
		m.strict = true
	}
}

// NewMemory creates an empty in-memory backend.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{tables: make(map[string]map[string][]byte)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes req against the in-memory tables.
func (m *Memory) Run(ctx context.Context, req Request) (*Response, error) {
	return dispatch(ctx, m, req)
}

// CreateTable creates table if it does not exist.
func (m *Memory) CreateTable(_ context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		m.tables[table] = make(map[string][]byte)
	}
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

func (m *Memory) get(_ context.Context, table, id string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, ErrTableNotFound
	}
	raw, ok := t[id]
	if !ok {
		return nil, nil
	}
	return decodeItem(raw)
}

func (m *Memory) scan(_ context.Context, table string) ([]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, ErrTableNotFound
	}
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		item, err := decodeItem(t[id])
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (m *Memory) put(_ context.Context, table, id string, item map[string]any) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		if m.strict {
			return ErrTableNotFound
		}
		t = make(map[string][]byte)
		m.tables[table] = t
	}
	t[id] = raw
	return nil
}

func decodeItem(raw []byte) (map[string]any, error) {
	var item map[string]any
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return item, nil
}
