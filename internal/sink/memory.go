// Package sink provides the append-sink and read-source collaborators the
// ledger persists through: in-memory, append-only file, and PostgreSQL.
package sink

import (
	"context"
	"slices"
	"sync"
)

// Memory is an in-process Store implementation. It is primarily useful for
// tests and for single-process deployments that do not need durability
// across restarts.
type Memory struct {
	mu   sync.Mutex
	rows [][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Write implements ledger.AppendSink.
func (m *Memory) Write(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, slices.Clone(data))
	return nil
}

// ReadAll implements ledger.ReadSource.
func (m *Memory) ReadAll(_ context.Context) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.rows))
	for i, row := range m.rows {
		out[i] = slices.Clone(row)
	}
	return out, nil
}
