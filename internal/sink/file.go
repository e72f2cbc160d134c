package sink

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
)

// File is a durable Store backed by a single append-only file, one
// serialized block per line. Every Write is followed by an fsync, so a
// successful Write means the block survives a crash. A torn trailing line
// from a crash mid-write is returned as-is by ReadAll; the ledger surfaces
// it as a load fault that verification reports.
type File struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenFile opens (creating if needed) the append-only block file at path.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open block file: %w", err)
	}
	return &File{path: path, f: f}, nil
}

// Write implements ledger.AppendSink. The block must not contain a newline;
// chain.Encode output never does.
func (s *File) Write(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bytes.IndexByte(data, '\n') >= 0 {
		return fmt.Errorf("block contains newline")
	}
	if _, err := s.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write block: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync block file: %w", err)
	}
	return nil
}

// ReadAll implements ledger.ReadSource. It reads the whole file and splits
// on newlines. A final unterminated fragment (torn write) is included so
// the ledger can report it.
func (s *File) ReadAll(_ context.Context) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read block file: %w", err)
	}

	var rows [][]byte
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		rows = append(rows, line)
	}
	return rows, nil
}

// Close releases the underlying file handle.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
