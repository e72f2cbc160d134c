// Package query provides in-memory indexes over loaded attestation records
// so reads never re-scan persisted storage.
//
// Indexes are updated incrementally by the ledger's append pipeline and are
// safe for concurrent readers. Queries operate on whatever prefix of the
// chain is currently loaded; callers that need an integrity guarantee must
// run chain verification first.
package query

import (
	"errors"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/attestry/attestry/internal/record"
)

// ErrNotFound is returned by Get for an unknown record id. Filter queries
// return empty sequences instead of an error.
var ErrNotFound = errors.New("record not found")

// Query is a conjunction of optional filters. Zero-valued fields are
// inactive; active filters compose via logical AND. There is no OR form.
type Query struct {
	// Actor matches records whose actor field equals this identifier.
	Actor string
	// Kind matches records of this kind.
	Kind record.Kind
	// From / To bound the ledger-assigned creation time, inclusive on both
	// ends. A zero time leaves that end unbounded.
	From, To time.Time
	// MinWeight matches records whose intrinsic weight is at least this
	// value. Nil disables the filter.
	MinWeight *float64
}

// Index holds the incremental in-memory indexes over appended records.
type Index struct {
	mu       sync.RWMutex
	all      []*record.Record // ascending id, equivalent to chain order
	byID     map[uint64]*record.Record
	byActor  map[string][]*record.Record
	touching map[string][]*record.Record // actor or subject side
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{
		byID:     make(map[uint64]*record.Record),
		byActor:  make(map[string][]*record.Record),
		touching: make(map[string][]*record.Record),
	}
}

// Add indexes a newly appended record. Records arrive in chain order, one
// per completed append.
func (ix *Index) Add(rec *record.Record) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.all = append(ix.all, rec)
	ix.byID[rec.ID] = rec
	ix.byActor[rec.Actor] = append(ix.byActor[rec.Actor], rec)
	ix.touching[rec.Actor] = append(ix.touching[rec.Actor], rec)
	if rec.Subject != "" && rec.Subject != rec.Actor {
		ix.touching[rec.Subject] = append(ix.touching[rec.Subject], rec)
	}
}

// Len returns the number of indexed records.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.all)
}

// Get returns the record with the given id, or ErrNotFound.
func (ix *Index) Get(id uint64) (*record.Record, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	rec, ok := ix.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Search returns the records matching q, most recent first with ties broken
// by ascending id. The sequence is backed by a snapshot taken at call time:
// it is finite, restartable, and unaffected by later appends.
func (ix *Index) Search(q Query) iter.Seq[*record.Record] {
	matched := ix.collect(q)
	return func(yield func(*record.Record) bool) {
		for _, rec := range matched {
			if !yield(rec) {
				return
			}
		}
	}
}

// Records is Search collected into a slice.
func (ix *Index) Records(q Query) []*record.Record {
	return ix.collect(q)
}

// ByActor returns all records whose actor equals id, most recent first.
func (ix *Index) ByActor(id string) iter.Seq[*record.Record] {
	return ix.Search(Query{Actor: id})
}

// ByKind returns all records of the given kind, most recent first.
func (ix *Index) ByKind(k record.Kind) iter.Seq[*record.Record] {
	return ix.Search(Query{Kind: k})
}

// ByTimeRange returns records created within [from, to], most recent first.
func (ix *Index) ByTimeRange(from, to time.Time) iter.Seq[*record.Record] {
	return ix.Search(Query{From: from, To: to})
}

// MinWeight returns records whose intrinsic weight is at least w, most
// recent first.
func (ix *Index) MinWeight(w float64) iter.Seq[*record.Record] {
	return ix.Search(Query{MinWeight: &w})
}

// Touching returns a chain-ordered snapshot of every record involving id as
// actor or subject. Used by the derived profile calculator.
func (ix *Index) Touching(id string) []*record.Record {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return slices.Clone(ix.touching[id])
}

func (ix *Index) collect(q Query) []*record.Record {
	ix.mu.RLock()
	// Narrowest candidate set first: the per-actor list when an actor
	// filter is active, otherwise the full chain-ordered list.
	candidates := ix.all
	if q.Actor != "" {
		candidates = ix.byActor[q.Actor]
	}

	matched := make([]*record.Record, 0, len(candidates))
	for _, rec := range candidates {
		if matches(rec, q) {
			matched = append(matched, rec)
		}
	}
	ix.mu.RUnlock()

	// Most recent first; equal timestamps fall back to ascending id, which
	// is chain order.
	slices.SortStableFunc(matched, func(a, b *record.Record) int {
		switch {
		case a.CreatedAt.After(b.CreatedAt):
			return -1
		case b.CreatedAt.After(a.CreatedAt):
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return matched
}

func matches(rec *record.Record, q Query) bool {
	if q.Actor != "" && rec.Actor != q.Actor {
		return false
	}
	if q.Kind != "" && rec.Kind != q.Kind {
		return false
	}
	if !q.From.IsZero() && rec.CreatedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && rec.CreatedAt.After(q.To) {
		return false
	}
	if q.MinWeight != nil && rec.Weight() < *q.MinWeight {
		return false
	}
	return true
}
