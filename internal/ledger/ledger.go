// Package ledger wires the attestation record model, chain builder, indexes,
// and derived profiles behind a single-writer append pipeline.
//
// A Ledger owns one chain. All appends are serialized under a mutex so the
// read-head, build, persist, advance-head sequence is atomic with respect
// to other appends; queries and verification run concurrently against the
// already-completed prefix. Persistence is delegated to a Store collaborator
// that must be durable before Write returns.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/attestry/attestry/internal/chain"
	"github.com/attestry/attestry/internal/profile"
	"github.com/attestry/attestry/internal/query"
	"github.com/attestry/attestry/internal/record"
	"go.uber.org/zap"
)

// ErrPersistence is the sentinel for a failed sink write. The in-memory
// head does not advance on failure, so the same append is safe to retry.
var ErrPersistence = errors.New("ledger persistence failed")

// AppendSink is the durable byte-append collaborator. Write must not return
// success before the block is durable (fsync-equivalent semantics).
type AppendSink interface {
	Write(ctx context.Context, data []byte) error
}

// ReadSource is the durable byte-read collaborator, used once at startup to
// rebuild the in-memory chain head, height, and indexes.
type ReadSource interface {
	ReadAll(ctx context.Context) ([][]byte, error)
}

// Store combines the two collaborator interfaces the ledger consumes.
type Store interface {
	AppendSink
	ReadSource
}

// Option configures a Ledger at Open time.
type Option func(*Ledger)

// WithMaxPayload caps serialized record payload sizes in bytes.
func WithMaxPayload(n int) Option {
	return func(l *Ledger) { l.maxPayload = n }
}

// WithNow overrides the append timestamp source. Test hook only.
func WithNow(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger is an append-only, tamper-evident attestation log.
type Ledger struct {
	store      Store
	logger     *zap.Logger
	maxPayload int
	now        func() time.Time

	// appendMu serializes the whole append pipeline: at most one append is
	// in flight per ledger instance.
	appendMu sync.Mutex

	// stateMu guards the loaded chain and the load fault. Readers snapshot
	// under RLock and never observe a block before its append completed.
	stateMu sync.RWMutex
	blocks  []*chain.Block
	fault   *loadFault

	idx *query.Index

	// profileMu guards the derived profile cache. Cached profiles carry
	// the height they were computed at and are dropped when the chain
	// advances past it for records touching that actor.
	profileMu sync.Mutex
	profiles  map[string]profile.Profile
}

// loadFault records a block that could not be decoded at startup, typically
// the truncated tail of a crashed append. The chain prefix before the fault
// stays usable; Verify reports the fault as the first invalid height.
type loadFault struct {
	height uint64
	reason string
}

// Open rebuilds a Ledger from the store's full block stream. Decodable
// blocks are loaded in order; an undecodable trailing entry is kept as a
// load fault for Verify to report rather than failing the open, so a crash
// mid-write never bricks the ledger. Open does not itself verify hashes —
// callers that need the integrity guarantee run Verify after opening.
func Open(ctx context.Context, store Store, logger *zap.Logger, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:      store,
		logger:     logger,
		maxPayload: record.DefaultMaxPayload,
		now:        func() time.Time { return time.Now().UTC() },
		idx:        query.NewIndex(),
		profiles:   make(map[string]profile.Profile),
	}
	for _, opt := range opts {
		opt(l)
	}

	rows, err := store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read chain: %v", ErrPersistence, err)
	}

	for i, row := range rows {
		next := uint64(len(l.blocks))
		b, err := chain.Decode(row)
		if err != nil {
			// Keep the decoded prefix and remember where it broke. Any
			// rows beyond the fault are unreachable from the chain head
			// and are ignored.
			l.fault = &loadFault{height: next, reason: err.Error()}
			l.logger.Warn("undecodable block in store, truncation suspected",
				zap.Uint64("height", next),
				zap.Error(err),
			)
			break
		}
		// Stored heights must be the uninterrupted run 0..n-1. A row whose
		// height does not match means blocks were deleted from the store;
		// in particular a first row above height 0 means the chain's anchor
		// to the genesis sentinel is gone.
		if b.Height != next {
			l.fault = &loadFault{
				height: next,
				reason: fmt.Sprintf("row %d holds block height %d, want %d; blocks deleted from store", i, b.Height, next),
			}
			l.logger.Warn("stored chain is missing blocks",
				zap.Uint64("height", next),
				zap.Uint64("found", b.Height),
			)
			break
		}
		l.blocks = append(l.blocks, b)
		l.idx.Add(b.Record)
	}

	if n := len(l.blocks); n > 0 {
		l.logger.Info("ledger loaded",
			zap.Int("blocks", n),
			zap.String("head", l.blocks[n-1].BlockHash),
		)
	}
	return l, nil
}

// Append validates, builds, persists, and indexes one attestation record,
// returning the new block. At most one append runs at a time; a failed
// validation or persist leaves head, height, and indexes untouched.
func (l *Ledger) Append(ctx context.Context, kind record.Kind, actor, subject string, payload record.Payload) (*chain.Block, error) {
	rec, err := record.New(kind, actor, subject, payload, l.maxPayload)
	if err != nil {
		return nil, err
	}

	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	prev := l.head()
	rec.ID = 0
	if prev != nil {
		rec.ID = prev.Height + 1
	}
	rec.CreatedAt = l.now()

	b := chain.Build(rec, prev, rec.CreatedAt)

	data, err := chain.Encode(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := l.store.Write(ctx, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// Only after durable persistence: advance the head and update indexes.
	l.stateMu.Lock()
	l.blocks = append(l.blocks, b)
	l.stateMu.Unlock()
	l.idx.Add(rec)
	l.invalidateProfiles(rec)

	l.logger.Debug("block appended",
		zap.Uint64("height", b.Height),
		zap.String("kind", string(kind)),
		zap.String("actor", actor),
	)
	return b, nil
}

// head returns the last completed block, or nil for an empty chain. Callers
// must hold appendMu or tolerate a stale read.
func (l *Ledger) head() *chain.Block {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	if len(l.blocks) == 0 {
		return nil
	}
	return l.blocks[len(l.blocks)-1]
}

// Head returns the chain head hash and the height of the last block. ok is
// false when the chain is empty.
func (l *Ledger) Head() (hash string, height uint64, ok bool) {
	b := l.head()
	if b == nil {
		return "", 0, false
	}
	return b.BlockHash, b.Height, true
}

// Len returns the number of blocks in the loaded chain.
func (l *Ledger) Len() int {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return len(l.blocks)
}

// Block returns the block at the given height, or query.ErrNotFound.
func (l *Ledger) Block(height uint64) (*chain.Block, error) {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	if height >= uint64(len(l.blocks)) {
		return nil, fmt.Errorf("block %d: %w", height, query.ErrNotFound)
	}
	return l.blocks[height], nil
}

// snapshot returns a stable view of the completed chain prefix.
func (l *Ledger) snapshot() ([]*chain.Block, *loadFault) {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.blocks[:len(l.blocks):len(l.blocks)], l.fault
}

// Verify walks the full loaded chain and recomputes every hash. Unlike a
// sub-range check, the full chain must start at height 0: a leading block
// missing from storage severs the link to the genesis sentinel and is an
// integrity violation, not a shorter chain. A load fault recorded at open
// time (truncated, undecodable, or missing blocks) is reported as the
// first invalid height.
func (l *Ledger) Verify(ctx context.Context) chain.VerificationResult {
	blocks, fault := l.snapshot()
	if len(blocks) > 0 && blocks[0].Height != 0 {
		h := blocks[0].Height
		return chain.VerificationResult{
			Valid:              false,
			FirstInvalidHeight: &h,
			Reason:             fmt.Sprintf("chain starts at height %d, want 0", h),
		}
	}
	res := chain.Verify(blocks)
	if res.Valid && fault != nil {
		h := fault.height
		return chain.VerificationResult{
			Valid:              false,
			FirstInvalidHeight: &h,
			Reason:             "undecodable block in store: " + fault.reason,
		}
	}
	return res
}

// VerifyRange verifies the contiguous sub-range of heights [from, to].
// Large chains can be checked in caller-sized chunks this way instead of a
// single long scan.
func (l *Ledger) VerifyRange(ctx context.Context, from, to uint64) (chain.VerificationResult, error) {
	blocks, _ := l.snapshot()
	if from > to || to >= uint64(len(blocks)) {
		return chain.VerificationResult{}, fmt.Errorf("range [%d, %d]: %w", from, to, query.ErrNotFound)
	}
	return chain.Verify(blocks[from : to+1]), nil
}

// Record returns the record with the given id, or query.ErrNotFound.
func (l *Ledger) Record(id uint64) (*record.Record, error) {
	return l.idx.Get(id)
}

// Search returns records matching q, most recent first. See query.Query for
// filter composition.
func (l *Ledger) Search(q query.Query) iter.Seq[*record.Record] {
	return l.idx.Search(q)
}

// Records is Search collected into a slice.
func (l *Ledger) Records(q query.Query) []*record.Record {
	return l.idx.Records(q)
}

// Profile computes the derived profile for actor at asOfHeight, using the
// cache when the cached copy is still current for that height.
func (l *Ledger) Profile(actor string, asOfHeight uint64) profile.Profile {
	l.profileMu.Lock()
	if p, ok := l.profiles[actor]; ok && p.AsOfHeight == asOfHeight {
		l.profileMu.Unlock()
		return p
	}
	l.profileMu.Unlock()

	p := profile.Compute(actor, l.idx.Touching(actor), asOfHeight)

	l.profileMu.Lock()
	l.profiles[actor] = p
	l.profileMu.Unlock()
	return p
}

// CurrentProfile is Profile at the current chain height.
func (l *Ledger) CurrentProfile(actor string) profile.Profile {
	_, height, ok := l.Head()
	if !ok {
		return profile.Compute(actor, nil, 0)
	}
	return l.Profile(actor, height)
}

// invalidateProfiles drops cached profiles for every identity the new
// record touches.
func (l *Ledger) invalidateProfiles(rec *record.Record) {
	l.profileMu.Lock()
	defer l.profileMu.Unlock()
	delete(l.profiles, rec.Actor)
	if rec.Subject != "" {
		delete(l.profiles, rec.Subject)
	}
}
