package chain

import (
	"errors"
	"fmt"
	"time"
)

// ErrIntegrity is the sentinel for a failed chain verification. It is fatal
// to trust in the checked range; the ledger never attempts repair.
var ErrIntegrity = errors.New("chain integrity violation")

// VerificationResult reports the outcome of walking a chain slice. When
// Valid is false, FirstInvalidHeight is the height of the first block at
// which the chain diverges from its recomputed form, and Reason says how.
type VerificationResult struct {
	Valid              bool    `json:"valid"`
	FirstInvalidHeight *uint64 `json:"first_invalid_height,omitempty"`
	Reason             string  `json:"reason,omitempty"`
}

// Err returns nil for a valid result, otherwise an error wrapping
// ErrIntegrity that carries the failing height and reason.
func (r VerificationResult) Err() error {
	if r.Valid {
		return nil
	}
	if r.FirstInvalidHeight != nil {
		return fmt.Errorf("%w at height %d: %s", ErrIntegrity, *r.FirstInvalidHeight, r.Reason)
	}
	return fmt.Errorf("%w: %s", ErrIntegrity, r.Reason)
}

func invalid(height uint64, format string, args ...any) VerificationResult {
	return VerificationResult{
		Valid:              false,
		FirstInvalidHeight: &height,
		Reason:             fmt.Sprintf(format, args...),
	}
}

// Verify recomputes every hash in blocks and checks linkage and height
// monotonicity, returning the first divergence found. The slice may be any
// contiguous sub-range of the chain; the genesis PrevHash sentinel is only
// checked when the slice starts at height 0. O(n), reads only its input, so
// it can run concurrently with appends against an already-durable prefix.
func Verify(blocks []*Block) VerificationResult {
	var prev *Block
	for _, b := range blocks {
		if prev == nil {
			if b.Height == 0 && b.PrevHash != GenesisHash {
				return invalid(0, "previous_hash of first block is %q, want genesis sentinel", b.PrevHash)
			}
		} else {
			if b.Height != prev.Height+1 {
				return invalid(b.Height, "height %d follows height %d, want %d", b.Height, prev.Height, prev.Height+1)
			}
			if b.PrevHash != prev.BlockHash {
				return invalid(b.Height, "previous_hash does not match block hash at height %d", prev.Height)
			}
		}
		if res := verifyBlock(b); !res.Valid {
			return res
		}
		prev = b
	}
	return VerificationResult{Valid: true}
}

// verifyBlock checks a single block's internal consistency: record envelope
// fields against the block, then fresh recomputations of both hashes.
func verifyBlock(b *Block) VerificationResult {
	if b.Record == nil {
		return invalid(b.Height, "block carries no record")
	}
	if b.Record.ID != b.Height {
		return invalid(b.Height, "record id %d does not match block height", b.Record.ID)
	}
	if !b.Record.CreatedAt.Equal(b.CreatedAt) {
		return invalid(b.Height, "record timestamp %s does not match block timestamp %s",
			b.Record.CreatedAt.Format(time.RFC3339Nano), b.CreatedAt.Format(time.RFC3339Nano))
	}
	if got := contentHash(b.Record); got != b.ContentHash {
		return invalid(b.Height, "content hash mismatch")
	}
	if got := hashBlock(b); got != b.BlockHash {
		return invalid(b.Height, "block hash mismatch")
	}
	return VerificationResult{Valid: true}
}
