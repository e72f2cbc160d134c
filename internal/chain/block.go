// Package chain implements the hash-linked block envelope around attestation
// records and the integrity verifier that walks it.
//
// Every block wraps exactly one record. The chain begins at height 0 with a
// block whose PrevHash is the well-known GenesisHash constant; all later
// blocks link to their predecessor's BlockHash, making any post-hoc edit,
// reorder, or deletion detectable via Verify.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/attestry/attestry/internal/record"
)

// GenesisHash is the canonical well-known previous-hash of the first block.
// It is the trust anchor of the chain and must never change for a given
// ledger instance.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Block is the chain-linked envelope around one attestation record. All
// fields are computed once at build time and never recomputed after the
// block has been persisted.
type Block struct {
	Height      uint64         `json:"height"`
	PrevHash    string         `json:"previous_hash"`
	ContentHash string         `json:"content_hash"`
	BlockHash   string         `json:"block_hash"`
	CreatedAt   time.Time      `json:"created_at"`
	Record      *record.Record `json:"record"`
}

// Build wraps rec into a block chained behind prev. prev == nil means the
// block is the first in the chain: height 0, PrevHash = GenesisHash.
// createdAt is assigned once by the caller and reused for hashing, so block
// hashes are reproducible for a fixed timestamp. Pure function, no I/O.
func Build(rec *record.Record, prev *Block, createdAt time.Time) *Block {
	b := &Block{
		Height:      0,
		PrevHash:    GenesisHash,
		ContentHash: contentHash(rec),
		CreatedAt:   createdAt,
		Record:      rec,
	}
	if prev != nil {
		b.Height = prev.Height + 1
		b.PrevHash = prev.BlockHash
	}
	b.BlockHash = hashBlock(b)
	return b
}

// contentHash is the hex SHA-256 of the record's canonical content bytes.
func contentHash(rec *record.Record) string {
	sum := sha256.Sum256(rec.Canonical())
	return hex.EncodeToString(sum[:])
}

// hashBlock computes the hex SHA-256 over the block's envelope fields. The
// record itself is covered through ContentHash; CreatedAt uses RFC3339Nano
// so the hashed form round-trips exactly through the persisted encoding.
func hashBlock(b *Block) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s",
		b.Height, b.PrevHash, b.ContentHash,
		b.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return hex.EncodeToString(h.Sum(nil))
}

// Encode serializes the block for the append sink. The encoding round-trips
// exactly: Decode(Encode(b)) reproduces every field byte-for-byte, including
// the opaque record payload.
func Encode(b *Block) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode block %d: %w", b.Height, err)
	}
	return data, nil
}

// Decode parses a block previously produced by Encode.
func Decode(data []byte) (*Block, error) {
	b := &Block{}
	if err := json.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	if b.Record == nil {
		return nil, fmt.Errorf("decode block: missing record")
	}
	return b, nil
}
