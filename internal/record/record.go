// Package record defines the immutable attestation records stored in the
// ledger and their canonical serialization.
//
// A record is a single typed claim made by an actor: an Observation about a
// subject, an Endorsement of a subject, or a Signature over an external
// document. Records are created once by the ledger's append pipeline and
// never mutated afterwards.
//
// Canonical form: the byte-for-byte serialization used for hashing is the
// compact JSON encoding of the content type below. Struct fields are emitted
// in declaration order, so the byte layout is stable across processes; map
// payloads are rejected at the type level for exactly this reason. Every
// content hash in the chain is computed over Canonical() output and nothing
// else.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind discriminates the three attestation variants.
type Kind string

const (
	// KindObservation — actor reports something about subject.
	KindObservation Kind = "observation"
	// KindEndorsement — actor vouches for subject with a strength value.
	KindEndorsement Kind = "endorsement"
	// KindSignature — actor asserts authorship or approval of an external
	// document reference. Subject is optional for this kind.
	KindSignature Kind = "signature"
)

// Valid reports whether k is one of the three defined kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindObservation, KindEndorsement, KindSignature:
		return true
	}
	return false
}

// DefaultMaxPayload is the payload size cap applied when the caller does not
// configure one. Payloads are opaque data, never interpreted as code.
const DefaultMaxPayload = 64 << 10

// ErrValidation is the sentinel for all record validation failures. It is
// returned (wrapped) before any hashing or persistence happens, so a failed
// create never changes ledger state.
var ErrValidation = errors.New("invalid record")

// Payload is implemented by the kind-specific payload types. The kind method
// binds a payload type to the record kind it is valid for.
type Payload interface {
	kind() Kind
}

// ObservationPayload carries a free-text statement about the subject.
type ObservationPayload struct {
	Statement string `json:"statement"`
	Context   string `json:"context,omitempty"`
}

func (ObservationPayload) kind() Kind { return KindObservation }

// EndorsementPayload carries the strength of the endorsement (0.0–1.0) and
// an optional expiry after which collaborators should ignore it.
type EndorsementPayload struct {
	Strength  float64    `json:"strength"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (EndorsementPayload) kind() Kind { return KindEndorsement }

// SignatureOutcome is the verification outcome asserted by a Signature record.
type SignatureOutcome string

const (
	OutcomeVerified   SignatureOutcome = "verified"
	OutcomeFailed     SignatureOutcome = "failed"
	OutcomeUnverified SignatureOutcome = "unverified"
)

// SignaturePayload references an external document and the asserted
// verification outcome. DocumentRef is required whenever a subject is named.
type SignaturePayload struct {
	DocumentRef string           `json:"document_ref"`
	Digest      string           `json:"digest,omitempty"`
	Outcome     SignatureOutcome `json:"outcome"`
}

func (SignaturePayload) kind() Kind { return KindSignature }

// Record is a single attestation as stored in the ledger. ID and CreatedAt
// are assigned by the ledger at append time; caller-supplied timestamps are
// advisory only and never used for ordering.
type Record struct {
	ID        uint64          `json:"id"`
	Kind      Kind            `json:"kind"`
	Actor     string          `json:"actor"`
	Subject   string          `json:"subject,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// content is the canonical hashing form of a record: the caller-supplied
// fields only. ID and CreatedAt are envelope metadata assigned by the ledger
// and are covered by the block hash instead, so two records with identical
// content always produce identical content hashes. Field order here is the
// canonical serialization order; do not reorder.
type content struct {
	Kind    Kind            `json:"kind"`
	Actor   string          `json:"actor"`
	Subject string          `json:"subject"`
	Payload json.RawMessage `json:"payload"`
}

// New validates and builds a Record. maxPayload caps the serialized payload
// size in bytes; pass 0 for DefaultMaxPayload. The returned record has no ID
// and no CreatedAt — the ledger assigns both when the record is appended.
func New(kind Kind, actor, subject string, payload Payload, maxPayload int) (*Record, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrValidation, kind)
	}
	if actor == "" {
		return nil, fmt.Errorf("%w: actor must not be empty", ErrValidation)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: payload must not be nil", ErrValidation)
	}
	if pk := payload.kind(); pk != kind {
		return nil, fmt.Errorf("%w: %s payload supplied for %s record", ErrValidation, pk, kind)
	}
	if kind != KindSignature && subject == "" {
		return nil, fmt.Errorf("%w: subject required for %s records", ErrValidation, kind)
	}
	if kind == KindSignature && subject != "" {
		sig, ok := payload.(SignaturePayload)
		if !ok {
			if p, ok2 := payload.(*SignaturePayload); ok2 {
				sig = *p
			} else {
				return nil, fmt.Errorf("%w: signature payload has wrong type", ErrValidation)
			}
		}
		if sig.DocumentRef == "" {
			return nil, fmt.Errorf("%w: signature with subject requires a document_ref", ErrValidation)
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal payload: %v", ErrValidation, err)
	}
	if len(raw) > maxPayload {
		return nil, fmt.Errorf("%w: payload is %d bytes, max %d", ErrValidation, len(raw), maxPayload)
	}

	return &Record{
		Kind:    kind,
		Actor:   actor,
		Subject: subject,
		Payload: raw,
	}, nil
}

// Canonical returns the deterministic serialization of the record's content.
// This is the only byte form content hashes are computed over.
func (r *Record) Canonical() []byte {
	// content is a fixed-field-order struct; json.Marshal of a struct cannot
	// fail for these field types.
	b, _ := json.Marshal(content{
		Kind:    r.Kind,
		Actor:   r.Actor,
		Subject: r.Subject,
		Payload: r.Payload,
	})
	return b
}

// Weight returns the record's intrinsic weight used by weight-filtered
// queries: the endorsement strength for Endorsement records, 0 otherwise.
func (r *Record) Weight() float64 {
	if r.Kind != KindEndorsement {
		return 0
	}
	var p EndorsementPayload
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return 0
	}
	return p.Strength
}

// Touches reports whether the record involves the given identifier as either
// actor or subject.
func (r *Record) Touches(id string) bool {
	return r.Actor == id || r.Subject == id
}
