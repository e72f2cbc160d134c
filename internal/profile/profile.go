// Package profile computes derived reputation summaries from an actor's
// attestation history.
//
// A profile is never a source of truth: it is a pure function of the records
// involving the actor and the chain height it was computed at, so it can
// always be recomputed from the verified chain. Callers pass as_of_height
// explicitly; nothing here reads the wall clock, which keeps results
// reproducible for the same chain state.
package profile

import (
	"math"

	"github.com/attestry/attestry/internal/record"
)

// Profile is a read-only aggregate over one actor's records up to a given
// chain height.
type Profile struct {
	Actor      string `json:"actor"`
	AsOfHeight uint64 `json:"as_of_height"`

	// Counts holds per-kind totals of records involving the actor as
	// either actor or subject.
	Counts map[record.Kind]int `json:"counts"`

	// Endorsers is the number of distinct actors that have endorsed this
	// actor as subject.
	Endorsers int `json:"endorsers"`

	// FirstHeight / LastHeight bound the actor's activity in chain heights.
	// Both are zero when the actor has no records.
	FirstHeight uint64 `json:"first_height"`
	LastHeight  uint64 `json:"last_height"`

	// Weight is the aggregate reputation score (0–100). It is monotonically
	// non-decreasing in endorsement count for fixed recency and bounded by
	// construction; see computeWeight.
	Weight int `json:"weight"`

	// Rank is a human-readable label derived from Weight:
	//   0–14   → "none"
	//   15–34  → "low"
	//   35–64  → "medium"
	//   65–84  → "high"
	//   85–100 → "top"
	Rank string `json:"rank"`
}

// Compute aggregates recs into a Profile for actor at asOfHeight. recs is
// the chain-ordered set of records involving the actor as actor or subject;
// records above asOfHeight are ignored, so the same inputs always reproduce
// the same profile. Pure function, no I/O, no clock.
func Compute(actor string, recs []*record.Record, asOfHeight uint64) Profile {
	p := Profile{
		Actor:      actor,
		AsOfHeight: asOfHeight,
		Counts: map[record.Kind]int{
			record.KindObservation: 0,
			record.KindEndorsement: 0,
			record.KindSignature:   0,
		},
	}

	endorsers := make(map[string]struct{})
	first := true
	for _, rec := range recs {
		if rec.ID > asOfHeight || !rec.Touches(actor) {
			continue
		}
		p.Counts[rec.Kind]++
		if rec.Kind == record.KindEndorsement && rec.Subject == actor {
			endorsers[rec.Actor] = struct{}{}
		}
		if first || rec.ID < p.FirstHeight {
			p.FirstHeight = rec.ID
			first = false
		}
		if rec.ID > p.LastHeight {
			p.LastHeight = rec.ID
		}
	}

	p.Endorsers = len(endorsers)
	if !first {
		p.Weight = computeWeight(p.Counts[record.KindEndorsement], p.Endorsers, asOfHeight, p.LastHeight)
	}
	p.Rank = rankLabel(p.Weight)
	return p
}

// computeWeight maps (endorsement count, endorser diversity, recency) to a
// 0–100 score:
//
//	min(100, round(20·log2(1+endorsements) + 8·log2(1+endorsers) + recency))
//
// where recency = max(0, 12 − (asOfHeight − lastHeight)). Logarithms make
// the score strictly increasing but saturating in endorsement count, and the
// min clamp bounds it. Recency depends only on chain heights, never on the
// wall clock.
func computeWeight(endorsements, endorsers int, asOfHeight, lastHeight uint64) int {
	score := 20*math.Log2(1+float64(endorsements)) + 8*math.Log2(1+float64(endorsers))

	age := asOfHeight - lastHeight // lastHeight <= asOfHeight by construction
	if age < 12 {
		score += float64(12 - age)
	}

	w := int(math.Round(score))
	if w > 100 {
		w = 100
	}
	if w < 0 {
		w = 0
	}
	return w
}

// rankLabel maps a 0–100 weight to a rank string.
func rankLabel(weight int) string {
	switch {
	case weight >= 85:
		return "top"
	case weight >= 65:
		return "high"
	case weight >= 35:
		return "medium"
	case weight >= 15:
		return "low"
	default:
		return "none"
	}
}
