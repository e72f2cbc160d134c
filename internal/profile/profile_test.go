package profile_test

import (
	"testing"
	"time"

	"github.com/attestry/attestry/internal/profile"
	"github.com/attestry/attestry/internal/record"
)

func endorsement(t *testing.T, id uint64, actor, subject string, strength float64) *record.Record {
	t.Helper()
	rec, err := record.New(record.KindEndorsement, actor, subject,
		record.EndorsementPayload{Strength: strength}, 0)
	if err != nil {
		t.Fatal(err)
	}
	rec.ID = id
	rec.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute)
	return rec
}

func TestCompute_counts(t *testing.T) {
	recs := []*record.Record{
		endorsement(t, 0, "bob", "alice", 0.5),
		endorsement(t, 1, "carol", "alice", 0.7),
		endorsement(t, 2, "alice", "dave", 0.9),
	}

	p := profile.Compute("alice", recs, 2)
	if p.Counts[record.KindEndorsement] != 3 {
		t.Errorf("endorsement count: got %d, want 3", p.Counts[record.KindEndorsement])
	}
	if p.Endorsers != 2 { // bob and carol endorsed alice; alice endorsing dave does not count
		t.Errorf("endorsers: got %d, want 2", p.Endorsers)
	}
	if p.FirstHeight != 0 || p.LastHeight != 2 {
		t.Errorf("activity bounds: got %d-%d, want 0-2", p.FirstHeight, p.LastHeight)
	}
}

func TestCompute_respectsAsOfHeight(t *testing.T) {
	recs := []*record.Record{
		endorsement(t, 0, "bob", "alice", 0.5),
		endorsement(t, 5, "carol", "alice", 0.7),
	}

	p := profile.Compute("alice", recs, 3)
	if p.Counts[record.KindEndorsement] != 1 {
		t.Errorf("records above as_of_height must be ignored: got %d, want 1",
			p.Counts[record.KindEndorsement])
	}
}

func TestCompute_emptyHistory(t *testing.T) {
	p := profile.Compute("ghost", nil, 10)
	if p.Weight != 0 || p.Rank != "none" {
		t.Errorf("empty history: weight=%d rank=%q, want 0/none", p.Weight, p.Rank)
	}
}

func TestCompute_reproducible(t *testing.T) {
	recs := []*record.Record{
		endorsement(t, 0, "bob", "alice", 0.5),
		endorsement(t, 1, "carol", "alice", 0.7),
	}

	a := profile.Compute("alice", recs, 1)
	b := profile.Compute("alice", recs, 1)
	if a.Weight != b.Weight || a.Rank != b.Rank || a.Endorsers != b.Endorsers {
		t.Error("same inputs must reproduce the same profile")
	}
}

func TestCompute_weightMonotonicInEndorsements(t *testing.T) {
	// Fixed recency: every history ends at the same height.
	const last = 50
	prev := -1
	for n := 1; n <= 40; n++ {
		var recs []*record.Record
		for i := 0; i < n; i++ {
			// Spread ids below the shared last record.
			recs = append(recs, endorsement(t, uint64(i), "bob", "alice", 0.5))
		}
		recs = append(recs, endorsement(t, last, "bob", "alice", 0.5))

		p := profile.Compute("alice", recs, last)
		if p.Weight < prev {
			t.Fatalf("weight decreased from %d to %d at %d endorsements", prev, p.Weight, n+1)
		}
		prev = p.Weight
	}
}

func TestCompute_weightBounded(t *testing.T) {
	var recs []*record.Record
	for i := 0; i < 500; i++ {
		recs = append(recs, endorsement(t, uint64(i), "endorser", "alice", 1.0))
	}

	p := profile.Compute("alice", recs, 499)
	if p.Weight < 0 || p.Weight > 100 {
		t.Errorf("weight out of bounds: %d", p.Weight)
	}
	if p.Rank != "top" {
		t.Errorf("rank for saturated weight: got %q, want top", p.Rank)
	}
}

func TestCompute_recencyDecaysWithHeightOnly(t *testing.T) {
	recs := []*record.Record{
		endorsement(t, 0, "bob", "alice", 0.5),
	}

	fresh := profile.Compute("alice", recs, 0)
	stale := profile.Compute("alice", recs, 1000)
	if stale.Weight > fresh.Weight {
		t.Errorf("weight rose with chain age: fresh=%d stale=%d", fresh.Weight, stale.Weight)
	}
}
