package sink_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/attestry/attestry/internal/sink"
)

var ctx = context.Background()

func TestMemory_writeThenReadAll(t *testing.T) {
	m := sink.NewMemory()
	rows := [][]byte{[]byte(`{"a":1}`), []byte(`{"b":2}`)}
	for _, row := range rows {
		if err := m.Write(ctx, row); err != nil {
			t.Fatal(err)
		}
	}

	got, err := m.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(rows) {
		t.Fatalf("rows: got %d, want %d", len(got), len(rows))
	}
	for i := range rows {
		if !bytes.Equal(got[i], rows[i]) {
			t.Errorf("row %d: got %q, want %q", i, got[i], rows[i])
		}
	}
}

func TestMemory_readAllCopies(t *testing.T) {
	m := sink.NewMemory()
	if err := m.Write(ctx, []byte("abc")); err != nil {
		t.Fatal(err)
	}

	got, _ := m.ReadAll(ctx)
	got[0][0] = 'X'

	again, _ := m.ReadAll(ctx)
	if !bytes.Equal(again[0], []byte("abc")) {
		t.Error("mutating a returned row must not corrupt the store")
	}
}
