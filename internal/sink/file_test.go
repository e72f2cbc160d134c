package sink_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/attestry/attestry/internal/sink"
)

func TestFile_writeThenReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain")
	f, err := sink.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows := [][]byte{[]byte(`{"height":0}`), []byte(`{"height":1}`)}
	for _, row := range rows {
		if err := f.Write(ctx, row); err != nil {
			t.Fatal(err)
		}
	}

	got, err := f.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("rows: got %d, want 2", len(got))
	}
	for i := range rows {
		if !bytes.Equal(got[i], rows[i]) {
			t.Errorf("row %d: got %q, want %q", i, got[i], rows[i])
		}
	}
}

func TestFile_survivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain")

	f, err := sink.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Write(ctx, []byte(`{"height":0}`)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	f2, err := sink.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f2.Close()

	got, err := f2.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !bytes.Equal(got[0], []byte(`{"height":0}`)) {
		t.Errorf("reopened store rows: %q", got)
	}

	// Appends continue after the existing rows.
	if err := f2.Write(ctx, []byte(`{"height":1}`)); err != nil {
		t.Fatal(err)
	}
	got, _ = f2.ReadAll(ctx)
	if len(got) != 2 {
		t.Errorf("rows after reopen+append: got %d, want 2", len(got))
	}
}

func TestFile_rejectsNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain")
	f, err := sink.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := f.Write(ctx, []byte("a\nb")); err == nil {
		t.Error("expected error for embedded newline")
	}
}

func TestFile_tornTailReturnedAsIs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain")
	f, err := sink.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Write(ctx, []byte(`{"height":0}`)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	// Simulate a crash mid-write: an unterminated trailing fragment.
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := file.Write([]byte(`{"heig`)); err != nil {
		t.Fatal(err)
	}
	file.Close()

	f2, err := sink.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f2.Close()

	got, err := f2.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("rows: got %d, want 2 (intact + torn)", len(got))
	}
	if !bytes.Equal(got[1], []byte(`{"heig`)) {
		t.Errorf("torn fragment: got %q", got[1])
	}
}
