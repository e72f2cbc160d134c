package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOverview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chain" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"blocks": 4, "height": 3, "head": strings.Repeat("ab", 32),
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	ov, err := c.Overview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ov.Blocks != 4 || ov.Height != 3 {
		t.Errorf("unexpected overview: %+v", ov)
	}
}

func TestAppend_sendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/records" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("authorization header: got %q", got)
		}

		var req AppendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Kind != "endorsement" || req.Actor != "alice" {
			t.Errorf("unexpected request body: %+v", req)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"height": 7, "block_hash": strings.Repeat("cd", 32)})
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("tok-123"))
	block, err := c.Append(context.Background(), AppendRequest{
		Kind:    "endorsement",
		Actor:   "alice",
		Subject: "bob",
		Payload: map[string]any{"strength": 0.9},
	})
	if err != nil {
		t.Fatal(err)
	}
	if block.Height != 7 {
		t.Errorf("height: got %d, want 7", block.Height)
	}
}

func TestAppend_apiError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "actor is required"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Append(context.Background(), AppendRequest{Kind: "observation"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "actor is required") {
		t.Errorf("error should carry server message, got: %v", err)
	}
}

func TestRecords_buildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("actor") != "alice" || q.Get("kind") != "endorsement" || q.Get("min_weight") != "0.5" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{{"id": 2, "kind": "endorsement", "actor": "alice"}},
			"count":   1,
		})
	}))
	defer srv.Close()

	min := 0.5
	c := New(srv.URL)
	recs, err := c.Records(context.Background(), RecordFilter{
		Actor: "alice", Kind: "endorsement", MinWeight: &min,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != 2 {
		t.Errorf("unexpected records: %+v", recs)
	}
}

func TestVerifyRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("from") != "1" || q.Get("to") != "5" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		h := uint64(3)
		json.NewEncoder(w).Encode(VerifyResult{Valid: false, FirstInvalidHeight: &h, Reason: "content hash mismatch"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.VerifyRange(context.Background(), 1, 5)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.FirstInvalidHeight == nil || *res.FirstInvalidHeight != 3 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestProfile_asOfHeight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/profiles/alice" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("as_of_height"); got != "9" {
			t.Errorf("as_of_height: got %q", got)
		}
		json.NewEncoder(w).Encode(Profile{Actor: "alice", AsOfHeight: 9, Weight: 42, Rank: "medium"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	p, err := c.Profile(context.Background(), "alice", 9)
	if err != nil {
		t.Fatal(err)
	}
	if p.Weight != 42 || p.Rank != "medium" {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestProfile_current(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("as_of_height") {
			t.Error("as_of_height should be omitted for current profile")
		}
		json.NewEncoder(w).Encode(Profile{Actor: "alice"})
	}))
	defer srv.Close()

	if _, err := New(srv.URL).Profile(context.Background(), "alice", -1); err != nil {
		t.Fatal(err)
	}
}
