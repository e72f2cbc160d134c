package auth_test

import (
	"testing"
	"time"

	"github.com/attestry/attestry/internal/auth"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := auth.NewIssuer([]byte("test-secret"), "http://localhost:8080", time.Hour)

	token, err := issuer.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}

	subject, err := issuer.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if subject != "alice" {
		t.Errorf("subject: got %q, want alice", subject)
	}
}

func TestVerify_wrongSecret(t *testing.T) {
	issuer := auth.NewIssuer([]byte("secret-a"), "http://localhost:8080", time.Hour)
	other := auth.NewIssuer([]byte("secret-b"), "http://localhost:8080", time.Hour)

	token, err := issuer.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Verify(token); err == nil {
		t.Error("token signed with a different secret must not verify")
	}
}

func TestVerify_wrongIssuer(t *testing.T) {
	a := auth.NewIssuer([]byte("secret"), "http://ledger-a", time.Hour)
	b := auth.NewIssuer([]byte("secret"), "http://ledger-b", time.Hour)

	token, err := a.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Verify(token); err == nil {
		t.Error("token from a different issuer must not verify")
	}
}

func TestVerify_expired(t *testing.T) {
	issuer := auth.NewIssuer([]byte("secret"), "http://localhost:8080", -time.Minute)

	token, err := issuer.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := issuer.Verify(token); err == nil {
		t.Error("expired token must not verify")
	}
}

func TestVerify_garbage(t *testing.T) {
	issuer := auth.NewIssuer([]byte("secret"), "http://localhost:8080", time.Hour)
	if _, err := issuer.Verify("not.a.jwt"); err == nil {
		t.Error("garbage token must not verify")
	}
}

func TestNewIssuer_defaultTTL(t *testing.T) {
	issuer := auth.NewIssuer([]byte("secret"), "http://localhost:8080", 0)
	if issuer.TTL() != time.Hour {
		t.Errorf("default TTL: got %v, want 1h", issuer.TTL())
	}
}
