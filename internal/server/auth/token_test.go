package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssuer_RoundTrip(t *testing.T) {
	t.Run("issued token verifies to the same username", func(t *testing.T) {
		issuer := NewIssuer([]byte("test-secret"), time.Hour)

		token, err := issuer.Issue("alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		username, err := issuer.Verify(token)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if username != "alice" {
			t.Errorf("expected alice, got %s", username)
		}
	})

	t.Run("tokens are unique per issue", func(t *testing.T) {
		issuer := NewIssuer([]byte("test-secret"), time.Hour)

		a, err := issuer.Issue("alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, err := issuer.Issue("alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a == b {
			t.Error("expected distinct tokens for separate logins")
		}
	})
}

func TestIssuer_Verify(t *testing.T) {
	t.Run("rejects token signed with another secret", func(t *testing.T) {
		other := NewIssuer([]byte("other-secret"), time.Hour)
		token, err := other.Issue("alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		issuer := NewIssuer([]byte("test-secret"), time.Hour)
		if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("rejects expired token", func(t *testing.T) {
		issuer := NewIssuer([]byte("test-secret"), -time.Minute)
		token, err := issuer.Issue("alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		issuer := NewIssuer([]byte("test-secret"), time.Hour)

		for _, token := range []string{"", "not-a-token", "a.b.c"} {
			if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("token %q: expected ErrInvalidToken, got %v", token, err)
			}
		}
	})
}
