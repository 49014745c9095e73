package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, exp time.Time, sub string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{Subject: sub}
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	return raw
}

func TestExpiresAt(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := signedToken(t, exp, "user-1")

	got, err := ExpiresAt(raw)
	if err != nil {
		t.Fatalf("ExpiresAt failed: %v", err)
	}
	if !got.Equal(exp) {
		t.Fatalf("expected %v, got %v", exp, got)
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name string
		raw  string
		want bool
	}{
		{"future", signedToken(t, now.Add(time.Hour), "u"), false},
		{"past", signedToken(t, now.Add(-time.Hour), "u"), true},
		{"no exp claim", signedToken(t, time.Time{}, "u"), true},
		{"malformed", "not-a-jwt", true},
		{"empty", "", true},
	}

	for _, tc := range cases {
		if got := Expired(tc.raw, now); got != tc.want {
			t.Errorf("%s: Expired = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSubject(t *testing.T) {
	raw := signedToken(t, time.Now().Add(time.Hour), "user-42")
	if got := Subject(raw); got != "user-42" {
		t.Fatalf("expected user-42, got %q", got)
	}
	if got := Subject("garbage"); got != "" {
		t.Fatalf("expected empty subject for garbage, got %q", got)
	}
}
