package csrf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/lyrebirdhq/lyreclient/storage"
)

func tokenServer(t *testing.T, token string, hits *atomic.Int64) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/csrf-token" {
			http.NotFound(w, r)
			return
		}
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"` + token + `"}`))
	}))
}

func TestInitializeFetchesAndCaches(t *testing.T) {
	var hits atomic.Int64
	srv := tokenServer(t, "server-token", &hits)
	defer srv.Close()

	store := storage.NewMemoryStore()
	mock := clock.NewMock()
	p := New(srv.URL, srv.Client(), store, mock, nil)

	p.Initialize(context.Background())

	if got := p.Token(); got != "server-token" {
		t.Fatalf("expected server-token, got %q", got)
	}
	headers := p.Headers()
	if headers[HeaderName] != "server-token" {
		t.Fatalf("unexpected headers %v", headers)
	}

	cached, err := store.Get(context.Background(), storage.KeyCSRFToken)
	if err != nil || cached != "server-token" {
		t.Fatalf("token not cached: (%q, %v)", cached, err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 fetch, got %d", hits.Load())
	}
}

func TestInitializeReusesFreshCachedToken(t *testing.T) {
	var hits atomic.Int64
	srv := tokenServer(t, "ignored", &hits)
	defer srv.Close()

	store := storage.NewMemoryStore()
	mock := clock.NewMock()
	p := New(srv.URL, srv.Client(), store, mock, nil)

	p.Initialize(context.Background())
	hits.Store(0)

	// A second Protection over the same store within the TTL must not fetch.
	p2 := New(srv.URL, srv.Client(), store, mock, nil)
	p2.Initialize(context.Background())

	if hits.Load() != 0 {
		t.Fatalf("fresh cached token should be reused, got %d fetches", hits.Load())
	}
	if p2.Token() == "" {
		t.Fatal("cached token not loaded")
	}
}

func TestInitializeRefetchesExpiredToken(t *testing.T) {
	var hits atomic.Int64
	srv := tokenServer(t, "fresh", &hits)
	defer srv.Close()

	store := storage.NewMemoryStore()
	mock := clock.NewMock()
	p := New(srv.URL, srv.Client(), store, mock, nil)

	p.Initialize(context.Background())
	mock.Add(61 * time.Minute)
	hits.Store(0)

	p.Initialize(context.Background())
	if hits.Load() != 1 {
		t.Fatalf("expired token must be refetched, got %d fetches", hits.Load())
	}
}

func TestFetchFailureFallsBackToClientToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := storage.NewMemoryStore()
	p := New(srv.URL, srv.Client(), store, clock.NewMock(), nil)

	p.Initialize(context.Background())

	headers := p.Headers()
	if headers[HeaderName] == "" {
		t.Fatal("fallback token must still produce headers")
	}
	if len(p.Token()) != 64 {
		t.Fatalf("expected 32-byte hex fallback, got %q", p.Token())
	}
}

func TestValidateFormToken(t *testing.T) {
	srv := tokenServer(t, "abc", nil)
	defer srv.Close()

	p := New(srv.URL, srv.Client(), storage.NewMemoryStore(), clock.NewMock(), nil)

	if p.ValidateFormToken("abc") {
		t.Fatal("no token yet, validation must fail")
	}

	p.Initialize(context.Background())

	if !p.ValidateFormToken("abc") {
		t.Fatal("matching token must validate")
	}
	if p.ValidateFormToken("wrong") {
		t.Fatal("mismatched token must not validate")
	}
}

func TestClear(t *testing.T) {
	srv := tokenServer(t, "abc", nil)
	defer srv.Close()

	store := storage.NewMemoryStore()
	p := New(srv.URL, srv.Client(), store, clock.NewMock(), nil)
	p.Initialize(context.Background())

	p.Clear(context.Background())

	if p.Token() != "" {
		t.Fatal("token should be dropped")
	}
	if len(p.Headers()) != 0 {
		t.Fatal("headers should be empty after clear")
	}
	if _, err := store.Get(context.Background(), storage.KeyCSRFToken); err == nil {
		t.Fatal("cached token should be deleted")
	}
	if _, err := store.Get(context.Background(), storage.KeyCSRFTimestamp); err == nil {
		t.Fatal("cached timestamp should be deleted")
	}
}
