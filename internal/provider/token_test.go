package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	appErrors "github.com/bulkwave/campaign-engine/internal/errors"
)

func newAuthServer(t *testing.T, hits *int32, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestTokenCachedUntilExpiry(t *testing.T) {
	var hits int32
	srv := newAuthServer(t, &hits, 200, `{"access_token": "tok-1", "expires_in": 3600}`)
	defer srv.Close()

	now := time.Now()
	src := &TokenSource{
		AuthURL:      srv.URL,
		SafetyMargin: time.Minute,
		DefaultTTL:   15 * time.Minute,
		Now:          func() time.Time { return now },
	}

	for i := 0; i < 3; i++ {
		tok, err := src.Token(context.Background())
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "tok-1" {
			t.Fatalf("token = %q, want tok-1", tok)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("auth endpoint hit %d times, want 1", got)
	}

	// Past expiry (3600s - 60s margin) the next call refreshes.
	now = now.Add(3600 * time.Second)
	if _, err := src.Token(context.Background()); err != nil {
		t.Fatalf("Token after expiry: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("auth endpoint hit %d times after expiry, want 2", got)
	}
}

func TestTokenFailureNotCached(t *testing.T) {
	var hits int32
	srv := newAuthServer(t, &hits, 401, `{"error": "bad credentials"}`)
	defer srv.Close()

	src := &TokenSource{
		AuthURL:      srv.URL,
		SafetyMargin: time.Minute,
		DefaultTTL:   15 * time.Minute,
	}

	_, err := src.Token(context.Background())
	if err == nil {
		t.Fatal("expected error from failed auth")
	}
	var authErr *appErrors.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %T, want *AuthError", err)
	}

	// Every retry hits the endpoint again: nothing was cached.
	_, _ = src.Token(context.Background())
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("auth endpoint hit %d times, want 2", got)
	}
}

func TestTokenDefaultLifetime(t *testing.T) {
	var hits int32
	srv := newAuthServer(t, &hits, 200, `{"access_token": "tok-d"}`)
	defer srv.Close()

	now := time.Now()
	src := &TokenSource{
		AuthURL:      srv.URL,
		SafetyMargin: time.Minute,
		DefaultTTL:   10 * time.Minute,
		Now:          func() time.Time { return now },
	}

	if _, err := src.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}

	// Inside the default window: still cached.
	now = now.Add(8 * time.Minute)
	if _, err := src.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("auth endpoint hit %d times inside default TTL, want 1", got)
	}

	// Past default TTL minus margin: refreshed.
	now = now.Add(2 * time.Minute)
	if _, err := src.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("auth endpoint hit %d times past default TTL, want 2", got)
	}
}

func TestInvalidateForcesRefresh(t *testing.T) {
	var hits int32
	srv := newAuthServer(t, &hits, 200, `{"access_token": "tok-1", "expires_in": 3600}`)
	defer srv.Close()

	src := &TokenSource{
		AuthURL:      srv.URL,
		SafetyMargin: time.Minute,
		DefaultTTL:   15 * time.Minute,
	}

	if _, err := src.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if _, err := src.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("auth endpoint hit %d times before invalidation, want 1", got)
	}

	// Dropping the cached token (as the client does on a 401) makes the
	// next caller refresh even though the expiry has not passed.
	src.Invalidate()
	if _, err := src.Token(context.Background()); err != nil {
		t.Fatalf("Token after invalidate: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("auth endpoint hit %d times after invalidation, want 2", got)
	}
}

func TestConcurrentCallersShareOneRefresh(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(20 * time.Millisecond) // keep the refresh in flight
		w.Write([]byte(`{"access_token": "tok-c", "expires_in": 3600}`))
	}))
	defer srv.Close()

	src := &TokenSource{
		AuthURL:      srv.URL,
		SafetyMargin: time.Minute,
		DefaultTTL:   15 * time.Minute,
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := src.Token(context.Background())
			if err != nil {
				t.Errorf("Token: %v", err)
				return
			}
			if tok != "tok-c" {
				t.Errorf("token = %q, want tok-c", tok)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("auth endpoint hit %d times by concurrent callers, want 1", got)
	}
}
