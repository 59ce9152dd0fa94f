package provider

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "sync"
    "time"

    "github.com/rs/zerolog"

    appErrors "github.com/bulkwave/campaign-engine/internal/errors"
    "github.com/bulkwave/campaign-engine/internal/metrics"
)

// TokenSource caches the single provider credential and refreshes it
// lazily. The refresh happens under the mutex, so concurrent callers
// block on one in-flight refresh and share its result instead of each
// hitting the auth endpoint.
//
// There is no background refresh timer; the next consumer after expiry
// pays for the refresh.
type TokenSource struct {
    HTTPClient   *http.Client
    AuthURL      string
    ClientID     string
    ClientSecret string
    SafetyMargin time.Duration
    DefaultTTL   time.Duration
    Log          zerolog.Logger

    // Now is overridable in tests; defaults to time.Now.
    Now func() time.Time

    mu     sync.Mutex
    token  string
    expiry time.Time
}

type authResponse struct {
    AccessToken string `json:"access_token"`
    ExpiresIn   int64  `json:"expires_in"` // seconds; optional
    Error       string `json:"error"`
}

// Token returns the cached token while it is still valid, refreshing it
// otherwise. On refresh failure nothing is cached and an *AuthError is
// returned; the next call retries.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    now := s.now()
    if s.token != "" && now.Before(s.expiry) {
        return s.token, nil
    }

    token, ttl, err := s.fetch(ctx)
    if err != nil {
        metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
        s.Log.Error().Err(err).Msg("provider token refresh failed")
        return "", appErrors.NewAuthError(err)
    }

    margin := s.SafetyMargin
    if margin >= ttl {
        // A margin wider than the lifetime would make every token
        // instantly stale; fall back to half the lifetime.
        margin = ttl / 2
    }

    s.token = token
    s.expiry = now.Add(ttl - margin)
    metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()
    s.Log.Debug().Time("expiry", s.expiry).Msg("provider token refreshed")
    return s.token, nil
}

// Invalidate drops the cached token so the next caller refreshes.
func (s *TokenSource) Invalidate() {
    s.mu.Lock()
    s.token = ""
    s.expiry = time.Time{}
    s.mu.Unlock()
}

func (s *TokenSource) fetch(ctx context.Context) (string, time.Duration, error) {
    body, err := json.Marshal(map[string]string{
        "client_id":     s.ClientID,
        "client_secret": s.ClientSecret,
    })
    if err != nil {
        return "", 0, err
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.AuthURL, bytes.NewReader(body))
    if err != nil {
        return "", 0, err
    }
    req.Header.Set("Content-Type", "application/json")

    resp, err := s.httpClient().Do(req)
    if err != nil {
        return "", 0, err
    }
    defer resp.Body.Close()

    raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
    if err != nil {
        return "", 0, err
    }

    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        return "", 0, fmt.Errorf("auth endpoint returned %d", resp.StatusCode)
    }

    var ar authResponse
    if err := json.Unmarshal(raw, &ar); err != nil {
        return "", 0, fmt.Errorf("decoding auth response: %w", err)
    }
    if ar.Error != "" {
        return "", 0, fmt.Errorf("auth endpoint error: %s", ar.Error)
    }
    if ar.AccessToken == "" {
        return "", 0, fmt.Errorf("auth response missing access_token")
    }

    ttl := s.DefaultTTL
    if ar.ExpiresIn > 0 {
        ttl = time.Duration(ar.ExpiresIn) * time.Second
    }
    return ar.AccessToken, ttl, nil
}

func (s *TokenSource) httpClient() *http.Client {
    if s.HTTPClient != nil {
        return s.HTTPClient
    }
    return http.DefaultClient
}

func (s *TokenSource) now() time.Time {
    if s.Now != nil {
        return s.Now()
    }
    return time.Now()
}
