package ghlauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"
)

func usePendingDir(t *testing.T) {
	t.Helper()

	dir := t.TempDir()
	origDir, origNow, origState := pendingDirFn, pendingNowFn, randomStateFn
	t.Cleanup(func() {
		pendingDirFn, pendingNowFn, randomStateFn = origDir, origNow, origState
	})

	pendingDirFn = func() (string, error) { return dir, nil }
}

func tokenHandler(t *testing.T, wantRedirect string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("code") != "abc" {
			t.Errorf("unexpected code %q", r.PostForm.Get("code"))
		}
		if got := r.PostForm.Get("redirect_uri"); got != wantRedirect {
			t.Errorf("redirect_uri = %q, want %q", got, wantRedirect)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at",
			"refresh_token": "rt",
			"expires_in":    3600,
			"token_type":    "Bearer",
			"locationId":    "loc1",
		})
	}
}

func TestStartRemote_ReusesPendingState(t *testing.T) {
	usePendingDir(t)

	calls := 0
	randomStateFn = func() (string, error) {
		calls++
		return "state" + string(rune('0'+calls)), nil
	}

	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})

	first, err := p.StartRemote(AuthorizeOptions{})
	if err != nil {
		t.Fatalf("StartRemote: %v", err)
	}
	second, err := p.StartRemote(AuthorizeOptions{})
	if err != nil {
		t.Fatalf("StartRemote: %v", err)
	}

	if first.StateReused || !second.StateReused || calls != 1 {
		t.Fatalf("expected reuse on second call: first=%+v second=%+v calls=%d", first, second, calls)
	}

	u, _ := url.Parse(second.URL)
	if u.Query().Get("state") != "state1" || u.Query().Get("redirect_uri") != DefaultRedirectURL {
		t.Fatalf("unexpected auth url %s", second.URL)
	}

	// A pending authorization expires.
	pendingNowFn = func() time.Time { return time.Now().Add(pendingTTL + time.Minute) }
	third, err := p.StartRemote(AuthorizeOptions{})
	if err != nil || third.StateReused {
		t.Fatalf("expected a fresh state after expiry, got %+v err=%v", third, err)
	}
}

func TestAuthorize_FinishesPastedRedirect(t *testing.T) {
	usePendingDir(t)
	randomStateFn = func() (string, error) { return "s1", nil }

	p, store := newTestProvider(t, tokenHandler(t, DefaultRedirectURL))

	if _, err := p.StartRemote(AuthorizeOptions{}); err != nil {
		t.Fatalf("StartRemote: %v", err)
	}

	tok, err := p.Authorize(context.Background(), AuthorizeOptions{
		AuthURL:      DefaultRedirectURL + "?code=abc&state=s1",
		RequireState: true,
	})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if tok.LocationID != "loc1" {
		t.Fatalf("unexpected token %+v", tok)
	}

	stored, err := store.GetToken("loc1")
	if err != nil || stored.RefreshToken != "rt" {
		t.Fatalf("grant not stored: %+v err=%v", stored, err)
	}

	// The pending state is consumed.
	_, err = p.Authorize(context.Background(), AuthorizeOptions{
		AuthURL:      DefaultRedirectURL + "?code=abc&state=s1",
		RequireState: true,
	})
	if !errors.Is(err, errPendingMissing) {
		t.Fatalf("expected pending missing, got %v", err)
	}
}

func TestAuthorize_RedirectErrors(t *testing.T) {
	usePendingDir(t)

	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected token request")
	})

	cases := []struct {
		raw  string
		want error
	}{
		{"not a url", errInvalidRedirect},
		{DefaultRedirectURL + "?state=x", errNoCodeInURL},
		{DefaultRedirectURL + "?code=abc", errMissingState},
		{DefaultRedirectURL + "?error=access_denied", errAuthorization},
	}
	for _, tc := range cases {
		_, err := p.Authorize(context.Background(), AuthorizeOptions{AuthURL: tc.raw, RequireState: true})
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.raw, tc.want, err)
		}
	}
}

func TestAuthorize_ManualReadsPrompt(t *testing.T) {
	usePendingDir(t)
	randomStateFn = func() (string, error) { return "s2", nil }

	p, _ := newTestProvider(t, tokenHandler(t, DefaultRedirectURL))

	var status strings.Builder
	tok, err := p.Authorize(context.Background(), AuthorizeOptions{
		Manual: true,
		Prompt: strings.NewReader(DefaultRedirectURL + "?code=abc&state=s2\n"),
		Status: &status,
	})
	if err != nil || tok.LocationID != "loc1" {
		t.Fatalf("unexpected token %+v err=%v", tok, err)
	}
	if !strings.Contains(status.String(), "state=s2") {
		t.Fatalf("expected consent url in status output, got %q", status.String())
	}
}

func TestAuthorize_ManualEOFCancels(t *testing.T) {
	usePendingDir(t)

	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := p.Authorize(context.Background(), AuthorizeOptions{
		Manual: true,
		Prompt: strings.NewReader(""),
		Status: &strings.Builder{},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
