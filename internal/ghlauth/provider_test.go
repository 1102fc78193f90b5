package ghlauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"

	"github.com/bradenrollio/easycal-sub000/internal/secrets"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*Provider, secrets.Store) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := secrets.NewKeyringStore(keyring.NewArrayKeyring(nil))
	p := &Provider{
		Store: store,
		Config: oauth2.Config{
			ClientID:     "cid",
			ClientSecret: "csecret",
			Endpoint: oauth2.Endpoint{
				AuthURL:   srv.URL + "/oauth/chooselocation",
				TokenURL:  srv.URL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		HTTPClient: srv.Client(),
	}

	return p, store
}

func TestAccessToken_MissingGrant(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected token request")
	})

	_, err := p.AccessToken(context.Background(), "loc1")
	var are *AuthRequiredError
	if !errors.As(err, &are) || are.LocationID != "loc1" {
		t.Fatalf("expected AuthRequiredError, got %T %v", err, err)
	}
	if !errors.Is(err, keyring.ErrKeyNotFound) {
		t.Fatalf("expected wrapped ErrKeyNotFound, got %v", err)
	}
}

func TestAccessToken_ValidStoredToken(t *testing.T) {
	p, store := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected refresh")
	})

	if err := store.SetToken("loc1", secrets.Token{RefreshToken: "rt", AccessToken: "at", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	got, err := p.AccessToken(context.Background(), "loc1")
	if err != nil || got != "at" {
		t.Fatalf("unexpected token %q err=%v", got, err)
	}
}

func TestAccessToken_RefreshPersistsRotatedToken(t *testing.T) {
	var gotRefresh string
	p, store := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotRefresh = r.PostForm.Get("refresh_token")
		if r.PostForm.Get("client_id") != "cid" {
			t.Errorf("client credentials should be sent in the body")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at2",
			"refresh_token": "rt2",
			"token_type":    "Bearer",
			"expires_in":    86399,
		})
	})

	if err := store.SetToken("loc1", secrets.Token{RefreshToken: "rt1"}); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	got, err := p.AccessToken(context.Background(), "loc1")
	if err != nil || got != "at2" {
		t.Fatalf("unexpected token %q err=%v", got, err)
	}
	if gotRefresh != "rt1" {
		t.Fatalf("expected refresh with rt1, got %q", gotRefresh)
	}

	stored, err := store.GetToken("loc1")
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if stored.RefreshToken != "rt2" || stored.AccessToken != "at2" {
		t.Fatalf("rotated token not persisted: %#v", stored)
	}
}

func TestAccessToken_RevokedGrant(t *testing.T) {
	p, store := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	if err := store.SetToken("loc1", secrets.Token{RefreshToken: "rt1"}); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	_, err := p.AccessToken(context.Background(), "loc1")
	var are *AuthRequiredError
	if !errors.As(err, &are) {
		t.Fatalf("expected AuthRequiredError, got %T %v", err, err)
	}
}

func TestExchange(t *testing.T) {
	p, store := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("code") != "abc" || r.PostForm.Get("user_type") != "Location" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at",
			"refresh_token": "rt",
			"token_type":    "Bearer",
			"expires_in":    86399,
			"locationId":    "locX",
			"companyId":     "coY",
			"scope":         "calendars.readonly calendars.write",
		})
	})

	tok, err := p.Exchange(context.Background(), "abc", "http://localhost/cb", "")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tok.LocationID != "locX" || tok.CompanyID != "coY" || len(tok.Scopes) != 2 {
		t.Fatalf("unexpected token: %#v", tok)
	}

	if _, err := store.GetToken("locX"); err != nil {
		t.Fatalf("expected stored grant: %v", err)
	}

	if _, err := p.Exchange(context.Background(), " ", "", ""); !errors.Is(err, errMissingCode) {
		t.Fatalf("expected missing code, got %v", err)
	}
}
