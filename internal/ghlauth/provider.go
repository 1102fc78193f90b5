package ghlauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"

	"github.com/bradenrollio/easycal-sub000/internal/config"
	"github.com/bradenrollio/easycal-sub000/internal/secrets"
)

const defaultHTTPTimeout = 30 * time.Second

// Endpoint is the marketplace OAuth endpoint. Location tokens are issued
// with client credentials in the form body.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://marketplace.gohighlevel.com/oauth/chooselocation",
	TokenURL:  "https://services.leadconnectorhq.com/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// DefaultScopes are what calendar provisioning needs.
var DefaultScopes = []string{
	"calendars.readonly",
	"calendars.write",
	"calendars/groups.readonly",
	"calendars/groups.write",
	"locations.readonly",
}

var (
	errMissingCode       = errors.New("missing authorization code")
	errNoLocationInToken = errors.New("token response has no locationId; pass --location")
)

// AuthRequiredError means there is no usable grant for a location. It is
// fatal to a whole run.
type AuthRequiredError struct {
	LocationID string
	Cause      error
}

func (e *AuthRequiredError) Error() string {
	msg := fmt.Sprintf("no usable credential for location %s; run: easycal auth add --location %s", e.LocationID, e.LocationID)
	if e.Cause != nil {
		msg += " (" + e.Cause.Error() + ")"
	}
	return msg
}

func (e *AuthRequiredError) Unwrap() error { return e.Cause }

// Provider hands out access tokens per location, refreshing through the
// OAuth token endpoint and persisting rotated refresh tokens.
type Provider struct {
	Store  secrets.Store
	Config oauth2.Config
	// HTTPClient is used for token exchanges; nil means a client with a
	// 30s timeout.
	HTTPClient *http.Client
}

func NewProvider(store secrets.Store, creds config.ClientCredentials) *Provider {
	return &Provider{
		Store: store,
		Config: oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     Endpoint,
			Scopes:       DefaultScopes,
		},
	}
}

func (p *Provider) exchangeContext(ctx context.Context) context.Context {
	c := p.HTTPClient
	if c == nil {
		c = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return context.WithValue(ctx, oauth2.HTTPClient, c)
}

// TokenSource returns a reusable source for one location.
func (p *Provider) TokenSource(ctx context.Context, locationID string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &storeTokenSource{
		ctx:        p.exchangeContext(ctx),
		provider:   p,
		locationID: strings.TrimSpace(locationID),
	})
}

// AccessToken returns a currently valid access token for the location.
func (p *Provider) AccessToken(ctx context.Context, locationID string) (string, error) {
	tok, err := p.TokenSource(ctx, locationID).Token()
	if err != nil {
		return "", err
	}

	return tok.AccessToken, nil
}

// AuthCodeURL builds the consent URL an operator opens to install the app.
func (p *Provider) AuthCodeURL(state string, redirectURL string) string {
	cfg := p.Config
	cfg.RedirectURL = redirectURL

	return cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for a location grant and stores it.
// The location comes from the token response unless one is given.
func (p *Provider) Exchange(ctx context.Context, code string, redirectURL string, locationID string) (secrets.Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return secrets.Token{}, errMissingCode
	}

	cfg := p.Config
	cfg.RedirectURL = redirectURL

	tok, err := cfg.Exchange(p.exchangeContext(ctx), code, oauth2.SetAuthURLParam("user_type", "Location"))
	if err != nil {
		return secrets.Token{}, fmt.Errorf("exchange code: %w", err)
	}

	if strings.TrimSpace(locationID) == "" {
		locationID = extraString(tok, "locationId")
	}
	if strings.TrimSpace(locationID) == "" {
		return secrets.Token{}, errNoLocationInToken
	}

	st := secrets.Token{
		LocationID:   locationID,
		CompanyID:    extraString(tok, "companyId"),
		RefreshToken: tok.RefreshToken,
		AccessToken:  tok.AccessToken,
		Expiry:       tok.Expiry,
		Scopes:       strings.Fields(extraString(tok, "scope")),
	}
	if err := p.Store.SetToken(locationID, st); err != nil {
		return secrets.Token{}, err
	}

	return st, nil
}

func extraString(tok *oauth2.Token, key string) string {
	if v, ok := tok.Extra(key).(string); ok {
		return v
	}

	return ""
}

type storeTokenSource struct {
	ctx        context.Context
	provider   *Provider
	locationID string
}

func (s *storeTokenSource) Token() (*oauth2.Token, error) {
	if s.locationID == "" {
		return nil, &AuthRequiredError{LocationID: "(none)", Cause: errors.New("no location selected")}
	}

	stored, err := s.provider.Store.GetToken(s.locationID)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, &AuthRequiredError{LocationID: s.locationID, Cause: err}
		}

		return nil, fmt.Errorf("get token for %s: %w", s.locationID, err)
	}

	current := &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		Expiry:       stored.Expiry,
		TokenType:    "Bearer",
	}
	if current.Valid() {
		return current, nil
	}

	slog.Debug("refreshing access token", "location", s.locationID)

	fresh, err := s.provider.Config.TokenSource(s.ctx, &oauth2.Token{RefreshToken: stored.RefreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
			return nil, &AuthRequiredError{LocationID: s.locationID, Cause: err}
		}

		return nil, fmt.Errorf("refresh token for %s: %w", s.locationID, err)
	}

	// Refresh tokens rotate on use; losing the new one locks the location out.
	stored.AccessToken = fresh.AccessToken
	stored.Expiry = fresh.Expiry
	if fresh.RefreshToken != "" {
		stored.RefreshToken = fresh.RefreshToken
	}
	if err := s.provider.Store.SetToken(s.locationID, stored); err != nil {
		return nil, fmt.Errorf("persist refreshed token for %s: %w", s.locationID, err)
	}

	return fresh, nil
}
