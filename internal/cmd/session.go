package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/bradenrollio/easycal-sub000/internal/config"
	"github.com/bradenrollio/easycal-sub000/internal/ghlapi"
	"github.com/bradenrollio/easycal-sub000/internal/ghlauth"
	"github.com/bradenrollio/easycal-sub000/internal/secrets"
	"github.com/bradenrollio/easycal-sub000/internal/store"
)

// Swapped in tests.
var (
	openSecretsStore = secrets.OpenDefault
	openStore        = store.Open
)

var errNoLocation = errors.New("no location selected; pass --location or run: easycal config set default_location <id>")

func resolveLocation(flags *RootFlags, cfg config.File) (string, error) {
	if flags != nil {
		if v := strings.TrimSpace(flags.Location); v != "" {
			return v, nil
		}
	}
	if v := strings.TrimSpace(cfg.ResolvedLocation()); v != "" {
		return v, nil
	}
	return "", newUsageError(errNoLocation)
}

// session is everything a command needs to talk to one location.
type session struct {
	location string
	provider *ghlauth.Provider
	client   *ghlapi.Client
}

func newSession(ctx context.Context, flags *RootFlags) (*session, error) {
	cfg, err := config.Read()
	if err != nil {
		return nil, err
	}

	loc, err := resolveLocation(flags, cfg)
	if err != nil {
		return nil, err
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	client := ghlapi.NewClient(ghlapi.Options{
		BaseURL:           cfg.ResolvedBaseURL(),
		LocationID:        loc,
		TokenSource:       provider.TokenSource(ctx, loc),
		RequestsPerSecond: cfg.ResolvedRequestsPerSecond(),
	})

	return &session{location: loc, provider: provider, client: client}, nil
}

func newProvider(cfg config.File) (*ghlauth.Provider, error) {
	creds, err := config.ReadClientCredentials()
	if err != nil {
		return nil, err
	}

	ss, err := openSecretsStore()
	if err != nil {
		return nil, err
	}

	provider := ghlauth.NewProvider(ss, creds)
	if base := cfg.ResolvedBaseURL(); base != config.DefaultBaseURL {
		provider.Config.Endpoint.TokenURL = base + "/oauth/token"
	}

	return provider, nil
}

func openConfiguredStore(ctx context.Context) (*store.Store, error) {
	cfg, err := config.Read()
	if err != nil {
		return nil, err
	}

	dsn, err := cfg.ResolvedDatabase()
	if err != nil {
		return nil, err
	}

	return openStore(ctx, dsn)
}
