package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

const (
	DefaultBaseURL           = "https://services.leadconnectorhq.com"
	DefaultRequestsPerSecond = 8.0
)

var (
	errUnknownKey   = errors.New("unknown config key")
	errInvalidValue = errors.New("invalid config value")
)

// File is the on-disk configuration. Comments and trailing commas are
// allowed since it is read as JSON5.
type File struct {
	ClientID          string  `json:"client_id,omitempty"`
	ClientSecret      string  `json:"client_secret,omitempty"`
	BaseURL           string  `json:"base_url,omitempty"`
	DefaultLocation   string  `json:"default_location,omitempty"`
	Database          string  `json:"database,omitempty"`
	KeyringBackend    string  `json:"keyring_backend,omitempty"`
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
}

// ClientCredentials are the marketplace app's OAuth client id and secret.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// CredentialsMissingError means the OAuth client is not configured.
type CredentialsMissingError struct {
	Path string
}

func (e *CredentialsMissingError) Error() string {
	return fmt.Sprintf("oauth client credentials missing; set client_id and client_secret in %s (easycal config set client_id ...)", e.Path)
}

// Read loads the config file. A missing file yields an empty File.
func Read() (File, error) {
	path, err := ConfigPath()
	if err != nil {
		return File{}, err
	}

	b, err := os.ReadFile(path) //nolint:gosec // user config path
	if errors.Is(err, os.ErrNotExist) {
		return File{}, nil
	}
	if err != nil {
		return File{}, fmt.Errorf("read config: %w", err)
	}

	var f File
	if len(bytes.TrimSpace(b)) == 0 {
		return f, nil
	}
	if err := json5.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return f, nil
}

// Write replaces the config file.
func Write(f File) error {
	if _, err := EnsureDir(); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit config: %w", err)
	}

	return nil
}

// ReadClientCredentials returns the OAuth client from the config file,
// with EASYCAL_CLIENT_ID / EASYCAL_CLIENT_SECRET taking precedence.
func ReadClientCredentials() (ClientCredentials, error) {
	f, err := Read()
	if err != nil {
		return ClientCredentials{}, err
	}

	creds := ClientCredentials{
		ClientID:     envOr("EASYCAL_CLIENT_ID", f.ClientID),
		ClientSecret: envOr("EASYCAL_CLIENT_SECRET", f.ClientSecret),
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		path, _ := ConfigPath()
		return ClientCredentials{}, &CredentialsMissingError{Path: path}
	}

	return creds, nil
}

func (f File) ResolvedBaseURL() string {
	return strings.TrimRight(envOr("EASYCAL_BASE_URL", firstNonEmpty(f.BaseURL, DefaultBaseURL)), "/")
}

func (f File) ResolvedLocation() string {
	return envOr("EASYCAL_LOCATION", f.DefaultLocation)
}

// ResolvedDatabase returns the store DSN: a postgres URL or a sqlite path.
func (f File) ResolvedDatabase() (string, error) {
	if v := envOr("EASYCAL_DATABASE", f.Database); v != "" {
		return v, nil
	}

	return DefaultDatabasePath()
}

func (f File) ResolvedRequestsPerSecond() float64 {
	if f.RequestsPerSecond > 0 {
		return f.RequestsPerSecond
	}

	return DefaultRequestsPerSecond
}

// Keys lists the settable config keys.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

type field struct {
	get func(*File) string
	set func(*File, string) error
}

var fields = map[string]field{
	"client_id": {
		get: func(f *File) string { return f.ClientID },
		set: func(f *File, v string) error { f.ClientID = v; return nil },
	},
	"client_secret": {
		get: func(f *File) string { return f.ClientSecret },
		set: func(f *File, v string) error { f.ClientSecret = v; return nil },
	},
	"base_url": {
		get: func(f *File) string { return f.BaseURL },
		set: func(f *File, v string) error { f.BaseURL = v; return nil },
	},
	"default_location": {
		get: func(f *File) string { return f.DefaultLocation },
		set: func(f *File, v string) error { f.DefaultLocation = v; return nil },
	},
	"database": {
		get: func(f *File) string { return f.Database },
		set: func(f *File, v string) error { f.Database = v; return nil },
	},
	"keyring_backend": {
		get: func(f *File) string { return f.KeyringBackend },
		set: func(f *File, v string) error { f.KeyringBackend = v; return nil },
	},
	"requests_per_second": {
		get: func(f *File) string {
			if f.RequestsPerSecond == 0 {
				return ""
			}
			return strconv.FormatFloat(f.RequestsPerSecond, 'f', -1, 64)
		},
		set: func(f *File, v string) error {
			if v == "" {
				f.RequestsPerSecond = 0
				return nil
			}
			n, err := strconv.ParseFloat(v, 64)
			if err != nil || n <= 0 {
				return fmt.Errorf("%w: requests_per_second must be a positive number", errInvalidValue)
			}
			f.RequestsPerSecond = n
			return nil
		},
	},
}

func (f *File) Get(key string) (string, error) {
	fd, ok := fields[strings.TrimSpace(key)]
	if !ok {
		return "", fmt.Errorf("%w: %q", errUnknownKey, key)
	}

	return fd.get(f), nil
}

func (f *File) Set(key, value string) error {
	fd, ok := fields[strings.TrimSpace(key)]
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownKey, key)
	}

	return fd.set(f, strings.TrimSpace(value))
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}

	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}

	return ""
}
