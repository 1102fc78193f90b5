package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"github.com/bradenrollio/easycal-sub000/internal/config"
)

const tokenKeyPrefix = "token:"

var (
	errMissingLocation     = errors.New("missing location id")
	errMissingRefreshToken = errors.New("missing refresh token")
	errNoTTY               = errors.New("no TTY available for keyring file backend password prompt; set EASYCAL_KEYRING_PASSWORD")
	errInvalidBackend      = errors.New("invalid keyring backend")
)

// Token is the OAuth grant stored for one location (sub-account).
type Token struct {
	LocationID   string    `json:"location_id"`
	CompanyID    string    `json:"company_id,omitempty"`
	RefreshToken string    `json:"-"`
	AccessToken  string    `json:"-"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type storedToken struct {
	CompanyID    string    `json:"company_id,omitempty"`
	RefreshToken string    `json:"refresh_token"`
	AccessToken  string    `json:"access_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store persists per-location OAuth grants.
type Store interface {
	GetToken(locationID string) (Token, error)
	SetToken(locationID string, tok Token) error
	DeleteToken(locationID string) error
	ListTokens() ([]Token, error)
}

type KeyringStore struct {
	ring keyring.Keyring
}

// NewKeyringStore wraps an already-open keyring.
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

var openKeyringFunc = openKeyring

// OpenDefault opens the keyring backend selected by config/env.
func OpenDefault() (Store, error) {
	ring, err := openKeyringFunc()
	if err != nil {
		return nil, err
	}

	return &KeyringStore{ring: ring}, nil
}

// KeyringBackendInfo records which backend was chosen and why.
type KeyringBackendInfo struct {
	Value  string
	Source string
}

// ResolveKeyringBackendInfo reads EASYCAL_KEYRING_BACKEND, then the config
// file, then falls back to auto.
func ResolveKeyringBackendInfo() (KeyringBackendInfo, error) {
	if v := strings.TrimSpace(os.Getenv("EASYCAL_KEYRING_BACKEND")); v != "" {
		return KeyringBackendInfo{Value: strings.ToLower(v), Source: "env"}, nil
	}

	f, err := config.Read()
	if err != nil {
		return KeyringBackendInfo{}, err
	}

	if v := strings.TrimSpace(f.KeyringBackend); v != "" {
		return KeyringBackendInfo{Value: strings.ToLower(v), Source: "config"}, nil
	}

	return KeyringBackendInfo{Value: "auto", Source: "default"}, nil
}

func allowedBackends(info KeyringBackendInfo) ([]keyring.BackendType, error) {
	switch info.Value {
	case "", "auto":
		return nil, nil
	case "keychain":
		return []keyring.BackendType{keyring.KeychainBackend}, nil
	case "file":
		return []keyring.BackendType{keyring.FileBackend}, nil
	case "secret-service", "secretservice":
		return []keyring.BackendType{keyring.SecretServiceBackend}, nil
	case "wincred":
		return []keyring.BackendType{keyring.WinCredBackend}, nil
	case "kwallet":
		return []keyring.BackendType{keyring.KWalletBackend}, nil
	case "pass":
		return []keyring.BackendType{keyring.PassBackend}, nil
	default:
		return nil, fmt.Errorf("%w: %q (expected auto, keychain, file, secret-service, wincred, kwallet, pass)", errInvalidBackend, info.Value)
	}
}

func openKeyring() (keyring.Keyring, error) {
	info, err := ResolveKeyringBackendInfo()
	if err != nil {
		return nil, err
	}

	backends, err := allowedBackends(info)
	if err != nil {
		return nil, err
	}

	dir, err := config.EnsureDir()
	if err != nil {
		return nil, err
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              config.AppName,
		AllowedBackends:          backends,
		KeychainTrustApplication: true,
		FileDir:                  filepath.Join(dir, "keyring"),
		FilePasswordFunc:         fileKeyringPasswordFuncFrom(os.Getenv("EASYCAL_KEYRING_PASSWORD"), term.IsTerminal(int(os.Stdin.Fd()))),
	})
	if err != nil {
		return nil, wrapKeychainError(fmt.Errorf("open keyring: %w", err))
	}

	return ring, nil
}

func fileKeyringPasswordFuncFrom(password string, isTTY bool) keyring.PromptFunc {
	if password != "" {
		return keyring.FixedStringPrompt(password)
	}

	if isTTY {
		return keyring.TerminalPrompt
	}

	return func(string) (string, error) {
		return "", errNoTTY
	}
}

func wrapKeychainError(err error) error {
	if err == nil {
		return nil
	}

	if runtime.GOOS == "darwin" && strings.Contains(err.Error(), "-25308") {
		return fmt.Errorf("%w (keychain is locked; unlock it or use EASYCAL_KEYRING_BACKEND=file)", err)
	}

	return err
}

func normalize(locationID string) string {
	return strings.TrimSpace(locationID)
}

func tokenKey(locationID string) string {
	return tokenKeyPrefix + locationID
}

// ParseTokenKey extracts the location id from a keyring key.
func ParseTokenKey(k string) (string, bool) {
	if !strings.HasPrefix(k, tokenKeyPrefix) {
		return "", false
	}

	loc := strings.TrimPrefix(k, tokenKeyPrefix)
	if strings.TrimSpace(loc) == "" {
		return "", false
	}

	return loc, true
}

func (s *KeyringStore) SetToken(locationID string, tok Token) error {
	locationID = normalize(locationID)
	if locationID == "" {
		return errMissingLocation
	}

	if tok.RefreshToken == "" {
		return errMissingRefreshToken
	}

	now := time.Now().UTC()
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = now
	}

	payload, err := json.Marshal(storedToken{
		CompanyID:    tok.CompanyID,
		RefreshToken: tok.RefreshToken,
		AccessToken:  tok.AccessToken,
		Expiry:       tok.Expiry,
		Scopes:       tok.Scopes,
		CreatedAt:    tok.CreatedAt,
		UpdatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	if err := s.ring.Set(keyring.Item{
		Key:   tokenKey(locationID),
		Data:  payload,
		Label: config.AppName,
	}); err != nil {
		return wrapKeychainError(fmt.Errorf("store token: %w", err))
	}

	return nil
}

// GetToken returns keyring.ErrKeyNotFound (wrapped) when no grant exists.
func (s *KeyringStore) GetToken(locationID string) (Token, error) {
	locationID = normalize(locationID)
	if locationID == "" {
		return Token{}, errMissingLocation
	}

	it, err := s.ring.Get(tokenKey(locationID))
	if err != nil {
		return Token{}, fmt.Errorf("read token: %w", err)
	}

	var st storedToken
	if err := json.Unmarshal(it.Data, &st); err != nil {
		return Token{}, fmt.Errorf("decode token: %w", err)
	}

	return Token{
		LocationID:   locationID,
		CompanyID:    st.CompanyID,
		RefreshToken: st.RefreshToken,
		AccessToken:  st.AccessToken,
		Expiry:       st.Expiry,
		Scopes:       st.Scopes,
		CreatedAt:    st.CreatedAt,
		UpdatedAt:    st.UpdatedAt,
	}, nil
}

func (s *KeyringStore) DeleteToken(locationID string) error {
	locationID = normalize(locationID)
	if locationID == "" {
		return errMissingLocation
	}

	if err := s.ring.Remove(tokenKey(locationID)); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("delete token: %w", err)
	}

	return nil
}

func (s *KeyringStore) ListTokens() ([]Token, error) {
	keys, err := s.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("list keyring keys: %w", err)
	}

	out := make([]Token, 0, len(keys))
	for _, k := range keys {
		loc, ok := ParseTokenKey(k)
		if !ok {
			continue
		}

		tok, err := s.GetToken(loc)
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })

	return out, nil
}
