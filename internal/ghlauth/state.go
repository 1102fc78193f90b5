package ghlauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bradenrollio/easycal-sub000/internal/config"
)

const (
	pendingFilePrefix = "oauth-pending-"
	pendingFileSuffix = ".json"
)

var errEmptyState = errors.New("empty oauth state")

// pendingTTL is shorter than the marketplace's authorization code lifetime.
const pendingTTL = 10 * time.Minute

// pendingAuth is an authorization started by `auth add --remote --step 1`
// and finished by step 2, possibly from another shell.
type pendingAuth struct {
	State       string    `json:"state"`
	RedirectURL string    `json:"redirect_url"`
	LocationID  string    `json:"location_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

var (
	pendingDirFn = config.EnsureDir
	pendingNowFn = time.Now
)

func pendingPathFor(state string) (string, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return "", errEmptyState
	}

	dir, err := pendingDirFn()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, pendingFilePrefix+state+pendingFileSuffix), nil
}

// findPending returns the newest unexpired pending authorization for the
// redirect URL, so repeated step-1 runs hand out the same URL.
func findPending(redirectURL string, locationID string) (pendingAuth, bool, error) {
	dir, err := pendingDirFn()
	if err != nil {
		return pendingAuth{}, false, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return pendingAuth{}, false, fmt.Errorf("read pending auth dir: %w", err)
	}

	var best pendingAuth
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasPrefix(name, pendingFilePrefix) || !strings.HasSuffix(name, pendingFileSuffix) {
			continue
		}

		st, ok, err := loadPending(filepath.Join(dir, name))
		if err != nil {
			return pendingAuth{}, false, err
		}
		if !ok || st.RedirectURL != redirectURL || st.LocationID != locationID {
			continue
		}
		if best.State == "" || st.CreatedAt.After(best.CreatedAt) {
			best = st
		}
	}

	return best, best.State != "", nil
}

func loadPending(path string) (pendingAuth, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // config path
	if err != nil {
		if os.IsNotExist(err) {
			return pendingAuth{}, false, nil
		}

		return pendingAuth{}, false, fmt.Errorf("read pending auth: %w", err)
	}

	var st pendingAuth
	if err := json.Unmarshal(data, &st); err != nil || st.State == "" {
		_ = os.Remove(path)
		return pendingAuth{}, false, nil //nolint:nilerr // corrupt entries are a cache miss
	}

	if pendingNowFn().Sub(st.CreatedAt) > pendingTTL {
		_ = os.Remove(path)
		return pendingAuth{}, false, nil
	}

	return st, true, nil
}

func savePending(st pendingAuth) error {
	path, err := pendingPathFor(st.State)
	if err != nil {
		return err
	}

	st.CreatedAt = pendingNowFn().UTC()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pending auth: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write pending auth: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit pending auth: %w", err)
	}

	return nil
}

func clearPending(state string) {
	if path, err := pendingPathFor(state); err == nil {
		_ = os.Remove(path)
	}
}
