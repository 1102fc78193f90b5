package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/alecthomas/kong"

	"github.com/bradenrollio/easycal-sub000/internal/config"
	"github.com/bradenrollio/easycal-sub000/internal/ghlapi"
	"github.com/bradenrollio/easycal-sub000/internal/ghlauth"
	"github.com/bradenrollio/easycal-sub000/internal/secrets"
)

const (
	testLocation    = "loc1"
	testAccessToken = "at-valid"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = orig
	b, _ := io.ReadAll(r)
	_ = r.Close()
	return string(b)
}

func captureStderr(t *testing.T, fn func()) string {
	t.Helper()

	orig := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stderr = w

	fn()

	_ = w.Close()
	os.Stderr = orig
	b, _ := io.ReadAll(r)
	_ = r.Close()
	return string(b)
}

func withStdin(t *testing.T, input string, fn func()) {
	t.Helper()

	orig := os.Stdin
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdin = r

	_, _ = io.WriteString(w, input)
	_ = w.Close()

	fn()

	_ = r.Close()
	os.Stdin = orig
}

// execute runs the CLI and returns stdout, stderr and the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var (
		stdout, stderr string
		err            error
	)
	stderr = captureStderr(t, func() {
		stdout = captureStdout(t, func() {
			err = Execute(args)
		})
	})
	return stdout, stderr, err
}

func decodeJSON(t *testing.T, s string) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		t.Fatalf("decode json: %v\n%s", err, s)
	}
	return out
}

func runKong(t *testing.T, cmd any, args []string, ctx context.Context, flags *RootFlags) (err error) {
	t.Helper()

	parser, err := kong.New(
		cmd,
		kong.Vars(kong.Vars{"redirect_url": ghlauth.DefaultRedirectURL}),
		kong.Writers(io.Discard, io.Discard),
		kong.Exit(func(code int) { panic(exitPanic{code: code}) }),
	)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if ep, ok := r.(exitPanic); ok {
				if ep.code == 0 {
					err = nil
					return
				}
				err = &ExitError{Code: ep.code, Err: errors.New("exited")}
				return
			}
			panic(r)
		}
	}()

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	if ctx != nil {
		kctx.BindTo(ctx, (*context.Context)(nil))
	}
	if flags == nil {
		flags = &RootFlags{}
	}
	kctx.Bind(flags)

	return kctx.Run()
}

// fakeGHL is an in-memory calendars API for one location.
type fakeGHL struct {
	mu     sync.Mutex
	cals   map[string]ghlapi.Calendar
	order  []string
	groups []ghlapi.Group
	nextID int

	creates, updates int
}

func newFakeGHL() *fakeGHL {
	return &fakeGHL{cals: make(map[string]ghlapi.Calendar)}
}

func (f *fakeGHL) add(c ghlapi.Calendar) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cals[c.ID] = c
	f.order = append(f.order, c.ID)
}

func (f *fakeGHL) calendar(id string) (ghlapi.Calendar, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.cals[id]
	return c, ok
}

func (f *fakeGHL) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testAccessToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid token"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/calendars/groups" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"groups": f.groups})
	case path == "/calendars/groups" && r.Method == http.MethodPost:
		var in ghlapi.GroupInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.nextID++
		g := ghlapi.Group{ID: fmt.Sprintf("grp%d", f.nextID), LocationID: in.LocationID, Name: in.Name, Slug: in.Slug, IsActive: in.IsActive}
		f.groups = append(f.groups, g)
		writeJSON(w, http.StatusCreated, map[string]any{"group": g})
	case path == "/calendars" && r.Method == http.MethodGet:
		out := make([]ghlapi.Calendar, 0, len(f.order))
		for _, id := range f.order {
			out = append(out, f.cals[id])
		}
		writeJSON(w, http.StatusOK, map[string]any{"calendars": out})
	case path == "/calendars" && r.Method == http.MethodPost:
		var p ghlapi.CalendarPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		f.nextID++
		c := ghlapi.Calendar{ID: fmt.Sprintf("cal%d", f.nextID), CalendarPayload: p}
		f.cals[c.ID] = c
		f.order = append(f.order, c.ID)
		f.creates++
		writeJSON(w, http.StatusCreated, map[string]any{"calendar": c})
	case strings.HasPrefix(path, "/calendars/"):
		id := strings.TrimPrefix(path, "/calendars/")
		c, ok := f.cals[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "calendar not found"})
			return
		}
		if r.Method == http.MethodPut {
			// Fields absent from the body keep their stored values.
			_ = json.NewDecoder(r.Body).Decode(&c.CalendarPayload)
			f.cals[id] = c
			f.updates++
		}
		writeJSON(w, http.StatusOK, map[string]any{"calendar": c})
	case strings.HasPrefix(path, "/locations/"):
		id := strings.TrimPrefix(path, "/locations/")
		writeJSON(w, http.StatusOK, map[string]any{"location": map[string]any{"id": id, "name": "Studio", "timezone": "America/New_York"}})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// setupEnv points the CLI at a temp config dir, the fake API and an
// in-memory keyring holding a valid grant for testLocation.
func setupEnv(t *testing.T, api http.Handler) (string, secrets.Store) {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("EASYCAL_CONFIG_DIR", dir)
	t.Setenv("EASYCAL_CLIENT_ID", "client")
	t.Setenv("EASYCAL_CLIENT_SECRET", "secret")
	t.Setenv("EASYCAL_LOCATION", testLocation)
	t.Setenv("EASYCAL_KEYRING_BACKEND", "file")
	t.Setenv("EASYCAL_DATABASE", "")
	t.Setenv("EASYCAL_JSON", "")
	t.Setenv("EASYCAL_PLAIN", "")
	t.Setenv("EASYCAL_AUTO_JSON", "")
	t.Setenv("EASYCAL_COLOR", "never")

	if api != nil {
		srv := httptest.NewServer(api)
		t.Cleanup(srv.Close)
		t.Setenv("EASYCAL_BASE_URL", srv.URL)
	}

	if err := config.Write(config.File{RequestsPerSecond: 1000}); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ss := secrets.NewKeyringStore(keyring.NewArrayKeyring(nil))
	if err := ss.SetToken(testLocation, secrets.Token{
		LocationID:   testLocation,
		CompanyID:    "co1",
		RefreshToken: "rt",
		AccessToken:  testAccessToken,
		Expiry:       time.Now().Add(time.Hour),
		Scopes:       ghlauth.DefaultScopes,
	}); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	orig := openSecretsStore
	openSecretsStore = func() (secrets.Store, error) { return ss, nil }
	t.Cleanup(func() { openSecretsStore = orig })

	return dir, ss
}

func writeCSV(t *testing.T, dir, body string) string {
	t.Helper()

	path := filepath.Join(dir, "calendars.csv")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}
