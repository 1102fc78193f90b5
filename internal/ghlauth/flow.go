package ghlauth

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/bradenrollio/easycal-sub000/internal/secrets"
)

// DefaultRedirectURL must be registered on the marketplace app. The
// loopback flow listens on its host and port.
const DefaultRedirectURL = "http://127.0.0.1:8976/oauth/callback"

type AuthorizeOptions struct {
	RedirectURL string
	LocationID  string
	// Manual prints the consent URL and reads the redirect URL back from
	// Prompt instead of running a loopback server.
	Manual bool
	// AuthURL is a redirect URL captured in a browser; it finishes a flow
	// without prompting.
	AuthURL      string
	RequireState bool
	Timeout      time.Duration
	Prompt       io.Reader
	Status       io.Writer
}

type RemoteStart struct {
	URL         string
	StateReused bool
}

var (
	errAuthorization     = errors.New("authorization error")
	errInvalidRedirect   = errors.New("invalid redirect URL")
	errNoCodeInURL       = errors.New("no code found in URL")
	errMissingState      = errors.New("missing state in redirect URL")
	errPendingMissing    = errors.New("pending authorization missing or expired; run remote step 1 again")
	errStateMismatch     = errors.New("state mismatch")
	errMissingCredential = errors.New("oauth client id is not configured")
)

var (
	openBrowserFn = openBrowser
	randomStateFn = randomState
)

// Authorize runs the consent flow for one location and stores the grant.
func (p *Provider) Authorize(ctx context.Context, opts AuthorizeOptions) (secrets.Token, error) {
	if p.Config.ClientID == "" {
		return secrets.Token{}, errMissingCredential
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if strings.TrimSpace(opts.RedirectURL) == "" {
		opts.RedirectURL = DefaultRedirectURL
	}
	if opts.Status == nil {
		opts.Status = os.Stderr
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if raw := strings.TrimSpace(opts.AuthURL); raw != "" {
		return p.finish(ctx, opts, raw)
	}

	if opts.Manual {
		return p.authorizeManual(ctx, opts)
	}

	return p.authorizeServer(ctx, opts)
}

// StartRemote saves a pending authorization and returns the consent URL.
// An unexpired pending authorization for the same redirect is reused.
func (p *Provider) StartRemote(opts AuthorizeOptions) (RemoteStart, error) {
	if p.Config.ClientID == "" {
		return RemoteStart{}, errMissingCredential
	}
	redirect := strings.TrimSpace(opts.RedirectURL)
	if redirect == "" {
		redirect = DefaultRedirectURL
	}

	st, reused, err := findPending(redirect, opts.LocationID)
	if err != nil {
		return RemoteStart{}, err
	}

	if !reused {
		state, err := randomStateFn()
		if err != nil {
			return RemoteStart{}, err
		}

		st = pendingAuth{State: state, RedirectURL: redirect, LocationID: opts.LocationID}
		if err := savePending(st); err != nil {
			return RemoteStart{}, err
		}
	}

	return RemoteStart{URL: p.AuthCodeURL(st.State, st.RedirectURL), StateReused: reused}, nil
}

func (p *Provider) authorizeManual(ctx context.Context, opts AuthorizeOptions) (secrets.Token, error) {
	start, err := p.StartRemote(opts)
	if err != nil {
		return secrets.Token{}, err
	}

	fmt.Fprintln(opts.Status, "Visit this URL and pick the sub-account to install into:")
	fmt.Fprintln(opts.Status, start.URL)
	fmt.Fprintln(opts.Status)
	fmt.Fprint(opts.Status, "Paste the redirect URL from your browser: ")

	in := opts.Prompt
	if in == nil {
		in = os.Stdin
	}

	lineCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
			errCh <- err
			return
		}
		lineCh <- line
	}()

	select {
	case line := <-lineCh:
		opts.RequireState = true
		return p.finish(ctx, opts, strings.TrimSpace(line))
	case err := <-errCh:
		if errors.Is(err, io.EOF) {
			return secrets.Token{}, fmt.Errorf("authorization canceled: %w", context.Canceled)
		}
		return secrets.Token{}, fmt.Errorf("read redirect url: %w", err)
	case <-ctx.Done():
		return secrets.Token{}, fmt.Errorf("authorization canceled: %w", ctx.Err())
	}
}

func (p *Provider) finish(ctx context.Context, opts AuthorizeOptions, raw string) (secrets.Token, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return secrets.Token{}, fmt.Errorf("parse redirect url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return secrets.Token{}, fmt.Errorf("parse redirect url: %w", errInvalidRedirect)
	}

	q := parsed.Query()
	if e := q.Get("error"); e != "" {
		return secrets.Token{}, fmt.Errorf("%w: %s", errAuthorization, e)
	}

	code := q.Get("code")
	if code == "" {
		return secrets.Token{}, errNoCodeInURL
	}

	state := q.Get("state")
	if state == "" && opts.RequireState {
		return secrets.Token{}, errMissingState
	}

	redirect := redirectBase(parsed)
	location := opts.LocationID

	if state != "" {
		path, err := pendingPathFor(state)
		if err != nil {
			return secrets.Token{}, err
		}

		st, ok, err := loadPending(path)
		if err != nil {
			return secrets.Token{}, err
		}
		switch {
		case !ok && opts.RequireState:
			return secrets.Token{}, errPendingMissing
		case ok && st.RedirectURL != redirect:
			return secrets.Token{}, errStateMismatch
		case ok:
			redirect = st.RedirectURL
			if location == "" {
				location = st.LocationID
			}
		}
	}

	tok, err := p.Exchange(ctx, code, redirect, location)
	if err != nil {
		return secrets.Token{}, err
	}

	if state != "" {
		clearPending(state)
	}

	return tok, nil
}

func (p *Provider) authorizeServer(ctx context.Context, opts AuthorizeOptions) (secrets.Token, error) {
	redirect, err := url.Parse(opts.RedirectURL)
	if err != nil || redirect.Host == "" {
		return secrets.Token{}, fmt.Errorf("redirect url %q: %w", opts.RedirectURL, errInvalidRedirect)
	}

	state, err := randomStateFn()
	if err != nil {
		return secrets.Token{}, err
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", redirect.Host)
	if err != nil {
		return secrets.Token{}, fmt.Errorf("listen for callback: %w", err)
	}
	defer func() { _ = ln.Close() }()

	callbackPath := redirect.EscapedPath()
	if callbackPath == "" {
		callbackPath = "/"
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	send := func(ch chan error, err error) {
		select {
		case ch <- err:
		default:
		}
	}

	srv := &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != callbackPath {
				http.NotFound(w, r)
				return
			}
			q := r.URL.Query()
			w.Header().Set("Content-Type", "text/html; charset=utf-8")

			switch {
			case q.Get("error") != "":
				send(errCh, fmt.Errorf("%w: %s", errAuthorization, q.Get("error")))
				_, _ = io.WriteString(w, cancelledPage)
			case q.Get("state") != state:
				send(errCh, errStateMismatch)
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, errorPage)
			case q.Get("code") == "":
				send(errCh, errMissingCode)
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, errorPage)
			default:
				select {
				case codeCh <- q.Get("code"):
				default:
				}
				_, _ = io.WriteString(w, successPage)
			}
		}),
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			send(errCh, err)
		}
	}()

	authURL := p.AuthCodeURL(state, opts.RedirectURL)
	fmt.Fprintln(opts.Status, "Opening browser for authorization…")
	fmt.Fprintln(opts.Status, "If the browser doesn't open, visit this URL:")
	fmt.Fprintln(opts.Status, authURL)
	_ = openBrowserFn(authURL)

	select {
	case code := <-codeCh:
		fmt.Fprintln(opts.Status, "Authorization received. Finishing…")
		tok, err := p.Exchange(ctx, code, opts.RedirectURL, opts.LocationID)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)

		return tok, err
	case err := <-errCh:
		_ = srv.Close()
		return secrets.Token{}, err
	case <-ctx.Done():
		_ = srv.Close()
		return secrets.Token{}, fmt.Errorf("authorization canceled: %w", ctx.Err())
	}
}

func redirectBase(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	return fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, path)
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func openBrowser(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}

	return cmd.Start()
}

const (
	successPage   = `<!doctype html><html><body><h2>easycal is authorized.</h2><p>You can close this window.</p></body></html>`
	errorPage     = `<!doctype html><html><body><h2>Authorization failed.</h2><p>Return to the terminal and try again.</p></body></html>`
	cancelledPage = `<!doctype html><html><body><h2>Authorization cancelled.</h2><p>You can close this window.</p></body></html>`
)
