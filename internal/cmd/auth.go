package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/bradenrollio/easycal-sub000/internal/config"
	"github.com/bradenrollio/easycal-sub000/internal/ghlauth"
	"github.com/bradenrollio/easycal-sub000/internal/outfmt"
	"github.com/bradenrollio/easycal-sub000/internal/secrets"
	"github.com/bradenrollio/easycal-sub000/internal/ui"
)

// Swapped in tests.
var stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

type AuthCmd struct {
	Add    AuthAddCmd    `cmd:"" name:"add" aliases:"login" help:"Install the app into a location and store its grant"`
	List   AuthListCmd   `cmd:"" name:"list" aliases:"ls" help:"List stored location grants"`
	Status AuthStatusCmd `cmd:"" name:"status" help:"Show auth configuration and keyring backend"`
	Remove AuthRemoveCmd `cmd:"" name:"remove" aliases:"rm,logout" help:"Remove a stored location grant"`
}

type AuthAddCmd struct {
	Manual      bool          `name:"manual" help:"Browserless flow (paste the redirect URL)"`
	Remote      bool          `name:"remote" help:"Two-step flow for headless hosts (print URL, then exchange)"`
	Step        int           `name:"step" help:"Remote step: 1=print URL, 2=exchange redirect URL"`
	AuthURL     string        `name:"auth-url" help:"Redirect URL from the browser (required for --remote --step 2)"`
	RedirectURL string        `name:"redirect-url" help:"OAuth redirect URL registered on the app" default:"${redirect_url}"`
	Timeout     time.Duration `name:"timeout" help:"Authorization timeout (manual flows default to 5m)"`
}

func (c *AuthAddCmd) Run(ctx context.Context, flags *RootFlags) error {
	u := ui.FromContext(ctx)

	authURL := strings.TrimSpace(c.AuthURL)
	if c.Step != 0 && c.Step != 1 && c.Step != 2 {
		return usage("step must be 1 or 2")
	}
	if c.Step != 0 && !c.Remote {
		return usage("--step requires --remote")
	}

	cfg, err := config.Read()
	if err != nil {
		return err
	}
	// The location is optional: the consent screen picks one and the token
	// response names it.
	location := strings.TrimSpace(flags.Location)

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	opts := ghlauth.AuthorizeOptions{
		RedirectURL: c.RedirectURL,
		LocationID:  location,
		Manual:      c.Manual || c.Remote,
		AuthURL:     authURL,
		Timeout:     c.Timeout,
		Status:      os.Stderr,
	}

	if c.Remote {
		step := c.Step
		if step == 0 {
			step = 1
			if authURL != "" {
				step = 2
			}
		}
		switch step {
		case 1:
			if authURL != "" {
				return usage("remote step 1 does not accept --auth-url")
			}
			start, err := provider.StartRemote(opts)
			if err != nil {
				return err
			}
			if outfmt.IsJSON(ctx) {
				return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
					"auth_url":     start.URL,
					"state_reused": start.StateReused,
				})
			}
			u.Out().Printf("auth_url\t%s", start.URL)
			u.Out().Printf("state_reused\t%t", start.StateReused)
			u.Err().Println("Run again with --remote --step 2 --auth-url <redirect-url>")
			return nil
		case 2:
			if authURL == "" {
				return usage("remote step 2 requires --auth-url")
			}
			opts.RequireState = true
		}
	}

	if opts.Timeout == 0 && (opts.Manual || authURL != "") {
		opts.Timeout = 5 * time.Minute
	}

	if err := dryRunExit(ctx, flags, "auth.add", map[string]any{
		"location":     location,
		"redirect_url": c.RedirectURL,
		"scopes":       provider.Config.Scopes,
		"manual":       c.Manual,
		"remote":       c.Remote,
	}); err != nil {
		return err
	}

	tok, err := provider.Authorize(ctx, opts)
	if err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"stored":   true,
			"location": tok.LocationID,
			"company":  tok.CompanyID,
			"scopes":   tok.Scopes,
		})
	}
	u.Out().Printf("location\t%s", tok.LocationID)
	if tok.CompanyID != "" {
		u.Out().Printf("company\t%s", tok.CompanyID)
	}
	u.Out().Printf("scopes\t%s", strings.Join(tok.Scopes, ","))
	if cfg.DefaultLocation == "" {
		u.Err().Printf("Tip: easycal config set default_location %s", tok.LocationID)
	}
	return nil
}

type AuthListCmd struct {
	Check   bool          `name:"check" help:"Verify each grant by fetching an access token"`
	Timeout time.Duration `name:"timeout" help:"Per-grant check timeout" default:"15s"`
}

type tokenRow struct {
	secrets.Token
	Valid *bool  `json:"valid,omitempty"`
	Error string `json:"error,omitempty"`
}

func (c *AuthListCmd) Run(ctx context.Context, _ *RootFlags) error {
	u := ui.FromContext(ctx)
	store, err := openSecretsStore()
	if err != nil {
		return err
	}
	tokens, err := store.ListTokens()
	if err != nil {
		return err
	}

	var provider *ghlauth.Provider
	if c.Check && len(tokens) > 0 {
		cfg, err := config.Read()
		if err != nil {
			return err
		}
		if provider, err = newProvider(cfg); err != nil {
			return err
		}
	}

	rows := make([]tokenRow, 0, len(tokens))
	for _, t := range tokens {
		row := tokenRow{Token: t}
		if provider != nil {
			checkCtx, cancel := context.WithTimeout(ctx, c.Timeout)
			_, cerr := provider.AccessToken(checkCtx, t.LocationID)
			cancel()
			ok := cerr == nil
			row.Valid = &ok
			if cerr != nil {
				row.Error = cerr.Error()
			}
		}
		rows = append(rows, row)
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"tokens": rows})
	}
	if len(rows) == 0 {
		u.Err().Println("No tokens stored")
		return nil
	}

	header := []string{"LOCATION", "COMPANY", "UPDATED", "SCOPES"}
	if c.Check {
		header = append(header, "VALID", "ERROR")
	}
	lines := make([][]string, 0, len(rows))
	for _, r := range rows {
		updated := ""
		if !r.UpdatedAt.IsZero() {
			updated = r.UpdatedAt.UTC().Format(time.RFC3339)
		}
		line := []string{r.LocationID, r.CompanyID, updated, strings.Join(r.Scopes, ",")}
		if c.Check {
			line = append(line, fmt.Sprint(r.Valid != nil && *r.Valid), r.Error)
		}
		lines = append(lines, line)
	}

	if outfmt.IsPlain(ctx) {
		return outfmt.WriteTSV(os.Stdout, header, lines)
	}
	return writeTable(u, header, lines)
}

type AuthStatusCmd struct{}

func (c *AuthStatusCmd) Run(ctx context.Context, flags *RootFlags) error {
	u := ui.FromContext(ctx)
	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	configExists := true
	if _, statErr := os.Stat(configPath); errors.Is(statErr, os.ErrNotExist) {
		configExists = false
	}
	backendInfo, err := secrets.ResolveKeyringBackendInfo()
	if err != nil {
		return err
	}

	cfg, err := config.Read()
	if err != nil {
		return err
	}
	_, credErr := config.ReadClientCredentials()
	credentialsConfigured := credErr == nil

	location, _ := resolveLocation(flags, cfg)
	tokenStored := false
	var tok secrets.Token
	if location != "" {
		store, err := openSecretsStore()
		if err != nil {
			return err
		}
		if t, err := store.GetToken(location); err == nil {
			tok = t
			tokenStored = true
		}
	}

	if outfmt.IsJSON(ctx) {
		loc := map[string]any{
			"id":           location,
			"token_stored": tokenStored,
		}
		if tokenStored {
			loc["company"] = tok.CompanyID
			loc["scopes"] = tok.Scopes
			loc["updated_at"] = tok.UpdatedAt
		}
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"config": map[string]any{
				"path":   configPath,
				"exists": configExists,
			},
			"keyring": map[string]any{
				"backend": backendInfo.Value,
				"source":  backendInfo.Source,
			},
			"base_url":               cfg.ResolvedBaseURL(),
			"credentials_configured": credentialsConfigured,
			"location":               loc,
		})
	}
	u.Out().Printf("config_path\t%s", configPath)
	u.Out().Printf("config_exists\t%t", configExists)
	u.Out().Printf("keyring_backend\t%s", backendInfo.Value)
	u.Out().Printf("keyring_backend_source\t%s", backendInfo.Source)
	u.Out().Printf("base_url\t%s", cfg.ResolvedBaseURL())
	u.Out().Printf("credentials_configured\t%t", credentialsConfigured)
	if location != "" {
		u.Out().Printf("location\t%s", location)
		u.Out().Printf("token_stored\t%t", tokenStored)
		if tokenStored && tok.CompanyID != "" {
			u.Out().Printf("company\t%s", tok.CompanyID)
		}
	}
	return nil
}

type AuthRemoveCmd struct {
	Location string `arg:"" name:"location" optional:"" help:"Location id (defaults to --location)"`
	Force    bool   `name:"force" short:"y" help:"Skip the confirmation prompt"`
}

func (c *AuthRemoveCmd) Run(ctx context.Context, flags *RootFlags) error {
	u := ui.FromContext(ctx)
	location := strings.TrimSpace(c.Location)
	if location == "" {
		cfg, err := config.Read()
		if err != nil {
			return err
		}
		if location, err = resolveLocation(flags, cfg); err != nil {
			return err
		}
	}

	if err := dryRunExit(ctx, flags, "auth.remove", map[string]any{"location": location}); err != nil {
		return err
	}
	if err := confirmDestructive(c.Force, fmt.Sprintf("remove stored grant for %s", location)); err != nil {
		return err
	}

	store, err := openSecretsStore()
	if err != nil {
		return err
	}
	if err := store.DeleteToken(location); err != nil {
		return err
	}
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"deleted":  true,
			"location": location,
		})
	}
	u.Out().Printf("deleted\ttrue")
	u.Out().Printf("location\t%s", location)
	return nil
}

func confirmDestructive(force bool, action string) error {
	if force {
		return nil
	}
	if !stdinIsTerminal() {
		return usage(action + ": refusing without --force (no TTY)")
	}

	fmt.Fprintf(os.Stderr, "About to %s. Continue? [y/N] ", action)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	default:
		return &ExitError{Code: exitCodeCancelled, Err: errors.New("cancelled")}
	}
}
