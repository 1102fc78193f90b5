package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/term"

	"github.com/bradenrollio/easycal-sub000/internal/config"
	"github.com/bradenrollio/easycal-sub000/internal/errfmt"
	"github.com/bradenrollio/easycal-sub000/internal/ghlauth"
	"github.com/bradenrollio/easycal-sub000/internal/logging"
	"github.com/bradenrollio/easycal-sub000/internal/outfmt"
	"github.com/bradenrollio/easycal-sub000/internal/secrets"
	"github.com/bradenrollio/easycal-sub000/internal/ui"
)

const (
	colorAuto  = "auto"
	colorNever = "never"
	strTrue    = "true"
)

type RootFlags struct {
	Color       string        `help:"Color output: auto|always|never" default:"${color}"`
	Location    string        `help:"Sub-account (location) id; defaults to EASYCAL_LOCATION or default_location" aliases:"loc" short:"l"`
	JSON        bool          `help:"Output JSON to stdout (best for scripting)" default:"${json}" short:"j"`
	Plain       bool          `help:"Output stable, parseable text to stdout (TSV; no colors)" default:"${plain}" aliases:"tsv" short:"p"`
	ResultsOnly bool          `name:"results-only" help:"In JSON mode, emit only the primary list (drops summary/status/jobId)"`
	Select      string        `name:"select" help:"In JSON mode, select comma-separated fields (supports dot paths)"`
	DryRun      bool          `help:"Do not write to GoHighLevel; print the requests that would be sent" aliases:"preview,dryrun" short:"n"`
	Timeout     time.Duration `help:"Overall deadline for the command" default:"30m"`
	Verbose     bool          `help:"Enable verbose logging" short:"v"`
}

type CLI struct {
	RootFlags `embed:""`

	Version kong.VersionFlag `help:"Print version and exit"`

	Provision    ProvisionCmd    `cmd:"" help:"Create or update one calendar per CSV row"`
	Validate     ValidateCmd     `cmd:"" aliases:"check" help:"Validate a calendar CSV without calling GoHighLevel"`
	Availability AvailabilityCmd `cmd:"" aliases:"avail" help:"Date-specific overrides, blocked days and clears"`
	Calendars    CalendarsCmd    `cmd:"" aliases:"calendar,cal" help:"Calendars in the location"`
	Groups       GroupsCmd       `cmd:"" aliases:"group" help:"Calendar groups in the location"`
	Brand        BrandCmd        `cmd:"" aliases:"branding" help:"Tenant brand configuration"`
	Defaults     DefaultsCmd     `cmd:"" help:"Tenant calendar defaults"`
	Jobs         JobsCmd         `cmd:"" aliases:"job" help:"Provisioning and availability job history"`
	Auth         AuthCmd         `cmd:"" help:"Location authorization"`
	Config       ConfigCmd       `cmd:"" help:"Manage configuration"`
	ExitCodes    ExitCodesCmd    `cmd:"" name:"exit-codes" aliases:"exitcodes" help:"Print stable exit codes"`
	VersionCmd   VersionCmd      `cmd:"" name:"version" help:"Print version"`
}

type exitPanic struct{ code int }

func Execute(args []string) (err error) {
	parser, cli, err := newParser(helpDescription())
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
		parsedErr := wrapParseError(err)
		_, _ = fmt.Fprintln(os.Stderr, errfmt.Format(parsedErr))
		return parsedErr
	}

	_, logCloser, err := logging.Setup(logging.Options{Verbose: cli.Verbose, Stderr: os.Stderr})
	if err != nil {
		// A read-only config dir still gets stderr logging.
		_, logCloser, _ = logging.Setup(logging.Options{Verbose: cli.Verbose, File: "-", Stderr: os.Stderr})
		slog.Warn("log file unavailable", "err", err)
	}
	defer func() { _ = logCloser.Close() }()

	// Agent mode: default to JSON when stdout is not a terminal.
	if envBool("EASYCAL_AUTO_JSON") && !cli.JSON && !cli.Plain && !term.IsTerminal(int(os.Stdout.Fd())) {
		cli.JSON = true
	}

	mode, err := outfmt.FromFlags(cli.JSON, cli.Plain)
	if err != nil {
		return newUsageError(err)
	}

	if cli.Timeout <= 0 {
		return usage("--timeout must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cli.Timeout)
	defer cancel()

	ctx = outfmt.WithMode(ctx, mode)
	ctx = outfmt.WithJSONTransform(ctx, outfmt.JSONTransform{
		ResultsOnly: cli.ResultsOnly,
		Select:      splitCommaList(cli.Select),
	})

	uiColor := cli.Color
	if outfmt.IsJSON(ctx) || outfmt.IsPlain(ctx) {
		uiColor = colorNever
	}

	u, err := ui.New(ui.Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Color:  uiColor,
	})
	if err != nil {
		return newUsageError(err)
	}
	ctx = ui.WithUI(ctx, u)

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.Bind(&cli.RootFlags)

	err = kctx.Run()
	if err == nil {
		return nil
	}
	if ExitCode(err) == 0 {
		return nil
	}
	err = stableExitCode(err)

	if msg := strings.TrimSpace(errfmt.Format(err)); msg != "" {
		u.Err().Error(msg)
	}
	return err
}

func wrapParseError(err error) error {
	if err == nil {
		return nil
	}
	var parseErr *kong.ParseError
	if errors.As(err, &parseErr) {
		return &ExitError{Code: exitCodeUsage, Err: parseErr}
	}
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", strTrue, "yes", "y", "on":
		return true
	default:
		return false
	}
}

func boolString(v bool) string {
	return strconv.FormatBool(v)
}

func splitCommaList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newParser(description string) (*kong.Kong, *CLI, error) {
	envMode := outfmt.FromEnv()
	vars := kong.Vars{
		"color":        envOr("EASYCAL_COLOR", colorAuto),
		"json":         boolString(envMode.JSON),
		"plain":        boolString(envMode.Plain),
		"version":      VersionString(),
		"redirect_url": envOr("EASYCAL_REDIRECT_URL", ghlauth.DefaultRedirectURL),
	}

	cli := &CLI{}
	parser, err := kong.New(
		cli,
		kong.Name(config.AppName),
		kong.Description(description),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars(vars),
		kong.Writers(os.Stdout, os.Stderr),
		kong.Exit(func(code int) { panic(exitPanic{code: code}) }),
	)
	if err != nil {
		return nil, nil, err
	}
	return parser, cli, nil
}

func helpDescription() string {
	desc := "Bulk calendar provisioning and availability overrides for GoHighLevel sub-accounts"

	configLine := "unknown"
	if configPath, err := config.ConfigPath(); err != nil {
		configLine = fmt.Sprintf("error: %v", err)
	} else if configPath != "" {
		configLine = configPath
	}

	var backendLine string
	if backendInfo, err := secrets.ResolveKeyringBackendInfo(); err != nil {
		backendLine = fmt.Sprintf("error: %v", err)
	} else if backendInfo.Value != "" {
		backendLine = fmt.Sprintf("%s (source: %s)", backendInfo.Value, backendInfo.Source)
	}

	return fmt.Sprintf("%s\n\nConfig:\n  file: %s\n  keyring backend: %s", desc, configLine, backendLine)
}

// newUsageError wraps errors in a way main() can map to exit code 2.
func newUsageError(err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: exitCodeUsage, Err: err}
}

func usage(msg string) error {
	return newUsageError(errors.New(msg))
}
