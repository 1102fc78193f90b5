// Package ui writes human-oriented output. Color is decided once per stream
// from --color and the terminal.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

var errInvalidColor = errors.New("invalid --color (expected auto, always or never)")

type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Color  string
}

type UI struct {
	out *Printer
	err *Printer
}

func New(opts Options) (*UI, error) {
	mode := strings.ToLower(strings.TrimSpace(opts.Color))
	switch mode {
	case "", "auto", "always", "never":
	default:
		return nil, fmt.Errorf("%w: %q", errInvalidColor, opts.Color)
	}

	return &UI{
		out: newPrinter(opts.Stdout, mode),
		err: newPrinter(opts.Stderr, mode),
	}, nil
}

func (u *UI) Out() *Printer { return u.out }
func (u *UI) Err() *Printer { return u.err }

type ctxKey struct{}

func WithUI(ctx context.Context, u *UI) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func FromContext(ctx context.Context) *UI {
	if u, ok := ctx.Value(ctxKey{}).(*UI); ok {
		return u
	}

	return nil
}

// Printer writes lines to one stream. Printf and Println always end the
// line.
type Printer struct {
	w       io.Writer
	profile termenv.Profile
}

func newPrinter(w io.Writer, mode string) *Printer {
	if w == nil {
		w = io.Discard
	}

	profile := termenv.Ascii
	switch mode {
	case "always":
		profile = termenv.ANSI
	case "never":
	default:
		profile = termenv.NewOutput(w).EnvColorProfile()
	}

	return &Printer{w: w, profile: profile}
}

func (p *Printer) Writer() io.Writer { return p.w }

// Colored reports whether escape sequences are written.
func (p *Printer) Colored() bool { return p.profile != termenv.Ascii }

func (p *Printer) Printf(format string, args ...any) {
	p.line(fmt.Sprintf(format, args...))
}

func (p *Printer) Println(msg string) {
	p.line(msg)
}

func (p *Printer) Successf(format string, args ...any) {
	p.line(p.paint(fmt.Sprintf(format, args...), "2"))
}

func (p *Printer) Warnf(format string, args ...any) {
	p.line(p.paint(fmt.Sprintf(format, args...), "3"))
}

func (p *Printer) Error(msg string) {
	p.line(p.paint(msg, "1"))
}

func (p *Printer) Errorf(format string, args ...any) {
	p.Error(fmt.Sprintf(format, args...))
}

func (p *Printer) paint(s string, color string) string {
	if !p.Colored() {
		return s
	}

	return termenv.String(s).Foreground(p.profile.Color(color)).String()
}

func (p *Printer) line(s string) {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	_, _ = io.WriteString(p.w, s)
}
