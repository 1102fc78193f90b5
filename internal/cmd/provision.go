package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/bradenrollio/easycal-sub000/internal/ghlauth"
	"github.com/bradenrollio/easycal-sub000/internal/outcome"
	"github.com/bradenrollio/easycal-sub000/internal/outfmt"
	"github.com/bradenrollio/easycal-sub000/internal/provision"
	"github.com/bradenrollio/easycal-sub000/internal/rows"
	"github.com/bradenrollio/easycal-sub000/internal/store"
	"github.com/bradenrollio/easycal-sub000/internal/ui"
	"github.com/bradenrollio/easycal-sub000/internal/validate"
)

type ProvisionCmd struct {
	File     string `arg:"" name:"csv" help:"Calendar CSV file (- for stdin)"`
	Timezone string `name:"timezone" aliases:"tz" help:"Location timezone to fall back on (skips the location lookup)"`
}

func (c *ProvisionCmd) Run(ctx context.Context, flags *RootFlags) error {
	in, err := readRows(c.File)
	if err != nil {
		return err
	}

	sess, err := newSession(ctx, flags)
	if err != nil {
		return err
	}

	st, err := openConfiguredStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	brand, err := st.GetBrandConfig(ctx, sess.location)
	if err != nil {
		return err
	}
	defaults, err := st.GetCalendarDefaults(ctx, sess.location)
	if err != nil {
		return err
	}

	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		tz, err = locationTimezone(ctx, sess)
		if err != nil {
			return err
		}
	}

	orch := &provision.Orchestrator{
		Backend:     sess.client,
		Credentials: sess.provider,
		Logger:      slog.Default(),
	}

	var job store.Job
	if !flags.DryRun {
		job, err = st.CreateJob(ctx, sess.location, store.JobProvision, len(in))
		if err != nil {
			return err
		}
		orch.Recorder = provisionRecorder{store: st, jobID: job.ID}
	}

	rep, runErr := orch.Run(ctx, provision.Request{
		LocationID:       sess.location,
		Rows:             in,
		Brand:            brand,
		Defaults:         &defaults,
		LocationTimezone: tz,
		DryRun:           flags.DryRun,
	})

	if job.ID != "" {
		if _, ferr := finishJob(ctx, st, job.ID, runErr != nil); ferr != nil {
			slog.Warn("failed to finish job", "job", job.ID, "err", ferr)
		}
	}

	if err := writeProvisionReport(ctx, rep, job.ID); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if rep.Status != outcome.StatusSuccess {
		return &ExitError{Code: exitCodePartial, Err: fmt.Errorf("%d of %d rows failed", rep.Summary.Failed, rep.Summary.Total)}
	}
	return nil
}

// locationTimezone asks the platform for the sub-account's timezone. Only a
// missing credential is fatal; otherwise branding falls back further.
func locationTimezone(ctx context.Context, sess *session) (string, error) {
	loc, err := sess.client.GetLocation(ctx, sess.location)
	if err == nil {
		return loc.Timezone, nil
	}

	var are *ghlauth.AuthRequiredError
	if errors.As(err, &are) || errors.Is(err, context.Canceled) {
		return "", err
	}

	slog.Warn("location timezone lookup failed; using fallbacks", "location", sess.location, "err", err)
	return "", nil
}

func writeProvisionReport(ctx context.Context, rep provision.Report, jobID string) error {
	if outfmt.IsJSON(ctx) {
		payload := map[string]any{
			"results": rep.Results,
			"summary": rep.Summary,
			"status":  rep.Status,
		}
		if jobID != "" {
			payload["jobId"] = jobID
		}
		if rep.DryRun {
			payload["dryRun"] = true
		}
		if rep.Aborted {
			payload["aborted"] = true
		}
		return outfmt.WriteJSON(ctx, os.Stdout, payload)
	}

	if outfmt.IsPlain(ctx) {
		lines := make([][]string, 0, len(rep.Results))
		for _, r := range rep.Results {
			lines = append(lines, []string{strconv.Itoa(r.Row + 1), r.Name, r.Slug, rowAction(r, rep.DryRun), r.CalendarID, r.Error})
		}
		return outfmt.WriteTSV(os.Stdout, []string{"ROW", "NAME", "SLUG", "RESULT", "CALENDAR", "ERROR"}, lines)
	}

	u := ui.FromContext(ctx)
	w := io.Writer(os.Stdout)
	if u != nil {
		w = u.Out().Writer()
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tNAME\tRESULT\tCALENDAR\tDETAIL")
	for _, r := range rep.Results {
		detail := r.Error
		if detail == "" && len(r.Warnings) > 0 {
			detail = strings.Join(r.Warnings, "; ")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.Row+1, r.Name, rowAction(r, rep.DryRun), r.CalendarID, detail)
	}
	_ = tw.Flush()

	s := rep.Summary
	line := fmt.Sprintf("%d rows: %d created, %d updated, %d failed", s.Total, s.Created, s.Updated, s.Failed)
	if rep.DryRun {
		line = fmt.Sprintf("Dry run, %d rows: %d would succeed, %d failed", s.Total, s.Succeeded, s.Failed)
	}
	if jobID != "" {
		line += " (job " + jobID + ")"
	}

	if u == nil {
		fmt.Fprintln(w, line)
		return nil
	}
	switch rep.Status {
	case outcome.StatusSuccess:
		u.Err().Successf("%s", line)
	case outcome.StatusPartial:
		u.Err().Warnf("%s", line)
	default:
		u.Err().Error(line)
	}
	return nil
}

func rowAction(r provision.RowResult, dryRun bool) string {
	switch {
	case !r.Success:
		return "failed"
	case dryRun && r.IsUpdate:
		return "would-update"
	case dryRun:
		return "would-create"
	case r.IsUpdate:
		return "updated"
	default:
		return "created"
	}
}

type ValidateCmd struct {
	File string `arg:"" name:"csv" help:"Calendar CSV file (- for stdin)"`
}

func (c *ValidateCmd) Run(ctx context.Context) error {
	in, err := readRows(c.File)
	if err != nil {
		return err
	}

	res := validate.All(in)
	issues := res.Issues
	if issues == nil {
		issues = []validate.Issue{}
	}

	switch {
	case outfmt.IsJSON(ctx):
		if err := outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"rows":     len(in),
			"valid":    len(res.Valid),
			"blocked":  len(res.Blocked),
			"errors":   res.Errors,
			"warnings": res.Warns,
			"issues":   issues,
		}); err != nil {
			return err
		}
	case outfmt.IsPlain(ctx):
		lines := make([][]string, 0, len(issues))
		for _, is := range issues {
			lines = append(lines, []string{strconv.Itoa(is.Row + 1), is.Field, string(is.Severity), is.Message})
		}
		if err := outfmt.WriteTSV(os.Stdout, []string{"ROW", "FIELD", "SEVERITY", "MESSAGE"}, lines); err != nil {
			return err
		}
	default:
		u := ui.FromContext(ctx)
		for _, is := range issues {
			if is.Severity == validate.SeverityError {
				u.Out().Error(is.String())
			} else {
				u.Out().Warnf("%s", is.String())
			}
		}
		u.Err().Printf("%d rows: %d valid, %d blocked (%d errors, %d warnings)", len(in), len(res.Valid), len(res.Blocked), res.Errors, res.Warns)
	}

	if res.Errors > 0 {
		return &ExitError{Code: exitCodePartial, Err: fmt.Errorf("%d of %d rows have errors", len(res.Blocked), len(in))}
	}
	return nil
}

func readRows(path string) ([]rows.Row, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, usage("missing csv path")
	}

	if path == "-" {
		return rows.Read(os.Stdin)
	}

	f, err := os.Open(path) //nolint:gosec // user-provided input file
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	return rows.Read(f)
}
