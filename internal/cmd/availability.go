package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bradenrollio/easycal-sub000/internal/availability"
	"github.com/bradenrollio/easycal-sub000/internal/outcome"
	"github.com/bradenrollio/easycal-sub000/internal/outfmt"
	"github.com/bradenrollio/easycal-sub000/internal/store"
	"github.com/bradenrollio/easycal-sub000/internal/timeparse"
	"github.com/bradenrollio/easycal-sub000/internal/ui"
)

// Swapped in tests.
var nowFn = time.Now

type AvailabilityCmd struct {
	Override AvailabilityOverrideCmd `cmd:"" aliases:"set-time-range,set" help:"Replace one date's hours with a single time range"`
	Block    AvailabilityBlockCmd    `cmd:"" aliases:"block-day" help:"Block a whole date"`
	Clear    AvailabilityClearCmd    `cmd:"" aliases:"remove,clear-all" help:"Remove every date-specific override"`
}

type CalendarTargets struct {
	Calendars []string `name:"calendar" aliases:"cal" help:"Calendar id (repeatable or comma-separated)" sep:","`
	All       bool     `name:"all" help:"Every calendar in the location"`
}

type AvailabilityOverrideCmd struct {
	CalendarTargets `embed:""`

	Date  string `name:"date" required:"" help:"Date: YYYY-MM-DD, today, tomorrow, a weekday or next <weekday>"`
	Start string `name:"start" required:"" help:"Start time (HH:MM or h:MM AM/PM)"`
	End   string `name:"end" required:"" help:"End time (HH:MM or h:MM AM/PM)"`
}

func (c *AvailabilityOverrideCmd) Run(ctx context.Context, flags *RootFlags) error {
	day, err := parseDayFlag(c.Date)
	if err != nil {
		return err
	}
	return runAvailability(ctx, flags, c.CalendarTargets, availability.Op{
		Kind:      availability.KindOverride,
		Date:      day,
		StartTime: c.Start,
		EndTime:   c.End,
	})
}

type AvailabilityBlockCmd struct {
	CalendarTargets `embed:""`

	Date string `name:"date" required:"" help:"Date: YYYY-MM-DD, today, tomorrow, a weekday or next <weekday>"`
}

func (c *AvailabilityBlockCmd) Run(ctx context.Context, flags *RootFlags) error {
	day, err := parseDayFlag(c.Date)
	if err != nil {
		return err
	}
	return runAvailability(ctx, flags, c.CalendarTargets, availability.Op{Kind: availability.KindBlock, Date: day})
}

type AvailabilityClearCmd struct {
	CalendarTargets `embed:""`
}

func (c *AvailabilityClearCmd) Run(ctx context.Context, flags *RootFlags) error {
	return runAvailability(ctx, flags, c.CalendarTargets, availability.Op{Kind: availability.KindRemove})
}

func parseDayFlag(expr string) (string, error) {
	day, err := timeparse.ParseDateExpr(expr, nowFn())
	if err != nil {
		return "", newUsageError(err)
	}
	return day, nil
}

func runAvailability(ctx context.Context, flags *RootFlags, targets CalendarTargets, op availability.Op) error {
	op, err := op.Normalize()
	if err != nil {
		return newUsageError(err)
	}

	if targets.All == (len(targets.Calendars) > 0) {
		return usage("pass --calendar <id> or --all (not both)")
	}

	sess, err := newSession(ctx, flags)
	if err != nil {
		return err
	}

	ids := targets.Calendars
	if targets.All {
		cals, err := sess.client.ListCalendars(ctx, sess.location)
		if err != nil {
			return err
		}
		ids = make([]string, 0, len(cals))
		for _, cal := range cals {
			ids = append(ids, cal.ID)
		}
		if len(ids) == 0 {
			return fmt.Errorf("location %s has no calendars", sess.location)
		}
	}

	ids = availability.UniqueIDs(ids)

	engine := &availability.Engine{Backend: sess.client, Logger: slog.Default()}

	var (
		st  *store.Store
		job store.Job
	)
	if !flags.DryRun {
		st, err = openConfiguredStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		job, err = st.CreateJob(ctx, sess.location, store.JobAvailability, len(ids))
		if err != nil {
			return err
		}
		engine.Recorder = availabilityRecorder{store: st, jobID: job.ID}
	}

	rep, runErr := engine.Apply(ctx, availability.Request{CalendarIDs: ids, Op: op, DryRun: flags.DryRun})

	if job.ID != "" {
		if _, ferr := finishJob(ctx, st, job.ID, runErr != nil); ferr != nil {
			slog.Warn("failed to finish job", "job", job.ID, "err", ferr)
		}
	}

	if err := writeAvailabilityReport(ctx, rep, job.ID); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if rep.Status != outcome.StatusSuccess {
		return &ExitError{Code: exitCodePartial, Err: fmt.Errorf("%d of %d calendars failed", len(rep.Failed), len(rep.Failed)+len(rep.Successful))}
	}
	return nil
}

func describeOp(op availability.Op) string {
	switch op.Kind {
	case availability.KindOverride:
		return fmt.Sprintf("override %s %s-%s", op.Date, op.StartTime, op.EndTime)
	case availability.KindBlock:
		return "block " + op.Date
	default:
		return "clear all overrides"
	}
}

func writeAvailabilityReport(ctx context.Context, rep availability.Report, jobID string) error {
	if outfmt.IsJSON(ctx) {
		payload := map[string]any{
			"op":         rep.Op,
			"successful": rep.Successful,
			"failed":     rep.Failed,
			"status":     rep.Status,
		}
		if jobID != "" {
			payload["jobId"] = jobID
		}
		if rep.DryRun {
			payload["dryRun"] = true
			payload["updates"] = rep.Updates
		}
		if rep.Aborted {
			payload["aborted"] = true
		}
		return outfmt.WriteJSON(ctx, os.Stdout, payload)
	}

	if outfmt.IsPlain(ctx) {
		lines := make([][]string, 0, len(rep.Successful)+len(rep.Failed))
		for _, id := range rep.Successful {
			lines = append(lines, []string{id, string(outcome.StatusSuccess), ""})
		}
		for _, f := range rep.Failed {
			lines = append(lines, []string{f.ID, string(outcome.StatusError), f.Error})
		}
		return outfmt.WriteTSV(os.Stdout, []string{"CALENDAR", "STATUS", "ERROR"}, lines)
	}

	u := ui.FromContext(ctx)
	if rep.DryRun {
		u.Out().Printf("Dry run: would %s", describeOp(rep.Op))
		ids := make([]string, 0, len(rep.Updates))
		for id := range rep.Updates {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			b, _ := json.Marshal(rep.Updates[id].Availabilities)
			u.Out().Printf("%s\tavailabilities=%s", id, b)
		}
	} else {
		for _, id := range rep.Successful {
			u.Out().Printf("%s\tok", id)
		}
	}
	for _, f := range rep.Failed {
		u.Out().Printf("%s\tfailed\t%s", f.ID, f.Error)
	}

	line := fmt.Sprintf("%s: %d succeeded, %d failed", describeOp(rep.Op), len(rep.Successful), len(rep.Failed))
	if jobID != "" {
		line += " (job " + jobID + ")"
	}
	switch rep.Status {
	case outcome.StatusSuccess:
		u.Err().Successf("%s", line)
	case outcome.StatusPartial:
		u.Err().Warnf("%s", line)
	default:
		u.Err().Error(strings.TrimSpace(line))
	}
	return nil
}
