// Package availability applies date-specific overrides, blocks and clears
// to existing calendars without disturbing their weekly hours.
package availability

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/bradenrollio/easycal-sub000/internal/ghlapi"
	"github.com/bradenrollio/easycal-sub000/internal/ghlauth"
	"github.com/bradenrollio/easycal-sub000/internal/outcome"
)

var errNoCalendars = errors.New("no calendar ids given")

type Backend interface {
	GetCalendar(ctx context.Context, id string) (ghlapi.Calendar, error)
	UpdateAvailability(ctx context.Context, id string, u ghlapi.AvailabilityUpdate) (ghlapi.Calendar, error)
}

// Recorder persists per-calendar outcomes as they happen.
type Recorder interface {
	RecordCalendar(ctx context.Context, id string, err error) error
}

type Engine struct {
	Backend  Backend
	Recorder Recorder
	Logger   *slog.Logger
}

type Request struct {
	CalendarIDs []string
	Op          Op
	DryRun      bool
}

type Failure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Report collects per-calendar outcomes. Aborted marks a batch stopped by a
// missing credential or cancellation before every calendar was tried.
type Report struct {
	Op         Op                                   `json:"op"`
	Successful []string                             `json:"successful"`
	Failed     []Failure                            `json:"failed"`
	Status     outcome.Status                       `json:"status"`
	Aborted    bool                                 `json:"aborted,omitempty"`
	DryRun     bool                                 `json:"dryRun,omitempty"`
	Updates    map[string]ghlapi.AvailabilityUpdate `json:"updates,omitempty"`
}

// Apply runs op against each calendar in turn, one write per calendar.
// Per-calendar failures are collected; a missing credential or
// cancellation stops the batch.
func (e *Engine) Apply(ctx context.Context, req Request) (Report, error) {
	op, err := req.Op.Normalize()
	if err != nil {
		return Report{}, err
	}

	ids := UniqueIDs(req.CalendarIDs)
	if len(ids) == 0 {
		return Report{}, errNoCalendars
	}

	rep := Report{Op: op, Successful: []string{}, Failed: []Failure{}, DryRun: req.DryRun}
	if req.DryRun {
		rep.Updates = make(map[string]ghlapi.AvailabilityUpdate, len(ids))
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return rep.abort(), err
		}

		err := e.one(ctx, id, op, &rep)
		e.record(ctx, id, err)

		if err == nil {
			rep.Successful = append(rep.Successful, id)
			continue
		}

		rep.Failed = append(rep.Failed, Failure{ID: id, Error: err.Error()})

		var are *ghlauth.AuthRequiredError
		if errors.As(err, &are) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return rep.abort(), err
		}
	}

	return rep.finish(), nil
}

func (rep Report) finish() Report {
	rep.Status = outcome.Derive(len(rep.Successful), len(rep.Failed))
	return rep
}

func (rep Report) abort() Report {
	rep.Aborted = true
	rep.Status = outcome.Aborted(len(rep.Successful))
	return rep
}

func (e *Engine) one(ctx context.Context, id string, op Op, rep *Report) error {
	log := e.logger().With("calendar", id, "op", op.Kind)

	cal, err := e.Backend.GetCalendar(ctx, id)
	if err != nil {
		return err
	}

	update, err := BuildUpdate(cal, op)
	if err != nil {
		return err
	}

	if rep.DryRun {
		rep.Updates[id] = update
		return nil
	}

	_, err = e.Backend.UpdateAvailability(ctx, id, update)
	if err == nil {
		log.Info("availability updated", "date", op.Date)
		return nil
	}

	if !ghlapi.IsAmbiguous(err) {
		return err
	}

	fresh, verr := e.Backend.GetCalendar(ctx, id)
	if verr == nil && applied(fresh, op) {
		log.Warn("availability write was ambiguous; confirmed by re-read", "err", err)
		return nil
	}

	return err
}

func (e *Engine) record(ctx context.Context, id string, err error) {
	if e.Recorder == nil {
		return
	}

	if rerr := e.Recorder.RecordCalendar(ctx, id, err); rerr != nil {
		e.logger().Warn("failed to record calendar outcome", "calendar", id, "err", rerr)
	}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}

	return slog.Default()
}

// UniqueIDs trims ids and drops blanks and repeats, keeping first-seen order.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}

	return out
}
