// Package timeparse handles the calendar dates used by availability changes.
package timeparse

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout = "2006-01-02"
	// availabilityLayout is how the platform stores date-specific entries.
	availabilityLayout = "2006-01-02T15:04:05.000Z"
)

var (
	ErrEmptyDate       = errors.New("empty date")
	ErrInvalidDate     = errors.New("invalid date")
	ErrEmptyTimeExpr   = errors.New("empty date expression")
	ErrInvalidTimeExpr = errors.New("invalid date expression")
)

// ParseDate parses a strict date in YYYY-MM-DD format.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrEmptyDate
	}

	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}

	return t, nil
}

// ParseDateExpr resolves a date given on the command line. Supported:
// YYYY-MM-DD, today, tomorrow, weekday names and "next <weekday>".
// The result is a calendar day in YYYY-MM-DD form.
func ParseDateExpr(expr string, now time.Time) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", ErrEmptyTimeExpr
	}

	exprLower := strings.ToLower(expr)
	switch exprLower {
	case "today":
		return now.Format(dateLayout), nil
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format(dateLayout), nil
	}

	if t, ok := parseWeekday(exprLower, now); ok {
		return t.Format(dateLayout), nil
	}

	if t, err := ParseDate(expr); err == nil {
		return t.Format(dateLayout), nil
	}

	return "", fmt.Errorf("%w: %q (try: 2026-12-25, today, tomorrow, monday)", ErrInvalidTimeExpr, expr)
}

// CalendarDay reduces a date or ISO-8601 timestamp to its YYYY-MM-DD part.
// The time-of-day and offset are ignored, since the platform may echo a
// different time for the same day.
func CalendarDay(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if len(value) < len(dateLayout) {
		return "", false
	}

	day := value[:len(dateLayout)]
	if _, err := time.Parse(dateLayout, day); err != nil {
		return "", false
	}

	if len(value) > len(dateLayout) && value[len(dateLayout)] != 'T' && value[len(dateLayout)] != ' ' {
		return "", false
	}

	return day, true
}

// SameDay reports whether two dates or timestamps fall on the same calendar
// day. Unparseable values never match.
func SameDay(a, b string) bool {
	da, ok := CalendarDay(a)
	if !ok {
		return false
	}

	db, ok := CalendarDay(b)

	return ok && da == db
}

// AvailabilityDate formats a YYYY-MM-DD day the way availability entries
// are written.
func AvailabilityDate(day string) (string, error) {
	t, err := ParseDate(day)
	if err != nil {
		return "", err
	}

	return t.UTC().Format(availabilityLayout), nil
}

func parseWeekday(expr string, now time.Time) (time.Time, bool) {
	expr = strings.TrimSpace(expr)

	next := false
	if strings.HasPrefix(expr, "next ") {
		next = true
		expr = strings.TrimPrefix(expr, "next ")
	}

	weekdays := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"sun":       time.Sunday,
		"monday":    time.Monday,
		"mon":       time.Monday,
		"tuesday":   time.Tuesday,
		"tue":       time.Tuesday,
		"wednesday": time.Wednesday,
		"wed":       time.Wednesday,
		"thursday":  time.Thursday,
		"thu":       time.Thursday,
		"friday":    time.Friday,
		"fri":       time.Friday,
		"saturday":  time.Saturday,
		"sat":       time.Saturday,
	}

	targetDay, ok := weekdays[expr]
	if !ok {
		return time.Time{}, false
	}

	daysUntil := int(targetDay) - int(now.Weekday())
	if daysUntil < 0 || (daysUntil == 0 && next) {
		daysUntil += 7
	}

	return startOfDay(now.AddDate(0, 0, daysUntil)), true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
