package rows

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrEmptyInput   = errors.New("empty csv input")
	ErrNoNameColumn = errors.New("csv has no calendar_name column")
)

// Row is one spreadsheet line after column mapping. Every value is trimmed;
// an empty string means the column was absent or blank.
type Row struct {
	Index int `json:"row"`

	CalendarName string `json:"calendar_name"`

	ScheduleBlocks string `json:"schedule_blocks,omitempty"`
	DayOfWeek      string `json:"day_of_week,omitempty"`
	StartTime      string `json:"time_of_week,omitempty"`

	SlotIntervalMinutes     string `json:"slot_interval_minutes"`
	ClassDurationMinutes    string `json:"class_duration_minutes"`
	MinSchedulingNoticeDays string `json:"min_scheduling_notice_days"`
	MaxBookingsPerDay       string `json:"max_bookings_per_day"`

	CustomSlug    string `json:"custom_slug,omitempty"`
	CalendarGroup string `json:"calendar_group,omitempty"`
	Description   string `json:"description,omitempty"`
	Purpose       string `json:"calendar_purpose,omitempty"`

	PrimaryColorHex    string `json:"primary_color_hex,omitempty"`
	BackgroundColorHex string `json:"background_color_hex,omitempty"`
	ButtonText         string `json:"button_text,omitempty"`
	Timezone           string `json:"timezone,omitempty"`
}

// columns maps every accepted (normalized) header to a setter.
var columns = map[string]func(*Row, string){
	"calendar_name":              func(r *Row, v string) { r.CalendarName = v },
	"name":                       func(r *Row, v string) { r.CalendarName = v },
	"schedule_blocks":            func(r *Row, v string) { r.ScheduleBlocks = v },
	"schedule":                   func(r *Row, v string) { r.ScheduleBlocks = v },
	"day_of_week":                func(r *Row, v string) { r.DayOfWeek = v },
	"day":                        func(r *Row, v string) { r.DayOfWeek = v },
	"time_of_week":               func(r *Row, v string) { r.StartTime = v },
	"start_time":                 func(r *Row, v string) { r.StartTime = v },
	"time":                       func(r *Row, v string) { r.StartTime = v },
	"slot_interval_minutes":      func(r *Row, v string) { r.SlotIntervalMinutes = v },
	"slot_interval":              func(r *Row, v string) { r.SlotIntervalMinutes = v },
	"class_duration_minutes":     func(r *Row, v string) { r.ClassDurationMinutes = v },
	"class_duration":             func(r *Row, v string) { r.ClassDurationMinutes = v },
	"duration":                   func(r *Row, v string) { r.ClassDurationMinutes = v },
	"min_scheduling_notice_days": func(r *Row, v string) { r.MinSchedulingNoticeDays = v },
	"min_notice_days":            func(r *Row, v string) { r.MinSchedulingNoticeDays = v },
	"max_bookings_per_day":       func(r *Row, v string) { r.MaxBookingsPerDay = v },
	"custom_slug":                func(r *Row, v string) { r.CustomSlug = v },
	"slug":                       func(r *Row, v string) { r.CustomSlug = v },
	"calendar_group":             func(r *Row, v string) { r.CalendarGroup = v },
	"group":                      func(r *Row, v string) { r.CalendarGroup = v },
	"description":                func(r *Row, v string) { r.Description = v },
	"calendar_purpose":           func(r *Row, v string) { r.Purpose = v },
	"purpose":                    func(r *Row, v string) { r.Purpose = v },
	"calendar_type":              func(r *Row, v string) { r.Purpose = v },
	"primary_color_hex":          func(r *Row, v string) { r.PrimaryColorHex = v },
	"background_color_hex":       func(r *Row, v string) { r.BackgroundColorHex = v },
	"button_text":                func(r *Row, v string) { r.ButtonText = v },
	"timezone":                   func(r *Row, v string) { r.Timezone = v },
}

// NormalizeHeader lowercases a header and folds spaces and dashes into
// underscores, so "Calendar Name" and "calendar-name" both map to
// calendar_name.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	for strings.Contains(h, "__") {
		h = strings.ReplaceAll(h, "__", "_")
	}
	return h
}

// Read parses a CSV document with a header line. Unknown columns are ignored
// and fully blank lines are skipped; Index counts data rows from 0.
func Read(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	setters := make([]func(*Row, string), len(header))
	hasName := false
	for i, h := range header {
		key := NormalizeHeader(h)
		setters[i] = columns[key]
		if key == "calendar_name" || key == "name" {
			hasName = true
		}
	}
	if !hasName {
		return nil, ErrNoNameColumn
	}

	var out []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(out)+1, err)
		}
		if blankRecord(rec) {
			continue
		}

		row := Row{Index: len(out)}
		for i, v := range rec {
			if i < len(setters) && setters[i] != nil {
				setters[i](&row, strings.TrimSpace(v))
			}
		}
		out = append(out, row)
	}

	return out, nil
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
