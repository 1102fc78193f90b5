// Package payload turns a validated row into the calendar object the
// platform expects.
package payload

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bradenrollio/easycal-sub000/internal/branding"
	"github.com/bradenrollio/easycal-sub000/internal/ghlapi"
	"github.com/bradenrollio/easycal-sub000/internal/rows"
	"github.com/bradenrollio/easycal-sub000/internal/schedule"
	"github.com/bradenrollio/easycal-sub000/internal/tenant"
)

const (
	calendarTypeEvent = "event"
	widgetTypeClassic = "classic"
	unitMinutes       = "mins"
	unitHours         = "hours"
	unitDays          = "days"
	formSubmitMessage = "ThankYouMessage"
	thanksMessage     = "Thank you for booking! We look forward to seeing you."
)

// BuildError means a row passed validation but no payload could be made
// from it.
type BuildError struct {
	Row    int
	Name   string
	Reason string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("row %d (%s): %s", e.Row+1, e.Name, e.Reason)
}

type Input struct {
	Row        rows.Row
	Branding   branding.Branding
	Blocks     []schedule.Block
	GroupID    string
	LocationID string
	// Defaults fills booking rules the row leaves empty; nil uses the
	// built-in tenant defaults.
	Defaults *tenant.CalendarDefaults
}

// Build derives the full calendar payload for one row.
func Build(in Input) (ghlapi.CalendarPayload, error) {
	r := in.Row
	name := strings.TrimSpace(r.CalendarName)

	if len(in.Blocks) == 0 {
		return ghlapi.CalendarPayload{}, &BuildError{Row: r.Index, Name: name, Reason: "no valid schedule blocks"}
	}

	defaults := tenant.NewCalendarDefaults(in.LocationID)
	if in.Defaults != nil {
		defaults = *in.Defaults
	}

	slug := SlugFor(r)
	if slug == "" {
		return ghlapi.CalendarPayload{}, &BuildError{Row: r.Index, Name: name, Reason: "calendar name does not produce a usable slug"}
	}

	openHours, err := OpenHours(in.Blocks)
	if err != nil {
		return ghlapi.CalendarPayload{}, &BuildError{Row: r.Index, Name: name, Reason: err.Error()}
	}

	interval := intOr(r.SlotIntervalMinutes, defaults.DefaultSlotDurationMinutes)
	duration := intOr(r.ClassDurationMinutes, interval)
	notice := intOr(r.MinSchedulingNoticeDays, defaults.MinSchedulingNoticeDays)
	perDay := intOr(r.MaxBookingsPerDay, 0)
	if perDay < 0 {
		perDay = 0
	}

	availabilityType := 0

	return ghlapi.CalendarPayload{
		LocationID:      in.LocationID,
		GroupID:         in.GroupID,
		Name:            name,
		Description:     strings.TrimSpace(r.Description),
		Slug:            slug,
		WidgetSlug:      slug,
		CalendarType:    calendarTypeEvent,
		WidgetType:      widgetTypeClassic,
		EventTitle:      "{{contact.name}} - " + name,
		EventColor:      in.Branding.PrimaryColor,
		BackgroundColor: in.Branding.BackgroundColor,
		ButtonText:      in.Branding.ButtonText,
		Timezone:        in.Branding.Timezone,

		SlotDuration:          duration,
		SlotDurationUnit:      unitMinutes,
		SlotInterval:          interval,
		SlotIntervalUnit:      unitMinutes,
		PreBuffer:             DaysToHours(notice),
		PreBufferUnit:         unitHours,
		AppoinmentPerSlot:     max(defaults.SpotsPerBooking, 1),
		AppoinmentPerDay:      perDay,
		AllowBookingAfter:     DaysToHours(notice),
		AllowBookingAfterUnit: unitHours,
		AllowBookingFor:       defaults.BookingWindowDays,
		AllowBookingForUnit:   unitDays,

		OpenHours:        openHours,
		AvailabilityType: &availabilityType,

		FormSubmitType:          formSubmitMessage,
		FormSubmitThanksMessage: thanksMessage,
		Notifications: []ghlapi.Notification{
			{Type: "email", ShouldSendToContact: true, ShouldSendToUser: true},
		},
		AutoConfirm:       true,
		AllowReschedule:   true,
		AllowCancellation: true,
		IsActive:          true,
	}, nil
}

// SlugFor is the row's idempotency key: its custom slug when given, else the
// slugified calendar name.
func SlugFor(r rows.Row) string {
	if s := Slugify(r.CustomSlug); s != "" {
		return s
	}

	return Slugify(r.CalendarName)
}

// OpenHours maps blocks onto the weekly grid, one entry per block.
func OpenHours(blocks []schedule.Block) ([]ghlapi.OpenHour, error) {
	out := make([]ghlapi.OpenHour, 0, len(blocks))
	for _, b := range blocks {
		day := schedule.DayIndex(b.Day)
		if day < 0 {
			return nil, fmt.Errorf("unknown day %q", b.Day)
		}

		start, ok := schedule.Minutes(b.Start)
		if !ok {
			return nil, fmt.Errorf("bad start time %q", b.Start)
		}
		end, ok := schedule.Minutes(b.End)
		if !ok {
			return nil, fmt.Errorf("bad end time %q", b.End)
		}

		out = append(out, ghlapi.OpenHour{
			DaysOfTheWeek: []int{day},
			Hours: []ghlapi.HourRange{{
				OpenHour:    start / minutesPerHour,
				OpenMinute:  start % minutesPerHour,
				CloseHour:   end / minutesPerHour,
				CloseMinute: end % minutesPerHour,
			}},
		})
	}

	return out, nil
}

func intOr(s string, fallback int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}

	return n
}
