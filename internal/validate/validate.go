package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bradenrollio/easycal-sub000/internal/rows"
	"github.com/bradenrollio/easycal-sub000/internal/schedule"
	"github.com/bradenrollio/easycal-sub000/internal/tenant"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

const (
	minButtonText = 3
	maxButtonText = 30

	scheduleFormatHelp = "use \"Day HH:MM-HH:MM\" blocks separated by semicolons, e.g. \"Mon 09:00-10:00; Wed 14:30-15:30\" (or set day_of_week and time_of_week, e.g. Mon and 09:00)"
)

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// loadLocation is the timezone check; swapped in tests.
var loadLocation = time.LoadLocation

// Issue is one validation finding for a row. Errors keep the row out of
// provisioning; warnings are reported only.
type Issue struct {
	Row      int      `json:"row"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (i Issue) String() string {
	return fmt.Sprintf("row %d: %s: %s (%s)", i.Row+1, i.Field, i.Message, i.Severity)
}

type checker struct {
	row    int
	issues []Issue
}

func (c *checker) errorf(field, format string, args ...any) {
	c.issues = append(c.issues, Issue{Row: c.row, Field: field, Message: fmt.Sprintf(format, args...), Severity: SeverityError})
}

func (c *checker) warnf(field, format string, args ...any) {
	c.issues = append(c.issues, Issue{Row: c.row, Field: field, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning})
}

// Row checks one CSV row. index is the 0-based data row and is copied onto
// every issue.
func Row(r rows.Row, index int) []Issue {
	c := &checker{row: index}

	if strings.TrimSpace(r.CalendarName) == "" {
		c.errorf("calendar_name", "calendar name is required")
	}

	checkSchedule(c, r)

	interval, intervalOK := positiveInt(r.SlotIntervalMinutes)
	if !intervalOK {
		c.errorf("slot_interval_minutes", "slot interval must be a positive whole number of minutes, got %q", r.SlotIntervalMinutes)
	}
	duration, durationOK := positiveInt(r.ClassDurationMinutes)
	if !durationOK {
		c.errorf("class_duration_minutes", "class duration must be a positive whole number of minutes, got %q", r.ClassDurationMinutes)
	}

	if n, err := strconv.Atoi(strings.TrimSpace(r.MinSchedulingNoticeDays)); err != nil || n < 0 {
		c.errorf("min_scheduling_notice_days", "minimum scheduling notice must be a whole number of days (0 or more), got %q", r.MinSchedulingNoticeDays)
	}

	if _, ok := positiveInt(r.MaxBookingsPerDay); !ok {
		c.errorf("max_bookings_per_day", "max bookings per day must be a positive whole number, got %q", r.MaxBookingsPerDay)
	}

	if intervalOK && durationOK && duration%interval != 0 {
		c.warnf("class_duration_minutes", "class duration %d is not a multiple of slot interval %d; booking slots will not evenly tile the class", duration, interval)
	}

	checkColor(c, "primary_color_hex", r.PrimaryColorHex)
	checkColor(c, "background_color_hex", r.BackgroundColorHex)

	checkTimezone(c, "timezone", r.Timezone)
	checkButtonText(c, "button_text", r.ButtonText)

	return c.issues
}

// BrandConfig checks a tenant brand record before it is saved. Issues carry
// row -1.
func BrandConfig(cfg tenant.BrandConfig) []Issue {
	c := &checker{row: -1}
	checkColor(c, "primary_color_hex", cfg.PrimaryColorHex)
	checkColor(c, "background_color_hex", cfg.BackgroundColorHex)
	checkButtonText(c, "default_button_text", cfg.DefaultButtonText)
	checkTimezone(c, "default_timezone", cfg.DefaultTimezone)
	return c.issues
}

// CalendarDefaults checks a tenant defaults record before it is saved.
func CalendarDefaults(d tenant.CalendarDefaults) []Issue {
	c := &checker{row: -1}
	if d.DefaultSlotDurationMinutes <= 0 {
		c.errorf("default_slot_duration_minutes", "must be positive, got %d", d.DefaultSlotDurationMinutes)
	}
	if d.MinSchedulingNoticeDays < 0 {
		c.errorf("min_scheduling_notice_days", "must be 0 or more, got %d", d.MinSchedulingNoticeDays)
	}
	if d.BookingWindowDays <= 0 {
		c.errorf("booking_window_days", "must be positive, got %d", d.BookingWindowDays)
	}
	if d.SpotsPerBooking <= 0 {
		c.errorf("spots_per_booking", "must be positive, got %d", d.SpotsPerBooking)
	}
	checkTimezone(c, "default_timezone", d.DefaultTimezone)
	return c.issues
}

// Blocks derives the weekly blocks for a row the same way the validator
// does: schedule_blocks when set, otherwise the day/time/duration triple.
func Blocks(r rows.Row) []schedule.Block {
	if strings.TrimSpace(r.ScheduleBlocks) != "" {
		return schedule.Parse(r.ScheduleBlocks)
	}
	duration, ok := positiveInt(r.ClassDurationMinutes)
	if !ok {
		return nil
	}
	if b, ok := schedule.FromDayTime(r.DayOfWeek, r.StartTime, duration); ok {
		return []schedule.Block{b}
	}
	return nil
}

func checkSchedule(c *checker, r rows.Row) {
	if strings.TrimSpace(r.ScheduleBlocks) != "" {
		if len(schedule.Parse(r.ScheduleBlocks)) == 0 {
			c.errorf("schedule_blocks", "no valid schedule blocks in %q; %s", r.ScheduleBlocks, scheduleFormatHelp)
		}
		return
	}

	_, dayOK := schedule.NormalizeDay(r.DayOfWeek)
	_, timeOK := schedule.To24h(r.StartTime)
	if !dayOK || !timeOK {
		c.errorf("schedule_blocks", "a schedule is required; %s", scheduleFormatHelp)
	}
}

func checkColor(c *checker, field, value string) {
	value = strings.TrimSpace(value)
	if value != "" && !hexColorRe.MatchString(value) {
		c.errorf(field, "color must look like #RRGGBB, got %q", value)
	}
}

func checkTimezone(c *checker, field, value string) {
	if tz := strings.TrimSpace(value); tz != "" {
		if _, err := loadLocation(tz); err != nil {
			c.errorf(field, "unknown timezone %q (use an IANA name such as America/New_York)", tz)
		}
	}
}

func checkButtonText(c *checker, field, value string) {
	if bt := strings.TrimSpace(value); bt != "" {
		if n := utf8.RuneCountInString(bt); n < minButtonText || n > maxButtonText {
			c.errorf(field, "button text must be %d-%d characters, got %d", minButtonText, maxButtonText, n)
		}
	}
}

func positiveInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// HasErrors reports whether any issue blocks provisioning.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Result partitions a batch into rows that may be provisioned and rows that
// may not.
type Result struct {
	Valid   []rows.Row `json:"-"`
	Blocked []rows.Row `json:"-"`
	Issues  []Issue    `json:"issues"`
	Errors  int        `json:"errors"`
	Warns   int        `json:"warnings"`
}

func All(in []rows.Row) Result {
	var res Result
	for i, r := range in {
		issues := Row(r, i)
		res.Issues = append(res.Issues, issues...)
		for _, is := range issues {
			if is.Severity == SeverityError {
				res.Errors++
			} else {
				res.Warns++
			}
		}
		if HasErrors(issues) {
			res.Blocked = append(res.Blocked, r)
		} else {
			res.Valid = append(res.Valid, r)
		}
	}
	return res
}

// ByRow groups issues by row index.
func ByRow(issues []Issue) map[int][]Issue {
	out := make(map[int][]Issue)
	for _, i := range issues {
		out[i.Row] = append(out[i.Row], i)
	}
	return out
}
