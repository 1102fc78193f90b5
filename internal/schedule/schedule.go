package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Day is one of the seven canonical weekday tokens (Mon..Sun).
type Day string

const (
	Mon Day = "Mon"
	Tue Day = "Tue"
	Wed Day = "Wed"
	Thu Day = "Thu"
	Fri Day = "Fri"
	Sat Day = "Sat"
	Sun Day = "Sun"
)

// Block is one weekly bookable window. Start and End are 24-hour HH:MM.
type Block struct {
	Day   Day    `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func (b Block) String() string {
	return fmt.Sprintf("%s %s-%s", b.Day, b.Start, b.End)
}

var daySynonyms = map[string]Day{
	"mon":       Mon,
	"monday":    Mon,
	"tue":       Tue,
	"tues":      Tue,
	"tuesday":   Tue,
	"wed":       Wed,
	"weds":      Wed,
	"wednesday": Wed,
	"thu":       Thu,
	"thur":      Thu,
	"thurs":     Thu,
	"thursday":  Thu,
	"fri":       Fri,
	"friday":    Fri,
	"sat":       Sat,
	"saturday":  Sat,
	"sun":       Sun,
	"sunday":    Sun,
}

// Platform day numbering: Sunday is 0.
var dayIndex = map[Day]int{
	Sun: 0,
	Mon: 1,
	Tue: 2,
	Wed: 3,
	Thu: 4,
	Fri: 5,
	Sat: 6,
}

var (
	segmentRe = regexp.MustCompile(`^(\w+)\s+(.+)-(.+)$`)
	time24Re  = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)
	time12Re  = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*(AM|PM)$`)
)

// NormalizeDay maps a day token (any case, common abbreviations) to its
// canonical form.
func NormalizeDay(token string) (Day, bool) {
	d, ok := daySynonyms[strings.ToLower(strings.TrimSpace(token))]
	return d, ok
}

// DayIndex returns the platform's numeric weekday (Sun=0 .. Sat=6), or -1.
func DayIndex(d Day) int {
	if i, ok := dayIndex[d]; ok {
		return i
	}
	return -1
}

// To24h normalizes a 24-hour ("9:00", "17:30") or 12-hour ("3 PM",
// "3:00 PM") time to zero-padded HH:MM. ok is false when the input is not a
// valid time in either format.
func To24h(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}

	if m := time24Re.FindStringSubmatch(value); m != nil {
		h, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("%02d:%s", h, m[2]), true
	}

	m := time12Re.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	h, _ := strconv.Atoi(m[1])
	if h < 1 || h > 12 {
		return "", false
	}
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
		if minute > 59 {
			return "", false
		}
	}

	pm := strings.EqualFold(m[3], "PM")
	switch {
	case h == 12 && !pm:
		h = 0
	case h != 12 && pm:
		h += 12
	}

	return fmt.Sprintf("%02d:%02d", h, minute), true
}

// Minutes converts a normalized HH:MM value to minutes past midnight.
func Minutes(hhmm string) (int, bool) {
	m := time24Re.FindStringSubmatch(hhmm)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return h*60 + mm, true
}

// Parse reads "Mon 09:00-17:00; Wed 2:30 PM-3:30 PM" style definitions.
// Segments that do not parse, or whose end is not after their start, are
// skipped; Parse never fails.
func Parse(s string) []Block {
	var blocks []Block
	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if b, ok := parseSegment(seg); ok {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

func parseSegment(seg string) (Block, bool) {
	m := segmentRe.FindStringSubmatch(seg)
	if m == nil {
		return Block{}, false
	}

	day, ok := NormalizeDay(m[1])
	if !ok {
		return Block{}, false
	}
	start, ok := To24h(m[2])
	if !ok {
		return Block{}, false
	}
	end, ok := To24h(m[3])
	if !ok {
		return Block{}, false
	}

	return newBlock(day, start, end)
}

func newBlock(day Day, start, end string) (Block, bool) {
	sm, ok := Minutes(start)
	if !ok {
		return Block{}, false
	}
	em, ok := Minutes(end)
	if !ok || em <= sm {
		return Block{}, false
	}
	return Block{Day: day, Start: start, End: end}, true
}

// FromDayTime builds the single-block fallback from a day, a start time and
// a class length. Classes that would run past midnight are rejected.
func FromDayTime(day string, start string, durationMinutes int) (Block, bool) {
	d, ok := NormalizeDay(day)
	if !ok || durationMinutes <= 0 {
		return Block{}, false
	}
	s, ok := To24h(start)
	if !ok {
		return Block{}, false
	}
	sm, _ := Minutes(s)
	em := sm + durationMinutes
	if em >= 24*60 {
		return Block{}, false
	}
	return newBlock(d, s, fmt.Sprintf("%02d:%02d", em/60, em%60))
}

// Format joins blocks back into the "Day HH:MM-HH:MM; ..." form Parse reads.
func Format(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "; ")
}
