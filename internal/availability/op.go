package availability

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bradenrollio/easycal-sub000/internal/schedule"
	"github.com/bradenrollio/easycal-sub000/internal/timeparse"
)

type Kind string

const (
	KindOverride Kind = "override"
	KindBlock    Kind = "block"
	KindRemove   Kind = "remove"
)

var (
	errUnknownKind  = errors.New("unknown availability operation")
	errBadTimeRange = errors.New("invalid time range")
)

// ParseKind accepts the operation names and their long forms; "clear" is
// the same as remove.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "override", "set-time-range":
		return KindOverride, nil
	case "block", "block-day":
		return KindBlock, nil
	case "remove", "clear", "clear-all":
		return KindRemove, nil
	default:
		return "", fmt.Errorf("%w: %q (expected override, block or remove)", errUnknownKind, s)
	}
}

// Op is one availability change. Date is a calendar day (YYYY-MM-DD);
// StartTime and EndTime are used by override only.
type Op struct {
	Kind      Kind   `json:"kind"`
	Date      string `json:"date,omitempty"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

// Normalize checks op and returns it with the date reduced to a calendar
// day and times in 24-hour form.
func (op Op) Normalize() (Op, error) {
	switch op.Kind {
	case KindRemove:
		return Op{Kind: KindRemove}, nil
	case KindOverride, KindBlock:
	default:
		return Op{}, fmt.Errorf("%w: %q", errUnknownKind, op.Kind)
	}

	day, err := timeparse.ParseDate(op.Date)
	if err != nil {
		return Op{}, err
	}
	out := Op{Kind: op.Kind, Date: day.Format("2006-01-02")}

	if op.Kind == KindBlock {
		return out, nil
	}

	start, okStart := schedule.To24h(op.StartTime)
	end, okEnd := schedule.To24h(op.EndTime)
	if !okStart || !okEnd {
		return Op{}, fmt.Errorf("%w: %q-%q (use HH:MM or h:mm AM/PM)", errBadTimeRange, op.StartTime, op.EndTime)
	}

	sm, _ := schedule.Minutes(start)
	em, _ := schedule.Minutes(end)
	if em <= sm {
		return Op{}, fmt.Errorf("%w: end %s must be after start %s", errBadTimeRange, end, start)
	}

	out.StartTime = start
	out.EndTime = end

	return out, nil
}
