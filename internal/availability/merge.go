package availability

import (
	"github.com/bradenrollio/easycal-sub000/internal/ghlapi"
	"github.com/bradenrollio/easycal-sub000/internal/schedule"
	"github.com/bradenrollio/easycal-sub000/internal/timeparse"
)

// Merge applies a normalized op to a calendar's date-specific entries.
// Entries for other days are returned untouched; remove yields an empty,
// non-nil list.
func Merge(existing []ghlapi.Availability, op Op) ([]ghlapi.Availability, error) {
	if op.Kind == KindRemove {
		return []ghlapi.Availability{}, nil
	}

	date, err := timeparse.AvailabilityDate(op.Date)
	if err != nil {
		return nil, err
	}

	out := make([]ghlapi.Availability, 0, len(existing)+1)
	for _, a := range existing {
		if timeparse.SameDay(a.Date, op.Date) {
			continue
		}
		out = append(out, a)
	}

	entry := ghlapi.Availability{Date: date, Hours: []ghlapi.HourRange{}}
	if op.Kind == KindOverride {
		start, _ := schedule.Minutes(op.StartTime)
		end, _ := schedule.Minutes(op.EndTime)
		entry.Hours = []ghlapi.HourRange{{
			OpenHour:    start / 60,
			OpenMinute:  start % 60,
			CloseHour:   end / 60,
			CloseMinute: end % 60,
		}}
	}

	return append(out, entry), nil
}

// BuildUpdate is the minimal write for op against cal: the weekly grid and
// availability type exactly as fetched, plus the merged entries. A missing
// availability type is sent as 0.
func BuildUpdate(cal ghlapi.Calendar, op Op) (ghlapi.AvailabilityUpdate, error) {
	merged, err := Merge(cal.Availabilities, op)
	if err != nil {
		return ghlapi.AvailabilityUpdate{}, err
	}

	availabilityType := 0
	if cal.AvailabilityType != nil {
		availabilityType = *cal.AvailabilityType
	}

	openHours := cal.OpenHours
	if openHours == nil {
		openHours = []ghlapi.OpenHour{}
	}

	return ghlapi.AvailabilityUpdate{
		OpenHours:        openHours,
		AvailabilityType: availabilityType,
		Availabilities:   merged,
	}, nil
}

// applied reports whether cal already reflects op.
func applied(cal ghlapi.Calendar, op Op) bool {
	if op.Kind == KindRemove {
		for _, a := range cal.Availabilities {
			if !a.Deleted {
				return false
			}
		}
		return true
	}

	want, err := Merge(nil, op)
	if err != nil {
		return false
	}
	target := want[0]

	for _, a := range cal.Availabilities {
		if a.Deleted || !timeparse.SameDay(a.Date, op.Date) {
			continue
		}
		got := a.Ranges()
		if len(got) != len(target.Hours) {
			return false
		}
		for i := range got {
			if got[i] != target.Hours[i] {
				return false
			}
		}
		return true
	}

	return false
}
