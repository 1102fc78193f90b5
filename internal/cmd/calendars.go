package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/bradenrollio/easycal-sub000/internal/ghlapi"
	"github.com/bradenrollio/easycal-sub000/internal/outfmt"
	"github.com/bradenrollio/easycal-sub000/internal/ui"
)

type CalendarsCmd struct {
	List CalendarsListCmd `cmd:"" name:"ls" aliases:"list" help:"List calendars"`
	Get  CalendarsGetCmd  `cmd:"" aliases:"show" help:"Show one calendar"`
}

type CalendarsListCmd struct {
	Group string `name:"group" help:"Only calendars in this group id"`
}

func (c *CalendarsListCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := newSession(ctx, flags)
	if err != nil {
		return err
	}

	cals, err := sess.client.ListCalendars(ctx, sess.location)
	if err != nil {
		return err
	}

	if g := strings.TrimSpace(c.Group); g != "" {
		filtered := cals[:0]
		for _, cal := range cals {
			if cal.GroupID == g {
				filtered = append(filtered, cal)
			}
		}
		cals = filtered
	}
	sort.SliceStable(cals, func(i, j int) bool { return strings.ToLower(cals[i].Name) < strings.ToLower(cals[j].Name) })

	if outfmt.IsJSON(ctx) {
		if cals == nil {
			cals = []ghlapi.Calendar{}
		}
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"calendars": cals})
	}

	header := []string{"ID", "NAME", "SLUG", "GROUP", "OVERRIDES"}
	lines := make([][]string, 0, len(cals))
	for _, cal := range cals {
		lines = append(lines, []string{cal.ID, cal.Name, cal.Slug, cal.GroupID, fmt.Sprint(len(cal.Availabilities))})
	}

	if outfmt.IsPlain(ctx) {
		return outfmt.WriteTSV(os.Stdout, header, lines)
	}

	u := ui.FromContext(ctx)
	if len(cals) == 0 {
		u.Err().Println("No calendars")
		return nil
	}
	return writeTable(u, header, lines)
}

type CalendarsGetCmd struct {
	ID string `arg:"" name:"id" help:"Calendar id"`
}

func (c *CalendarsGetCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := newSession(ctx, flags)
	if err != nil {
		return err
	}

	cal, err := sess.client.GetCalendar(ctx, strings.TrimSpace(c.ID))
	if err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"calendar": cal})
	}

	u := ui.FromContext(ctx)
	u.Out().Printf("id\t%s", cal.ID)
	u.Out().Printf("name\t%s", cal.Name)
	u.Out().Printf("slug\t%s", cal.Slug)
	u.Out().Printf("group\t%s", cal.GroupID)
	u.Out().Printf("timezone\t%s", cal.Timezone)
	for _, oh := range cal.OpenHours {
		b, _ := json.Marshal(oh.Hours)
		u.Out().Printf("open_hours\t%v\t%s", oh.DaysOfTheWeek, b)
	}
	for _, av := range cal.Availabilities {
		b, _ := json.Marshal(av.Ranges())
		u.Out().Printf("override\t%s\t%s", av.Date, b)
	}
	return nil
}

type GroupsCmd struct {
	List GroupsListCmd `cmd:"" name:"ls" aliases:"list" help:"List calendar groups"`
}

type GroupsListCmd struct{}

func (c *GroupsListCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := newSession(ctx, flags)
	if err != nil {
		return err
	}

	groups, err := sess.client.ListGroups(ctx, sess.location)
	if err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		if groups == nil {
			groups = []ghlapi.Group{}
		}
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"groups": groups})
	}

	header := []string{"ID", "NAME", "SLUG", "ACTIVE"}
	lines := make([][]string, 0, len(groups))
	for _, g := range groups {
		lines = append(lines, []string{g.ID, g.Name, g.Slug, fmt.Sprint(g.IsActive)})
	}

	if outfmt.IsPlain(ctx) {
		return outfmt.WriteTSV(os.Stdout, header, lines)
	}

	u := ui.FromContext(ctx)
	if len(groups) == 0 {
		u.Err().Println("No groups")
		return nil
	}
	return writeTable(u, header, lines)
}

func writeTable(u *ui.UI, header []string, lines [][]string) error {
	tw := tabwriter.NewWriter(u.Out().Writer(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, l := range lines {
		fmt.Fprintln(tw, strings.Join(l, "\t"))
	}
	return tw.Flush()
}
