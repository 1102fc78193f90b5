package cmd

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/bradenrollio/easycal-sub000/internal/config"
	"github.com/bradenrollio/easycal-sub000/internal/outfmt"
	"github.com/bradenrollio/easycal-sub000/internal/store"
	"github.com/bradenrollio/easycal-sub000/internal/tenant"
	"github.com/bradenrollio/easycal-sub000/internal/ui"
	"github.com/bradenrollio/easycal-sub000/internal/validate"
)

func openTenantStore(ctx context.Context, flags *RootFlags) (string, *store.Store, error) {
	cfg, err := config.Read()
	if err != nil {
		return "", nil, err
	}

	loc, err := resolveLocation(flags, cfg)
	if err != nil {
		return "", nil, err
	}

	st, err := openConfiguredStore(ctx)
	if err != nil {
		return "", nil, err
	}

	return loc, st, nil
}

func issuesError(issues []validate.Issue) error {
	if len(issues) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(issues))
	for _, is := range issues {
		msgs = append(msgs, is.Field+": "+is.Message)
	}
	return newUsageError(errors.New(strings.Join(msgs, "; ")))
}

type BrandCmd struct {
	Show BrandShowCmd `cmd:"" aliases:"get" help:"Show the location's brand configuration"`
	Set  BrandSetCmd  `cmd:"" aliases:"update" help:"Change the location's brand configuration"`
}

type BrandShowCmd struct{}

func (c *BrandShowCmd) Run(ctx context.Context, flags *RootFlags) error {
	loc, st, err := openTenantStore(ctx, flags)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	cfg, err := st.GetBrandConfig(ctx, loc)
	if err != nil {
		return err
	}
	return writeBrand(ctx, cfg)
}

type BrandSetCmd struct {
	PrimaryColor    *string `name:"primary-color" help:"Primary color (#RRGGBB)"`
	BackgroundColor *string `name:"background-color" help:"Background color (#RRGGBB)"`
	ButtonText      *string `name:"button-text" help:"Default booking button text (3-30 characters)"`
	Timezone        *string `name:"timezone" aliases:"tz" help:"Default IANA timezone; empty clears it"`
	Reset           bool    `name:"reset" help:"Start from the built-in defaults"`
}

func (c *BrandSetCmd) Run(ctx context.Context, flags *RootFlags) error {
	loc, st, err := openTenantStore(ctx, flags)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	cfg, err := st.GetBrandConfig(ctx, loc)
	if err != nil {
		return err
	}
	if c.Reset {
		cfg = tenant.NewBrandConfig(loc)
	}

	setString(&cfg.PrimaryColorHex, c.PrimaryColor)
	setString(&cfg.BackgroundColorHex, c.BackgroundColor)
	setString(&cfg.DefaultButtonText, c.ButtonText)
	setString(&cfg.DefaultTimezone, c.Timezone)

	if err := issuesError(validate.BrandConfig(cfg)); err != nil {
		return err
	}

	if err := dryRunExit(ctx, flags, "brand.set", cfg); err != nil {
		return err
	}

	if err := st.SaveBrandConfig(ctx, &cfg); err != nil {
		return err
	}
	return writeBrand(ctx, cfg)
}

func writeBrand(ctx context.Context, cfg tenant.BrandConfig) error {
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"brand": cfg})
	}

	u := ui.FromContext(ctx)
	u.Out().Printf("location\t%s", cfg.LocationID)
	u.Out().Printf("primary_color_hex\t%s", cfg.PrimaryColorHex)
	u.Out().Printf("background_color_hex\t%s", cfg.BackgroundColorHex)
	u.Out().Printf("default_button_text\t%s", cfg.DefaultButtonText)
	u.Out().Printf("default_timezone\t%s", cfg.DefaultTimezone)
	return nil
}

type DefaultsCmd struct {
	Show DefaultsShowCmd `cmd:"" aliases:"get" help:"Show the location's calendar defaults"`
	Set  DefaultsSetCmd  `cmd:"" aliases:"update" help:"Change the location's calendar defaults"`
}

type DefaultsShowCmd struct{}

func (c *DefaultsShowCmd) Run(ctx context.Context, flags *RootFlags) error {
	loc, st, err := openTenantStore(ctx, flags)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	d, err := st.GetCalendarDefaults(ctx, loc)
	if err != nil {
		return err
	}
	return writeDefaults(ctx, d)
}

type DefaultsSetCmd struct {
	SlotDuration  *int    `name:"slot-duration" help:"Default slot length in minutes"`
	MinNotice     *int    `name:"min-notice" help:"Minimum scheduling notice in days"`
	BookingWindow *int    `name:"booking-window" help:"How many days ahead bookings open"`
	Spots         *int    `name:"spots" help:"Bookings allowed per slot"`
	Timezone      *string `name:"timezone" aliases:"tz" help:"Default IANA timezone; empty clears it"`
	Reset         bool    `name:"reset" help:"Start from the built-in defaults"`
}

func (c *DefaultsSetCmd) Run(ctx context.Context, flags *RootFlags) error {
	loc, st, err := openTenantStore(ctx, flags)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	d, err := st.GetCalendarDefaults(ctx, loc)
	if err != nil {
		return err
	}
	if c.Reset {
		d = tenant.NewCalendarDefaults(loc)
	}

	setInt(&d.DefaultSlotDurationMinutes, c.SlotDuration)
	setInt(&d.MinSchedulingNoticeDays, c.MinNotice)
	setInt(&d.BookingWindowDays, c.BookingWindow)
	setInt(&d.SpotsPerBooking, c.Spots)
	setString(&d.DefaultTimezone, c.Timezone)

	if err := issuesError(validate.CalendarDefaults(d)); err != nil {
		return err
	}

	if err := dryRunExit(ctx, flags, "defaults.set", d); err != nil {
		return err
	}

	if err := st.SaveCalendarDefaults(ctx, &d); err != nil {
		return err
	}
	return writeDefaults(ctx, d)
}

func writeDefaults(ctx context.Context, d tenant.CalendarDefaults) error {
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"defaults": d})
	}

	u := ui.FromContext(ctx)
	u.Out().Printf("location\t%s", d.LocationID)
	u.Out().Printf("default_slot_duration_minutes\t%s", strconv.Itoa(d.DefaultSlotDurationMinutes))
	u.Out().Printf("min_scheduling_notice_days\t%s", strconv.Itoa(d.MinSchedulingNoticeDays))
	u.Out().Printf("booking_window_days\t%s", strconv.Itoa(d.BookingWindowDays))
	u.Out().Printf("spots_per_booking\t%s", strconv.Itoa(d.SpotsPerBooking))
	u.Out().Printf("default_timezone\t%s", d.DefaultTimezone)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
