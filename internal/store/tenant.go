package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/bradenrollio/easycal-sub000/internal/tenant"
)

// GetBrandConfig returns the location's brand config, creating it with the
// defaults on first read.
func (s *Store) GetBrandConfig(ctx context.Context, locationID string) (tenant.BrandConfig, error) {
	locationID = strings.TrimSpace(locationID)

	var (
		cfg     tenant.BrandConfig
		updated string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT location_id, primary_color_hex, background_color_hex, default_button_text, default_timezone, updated_at
		FROM brand_configs WHERE location_id = ?`), locationID).
		Scan(&cfg.LocationID, &cfg.PrimaryColorHex, &cfg.BackgroundColorHex, &cfg.DefaultButtonText, &cfg.DefaultTimezone, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		cfg = tenant.NewBrandConfig(locationID)
		if err := s.SaveBrandConfig(ctx, &cfg); err != nil {
			return tenant.BrandConfig{}, err
		}
		return cfg, nil
	}
	if err != nil {
		return tenant.BrandConfig{}, fmt.Errorf("read brand config: %w", err)
	}
	cfg.UpdatedAt = parseTime(updated)

	return cfg, nil
}

// SaveBrandConfig overwrites the location's brand config and stamps
// UpdatedAt.
func (s *Store) SaveBrandConfig(ctx context.Context, cfg *tenant.BrandConfig) error {
	cfg.UpdatedAt = s.now()

	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO brand_configs
		(location_id, primary_color_hex, background_color_hex, default_button_text, default_timezone, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (location_id) DO UPDATE SET
			primary_color_hex = excluded.primary_color_hex,
			background_color_hex = excluded.background_color_hex,
			default_button_text = excluded.default_button_text,
			default_timezone = excluded.default_timezone,
			updated_at = excluded.updated_at`),
		cfg.LocationID, cfg.PrimaryColorHex, cfg.BackgroundColorHex, cfg.DefaultButtonText, cfg.DefaultTimezone, formatTime(cfg.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save brand config: %w", err)
	}

	return nil
}

// GetCalendarDefaults returns the location's calendar defaults, creating
// them on first read.
func (s *Store) GetCalendarDefaults(ctx context.Context, locationID string) (tenant.CalendarDefaults, error) {
	locationID = strings.TrimSpace(locationID)

	var (
		d       tenant.CalendarDefaults
		updated string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT location_id, default_slot_duration_minutes, min_scheduling_notice_days, booking_window_days, spots_per_booking, default_timezone, updated_at
		FROM calendar_defaults WHERE location_id = ?`), locationID).
		Scan(&d.LocationID, &d.DefaultSlotDurationMinutes, &d.MinSchedulingNoticeDays, &d.BookingWindowDays, &d.SpotsPerBooking, &d.DefaultTimezone, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		d = tenant.NewCalendarDefaults(locationID)
		if err := s.SaveCalendarDefaults(ctx, &d); err != nil {
			return tenant.CalendarDefaults{}, err
		}
		return d, nil
	}
	if err != nil {
		return tenant.CalendarDefaults{}, fmt.Errorf("read calendar defaults: %w", err)
	}
	d.UpdatedAt = parseTime(updated)

	return d, nil
}

func (s *Store) SaveCalendarDefaults(ctx context.Context, d *tenant.CalendarDefaults) error {
	d.UpdatedAt = s.now()

	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO calendar_defaults
		(location_id, default_slot_duration_minutes, min_scheduling_notice_days, booking_window_days, spots_per_booking, default_timezone, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (location_id) DO UPDATE SET
			default_slot_duration_minutes = excluded.default_slot_duration_minutes,
			min_scheduling_notice_days = excluded.min_scheduling_notice_days,
			booking_window_days = excluded.booking_window_days,
			spots_per_booking = excluded.spots_per_booking,
			default_timezone = excluded.default_timezone,
			updated_at = excluded.updated_at`),
		d.LocationID, d.DefaultSlotDurationMinutes, d.MinSchedulingNoticeDays, d.BookingWindowDays, d.SpotsPerBooking, d.DefaultTimezone, formatTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save calendar defaults: %w", err)
	}

	return nil
}
