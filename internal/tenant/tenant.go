// Package tenant holds the per-location records that scope provisioning.
package tenant

import "time"

const (
	DefaultPrimaryColor    = "#FFC300"
	DefaultBackgroundColor = "#FFFFFF"
	DefaultButtonText      = "Book Now"

	DefaultSlotDurationMinutes = 30
	DefaultMinNoticeDays       = 1
	DefaultBookingWindowDays   = 60
	DefaultSpotsPerBooking     = 1
)

// BrandConfig is the tenant's look and feel for booking widgets.
type BrandConfig struct {
	LocationID         string    `json:"locationId"`
	PrimaryColorHex    string    `json:"primaryColorHex"`
	BackgroundColorHex string    `json:"backgroundColorHex"`
	DefaultButtonText  string    `json:"defaultButtonText"`
	DefaultTimezone    string    `json:"defaultTimezone,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// CalendarDefaults are the booking rules applied when a row leaves them out.
type CalendarDefaults struct {
	LocationID                 string    `json:"locationId"`
	DefaultSlotDurationMinutes int       `json:"defaultSlotDurationMinutes"`
	MinSchedulingNoticeDays    int       `json:"minSchedulingNoticeDays"`
	BookingWindowDays          int       `json:"bookingWindowDays"`
	SpotsPerBooking            int       `json:"spotsPerBooking"`
	DefaultTimezone            string    `json:"defaultTimezone,omitempty"`
	UpdatedAt                  time.Time `json:"updatedAt"`
}

func NewBrandConfig(locationID string) BrandConfig {
	return BrandConfig{
		LocationID:         locationID,
		PrimaryColorHex:    DefaultPrimaryColor,
		BackgroundColorHex: DefaultBackgroundColor,
		DefaultButtonText:  DefaultButtonText,
	}
}

func NewCalendarDefaults(locationID string) CalendarDefaults {
	return CalendarDefaults{
		LocationID:                 locationID,
		DefaultSlotDurationMinutes: DefaultSlotDurationMinutes,
		MinSchedulingNoticeDays:    DefaultMinNoticeDays,
		BookingWindowDays:          DefaultBookingWindowDays,
		SpotsPerBooking:            DefaultSpotsPerBooking,
	}
}
