package branding

import (
	"strings"

	"github.com/bradenrollio/easycal-sub000/internal/rows"
	"github.com/bradenrollio/easycal-sub000/internal/tenant"
)

const (
	// FallbackTimezone is used when neither the row, the tenant records nor
	// the location carry a timezone.
	FallbackTimezone = "America/New_York"

	PurposeMakeup    = "makeup"
	MakeupButtonText = "Schedule Make-Up"
)

// Branding is the final look and timezone for one calendar.
type Branding struct {
	PrimaryColor    string `json:"primaryColor"`
	BackgroundColor string `json:"backgroundColor"`
	ButtonText      string `json:"buttonText"`
	Timezone        string `json:"timezone"`
}

// Resolve applies row > tenant precedence field by field. Timezone walks the
// longer chain: row, brand config, calendar defaults, location, fallback.
// defaults may be nil.
func Resolve(row rows.Row, cfg tenant.BrandConfig, defaults *tenant.CalendarDefaults, locationTimezone string) Branding {
	button := cfg.DefaultButtonText
	if strings.EqualFold(strings.TrimSpace(row.Purpose), PurposeMakeup) {
		button = MakeupButtonText
	}

	var defaultsTZ string
	if defaults != nil {
		defaultsTZ = defaults.DefaultTimezone
	}

	return Branding{
		PrimaryColor:    first(row.PrimaryColorHex, cfg.PrimaryColorHex),
		BackgroundColor: first(row.BackgroundColorHex, cfg.BackgroundColorHex),
		ButtonText:      first(row.ButtonText, button),
		Timezone:        first(row.Timezone, cfg.DefaultTimezone, defaultsTZ, locationTimezone, FallbackTimezone),
	}
}

func first(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
