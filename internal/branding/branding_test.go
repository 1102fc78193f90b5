package branding

import (
	"testing"

	"github.com/bradenrollio/easycal-sub000/internal/rows"
	"github.com/bradenrollio/easycal-sub000/internal/tenant"
)

func TestResolve_BrandDefaults(t *testing.T) {
	cfg := tenant.BrandConfig{PrimaryColorHex: "#FFC300", BackgroundColorHex: "#000000", DefaultButtonText: "Book Now"}

	got := Resolve(rows.Row{CalendarName: "Yoga"}, cfg, nil, "")
	want := Branding{PrimaryColor: "#FFC300", BackgroundColor: "#000000", ButtonText: "Book Now", Timezone: FallbackTimezone}
	if got != want {
		t.Fatalf("got %#v want %#v", got, want)
	}
}

func TestResolve_RowOverridesWin(t *testing.T) {
	row := rows.Row{
		PrimaryColorHex:    "#111111",
		BackgroundColorHex: "#222222",
		ButtonText:         "Reserve",
		Timezone:           "Europe/London",
		Purpose:            "makeup",
	}

	for _, cfg := range []tenant.BrandConfig{
		{},
		{PrimaryColorHex: "#FFC300", BackgroundColorHex: "#FFFFFF", DefaultButtonText: "Book Now", DefaultTimezone: "America/Denver"},
	} {
		defaults := &tenant.CalendarDefaults{DefaultTimezone: "Asia/Tokyo"}
		got := Resolve(row, cfg, defaults, "America/Chicago")
		want := Branding{PrimaryColor: "#111111", BackgroundColor: "#222222", ButtonText: "Reserve", Timezone: "Europe/London"}
		if got != want {
			t.Fatalf("cfg %#v: got %#v want %#v", cfg, got, want)
		}
	}
}

func TestResolve_MakeupPurpose(t *testing.T) {
	cfg := tenant.NewBrandConfig("loc1")

	got := Resolve(rows.Row{Purpose: "MakeUp"}, cfg, nil, "")
	if got.ButtonText != MakeupButtonText {
		t.Fatalf("expected makeup button text, got %q", got.ButtonText)
	}

	got = Resolve(rows.Row{Purpose: "class"}, cfg, nil, "")
	if got.ButtonText != tenant.DefaultButtonText {
		t.Fatalf("expected brand default, got %q", got.ButtonText)
	}
}

func TestResolve_TimezoneChain(t *testing.T) {
	defaults := &tenant.CalendarDefaults{DefaultTimezone: "Asia/Tokyo"}

	tests := []struct {
		name     string
		cfgTZ    string
		defaults *tenant.CalendarDefaults
		location string
		want     string
	}{
		{"brand config", "America/Denver", defaults, "America/Chicago", "America/Denver"},
		{"calendar defaults", "", defaults, "America/Chicago", "Asia/Tokyo"},
		{"location", "", &tenant.CalendarDefaults{}, "America/Chicago", "America/Chicago"},
		{"fallback", "", nil, "", FallbackTimezone},
	}

	for _, tc := range tests {
		got := Resolve(rows.Row{}, tenant.BrandConfig{DefaultTimezone: tc.cfgTZ}, tc.defaults, tc.location)
		if got.Timezone != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got.Timezone, tc.want)
		}
	}
}
