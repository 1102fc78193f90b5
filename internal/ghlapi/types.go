package ghlapi

import "encoding/json"

// HourRange is one open interval within a day.
type HourRange struct {
	OpenHour    int `json:"openHour"`
	OpenMinute  int `json:"openMinute"`
	CloseHour   int `json:"closeHour"`
	CloseMinute int `json:"closeMinute"`
}

// OpenHour is one row of the weekly grid. Days use Sun=0 .. Sat=6.
type OpenHour struct {
	DaysOfTheWeek []int       `json:"daysOfTheWeek"`
	Hours         []HourRange `json:"hours"`
}

// Availability is a date-specific entry. An empty Hours list means the day
// is fully blocked. The platform also stores intervals under openHours;
// Ranges reads either form.
//
// An entry decoded from a response is re-encoded from its original bytes,
// so fields not modelled here survive a fetch-merge-write cycle. Entries
// built in code have no original bytes and encode from their fields.
type Availability struct {
	ID        string      `json:"id,omitempty"`
	Date      string      `json:"date"`
	Hours     []HourRange `json:"hours"`
	OpenHours []HourRange `json:"openHours,omitempty"`
	Deleted   bool        `json:"deleted"`

	raw json.RawMessage
}

// availabilityFields has Availability's fields without its JSON methods.
type availabilityFields Availability

func (a *Availability) UnmarshalJSON(b []byte) error {
	var f availabilityFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}

	*a = Availability(f)
	a.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (a Availability) MarshalJSON() ([]byte, error) {
	if len(a.raw) > 0 {
		return a.raw, nil
	}
	return json.Marshal(availabilityFields(a))
}

// Ranges returns the entry's open intervals from hours, or from openHours
// when hours is absent.
func (a Availability) Ranges() []HourRange {
	if a.Hours == nil {
		return a.OpenHours
	}
	return a.Hours
}

type Notification struct {
	Type                      string `json:"type"`
	ShouldSendToContact       bool   `json:"shouldSendToContact"`
	ShouldSendToGuest         bool   `json:"shouldSendToGuest"`
	ShouldSendToUser          bool   `json:"shouldSendToUser"`
	ShouldSendToSelectedUsers bool   `json:"shouldSendToSelectedUsers"`
	SelectedUsers             string `json:"selectedUsers"`
}

// CalendarPayload is the body for calendar create and update calls.
// AppoinmentPerDay keeps the platform's spelling; 0 means unlimited and is
// always sent.
type CalendarPayload struct {
	LocationID  string `json:"locationId"`
	GroupID     string `json:"groupId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Slug        string `json:"slug"`
	WidgetSlug  string `json:"widgetSlug,omitempty"`

	CalendarType    string `json:"calendarType,omitempty"`
	WidgetType      string `json:"widgetType,omitempty"`
	EventTitle      string `json:"eventTitle,omitempty"`
	EventColor      string `json:"eventColor,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	ButtonText      string `json:"buttonText,omitempty"`
	Timezone        string `json:"timezone,omitempty"`

	SlotDuration          int    `json:"slotDuration"`
	SlotDurationUnit      string `json:"slotDurationUnit,omitempty"`
	SlotInterval          int    `json:"slotInterval"`
	SlotIntervalUnit      string `json:"slotIntervalUnit,omitempty"`
	PreBuffer             int    `json:"preBuffer"`
	PreBufferUnit         string `json:"preBufferUnit,omitempty"`
	AppoinmentPerSlot     int    `json:"appoinmentPerSlot"`
	AppoinmentPerDay      int    `json:"appoinmentPerDay"`
	AllowBookingAfter     int    `json:"allowBookingAfter"`
	AllowBookingAfterUnit string `json:"allowBookingAfterUnit,omitempty"`
	AllowBookingFor       int    `json:"allowBookingFor"`
	AllowBookingForUnit   string `json:"allowBookingForUnit,omitempty"`

	OpenHours        []OpenHour     `json:"openHours,omitempty"`
	Availabilities   []Availability `json:"availabilities,omitempty"`
	AvailabilityType *int           `json:"availabilityType,omitempty"`

	EnableRecurring         bool           `json:"enableRecurring"`
	FormSubmitType          string         `json:"formSubmitType,omitempty"`
	FormSubmitThanksMessage string         `json:"formSubmitThanksMessage,omitempty"`
	Notifications           []Notification `json:"notifications,omitempty"`
	AutoConfirm             bool           `json:"autoConfirm"`
	AllowReschedule         bool           `json:"allowReschedule"`
	AllowCancellation       bool           `json:"allowCancellation"`
	IsActive                bool           `json:"isActive"`
}

// Calendar is a calendar as returned by the platform.
type Calendar struct {
	ID string `json:"id"`
	CalendarPayload
}

// AvailabilityUpdate is the minimal body for a date-override change. The
// weekly grid and availability type ride along unchanged; without them the
// platform drops the calendar back to "no custom hours".
type AvailabilityUpdate struct {
	OpenHours        []OpenHour     `json:"openHours"`
	AvailabilityType int            `json:"availabilityType"`
	Availabilities   []Availability `json:"availabilities"`
}

type Group struct {
	ID          string `json:"id"`
	LocationID  string `json:"locationId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Slug        string `json:"slug"`
	IsActive    bool   `json:"isActive"`
}

type GroupInput struct {
	LocationID  string `json:"locationId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Slug        string `json:"slug"`
	IsActive    bool   `json:"isActive"`
}

type Location struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}
