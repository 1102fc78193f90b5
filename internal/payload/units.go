package payload

const (
	hoursPerDay    = 24
	minutesPerHour = 60
)

// DaysToHours converts a day count for fields measured in hours.
func DaysToHours(days int) int { return days * hoursPerDay }
