package domain

import "time"

// NormalizeWearDate truncates t to midnight of its calendar day in loc. The
// result is the key used when a garment or outfit is assigned to a day.
func NormalizeWearDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
