package app

import "time"

// BusinessClock returns a clock reading the current time in the business zone.
func BusinessClock(loc *time.Location) func() time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return func() time.Time {
		return time.Now().In(loc)
	}
}
