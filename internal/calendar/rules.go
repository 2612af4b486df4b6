// Package calendar holds the business calendar: civil days, times of day and
// the rules deciding which of them are bookable. Everything here is pure.
package calendar

import (
	"time"
)

// Rules describes the business week of a single shared calendar.
type Rules struct {
	Location     *time.Location
	WorkingDays  []time.Weekday
	Open         Clock
	Close        Clock
	LunchStart   Clock
	LunchEnd     Clock
	SlotInterval time.Duration
	HorizonDays  int
}

func (r Rules) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// Today returns the business-local calendar day of now.
func (r Rules) Today(now time.Time) Day {
	return DayOf(now.In(r.location()))
}

// Now returns the business-local day and time of day of now.
func (r Rules) Now(now time.Time) (Day, Clock) {
	local := now.In(r.location())
	return DayOf(local), ClockOf(local)
}

// At returns the instant of day+clock in the business time zone.
func (r Rules) At(d Day, c Clock) time.Time {
	return d.In(r.location()).Add(time.Duration(c) * time.Minute)
}

func (r Rules) IsWorkingDay(d Day) bool {
	wd := d.Weekday()
	for _, w := range r.WorkingDays {
		if w == wd {
			return true
		}
	}
	return false
}

// NextWorkingDay returns the first working day after d. A week without
// working days yields d+1.
func (r Rules) NextWorkingDay(d Day) Day {
	for i := 1; i <= 7; i++ {
		if next := d.AddDays(i); r.IsWorkingDay(next) {
			return next
		}
	}
	return d.AddDays(1)
}

// InBusinessHours reports whether c falls in [Open, Close).
func (r Rules) InBusinessHours(c Clock) bool {
	return c >= r.Open && c < r.Close
}

// InLunchBreak reports whether c falls in [LunchStart, LunchEnd).
func (r Rules) InLunchBreak(c Clock) bool {
	if r.LunchEnd <= r.LunchStart {
		return false
	}
	return c >= r.LunchStart && c < r.LunchEnd
}

// IsBookableTime is true for times inside business hours and outside lunch.
func (r Rules) IsBookableTime(c Clock) bool {
	return r.InBusinessHours(c) && !r.InLunchBreak(c)
}

// WithinHorizon reports whether d lies in [today, today+HorizonDays].
func (r Rules) WithinHorizon(d, today Day) bool {
	if d.Before(today) {
		return false
	}
	return today.DaysUntil(d) <= r.HorizonDays
}

// CandidateSlots enumerates slot starts from Open every SlotInterval while the
// start is before Close, skipping starts inside the lunch break.
func (r Rules) CandidateSlots() []Clock {
	step := Clock(r.SlotInterval / time.Minute)
	if step <= 0 {
		return nil
	}
	slots := make([]Clock, 0, int((r.Close-r.Open)/step)+1)
	for c := r.Open; c < r.Close; c += step {
		if r.InLunchBreak(c) {
			continue
		}
		slots = append(slots, c)
	}
	return slots
}

// WorkingDaysAhead lists bookable days from today through the horizon.
func (r Rules) WorkingDaysAhead(today Day) []Day {
	days := make([]Day, 0, r.HorizonDays+1)
	for i := 0; i <= r.HorizonDays; i++ {
		d := today.AddDays(i)
		if r.IsWorkingDay(d) {
			days = append(days, d)
		}
	}
	return days
}
