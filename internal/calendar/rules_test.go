package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules(t *testing.T) Rules {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jerusalem")
	require.NoError(t, err)
	return Rules{
		Location:     loc,
		WorkingDays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
		Open:         NewClock(9, 0),
		Close:        NewClock(18, 0),
		LunchStart:   NewClock(13, 0),
		LunchEnd:     NewClock(14, 0),
		SlotInterval: 30 * time.Minute,
		HorizonDays:  30,
	}
}

func TestCandidateSlots(t *testing.T) {
	r := testRules(t)
	slots := r.CandidateSlots()

	// 09:00..12:30 (8) + 14:00..17:30 (8)
	require.Len(t, slots, 16)
	assert.Equal(t, "09:00", slots[0].String())
	assert.Equal(t, "17:30", slots[len(slots)-1].String())
	for _, s := range slots {
		assert.False(t, r.InLunchBreak(s), s.String())
	}
	for i := 1; i < len(slots); i++ {
		assert.Less(t, slots[i-1], slots[i])
	}
}

func TestCandidateSlotsZeroInterval(t *testing.T) {
	r := testRules(t)
	r.SlotInterval = 0
	assert.Empty(t, r.CandidateSlots())
}

func TestIsWorkingDay(t *testing.T) {
	r := testRules(t)
	assert.True(t, r.IsWorkingDay(NewDay(2026, time.October, 12)))  // Monday
	assert.True(t, r.IsWorkingDay(NewDay(2026, time.October, 17)))  // Saturday
	assert.False(t, r.IsWorkingDay(NewDay(2026, time.October, 18))) // Sunday
}

func TestNextWorkingDay(t *testing.T) {
	r := testRules(t)

	// Суббота -> понедельник, воскресенье выходной
	assert.Equal(t, NewDay(2026, time.October, 19), r.NextWorkingDay(NewDay(2026, time.October, 17)))
	assert.Equal(t, NewDay(2026, time.October, 19), r.NextWorkingDay(NewDay(2026, time.October, 18)))
	assert.Equal(t, NewDay(2026, time.October, 16), r.NextWorkingDay(NewDay(2026, time.October, 15)))

	r.WorkingDays = nil
	assert.Equal(t, NewDay(2026, time.October, 16), r.NextWorkingDay(NewDay(2026, time.October, 15)))
}

func TestBusinessHoursAndLunch(t *testing.T) {
	r := testRules(t)
	assert.True(t, r.IsBookableTime(NewClock(9, 0)))
	assert.False(t, r.IsBookableTime(NewClock(8, 59)))
	assert.False(t, r.IsBookableTime(NewClock(13, 30)))
	assert.True(t, r.IsBookableTime(NewClock(14, 0)))
	assert.False(t, r.IsBookableTime(NewClock(18, 0)))
}

func TestWithinHorizon(t *testing.T) {
	r := testRules(t)
	today := NewDay(2026, time.October, 15)

	assert.True(t, r.WithinHorizon(today, today))
	assert.True(t, r.WithinHorizon(today.AddDays(30), today))
	assert.False(t, r.WithinHorizon(today.AddDays(31), today))
	assert.False(t, r.WithinHorizon(today.AddDays(-1), today))
}

func TestTodayUsesBusinessZone(t *testing.T) {
	r := testRules(t)
	// 22:30 UTC is already the next day in Jerusalem.
	now := time.Date(2026, time.October, 15, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, NewDay(2026, time.October, 16), r.Today(now))

	d, c := r.Now(now)
	assert.Equal(t, NewDay(2026, time.October, 16), d)
	assert.Equal(t, "01:30", c.String())
}

func TestDayArithmetic(t *testing.T) {
	d := NewDay(2026, time.December, 31)
	assert.Equal(t, NewDay(2027, time.January, 1), d.AddDays(1))
	assert.Equal(t, 1, d.DaysUntil(d.AddDays(1)))
	assert.Equal(t, -3, d.DaysUntil(d.AddDays(-3)))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
}

func TestDayAndClockText(t *testing.T) {
	type payload struct {
		Day  Day   `json:"day"`
		Time Clock `json:"time"`
	}
	in := payload{Day: NewDay(2026, time.March, 5), Time: NewClock(10, 30)}

	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"day":"2026-03-05","time":"10:30"}`, string(b))

	var out payload
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)

	_, err = ParseDay("05.03.2026")
	assert.Error(t, err)
	_, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestWorkingDaysAhead(t *testing.T) {
	r := testRules(t)
	r.HorizonDays = 6
	days := r.WorkingDaysAhead(NewDay(2026, time.October, 12))
	require.Len(t, days, 6)
	for _, d := range days {
		assert.NotEqual(t, time.Sunday, d.Weekday())
	}
}
