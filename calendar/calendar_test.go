package calendar_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/calendar"
)

// March 2025: the 6th is a Thursday, 7th Friday, 8th Saturday, 9th Sunday.
var (
	thu6  = calendar.NewDate(2025, time.March, 6)
	fri7  = calendar.NewDate(2025, time.March, 7)
	sat8  = calendar.NewDate(2025, time.March, 8)
	sun9  = calendar.NewDate(2025, time.March, 9)
	mon10 = calendar.NewDate(2025, time.March, 10)
	tue11 = calendar.NewDate(2025, time.March, 11)
)

func TestIsWeekend_FridaySaturday(t *testing.T) {
	assert.False(t, calendar.IsWeekend(thu6))
	assert.True(t, calendar.IsWeekend(fri7))
	assert.True(t, calendar.IsWeekend(sat8))
	assert.False(t, calendar.IsWeekend(sun9), "Sunday is a working day")
}

func TestIsNonWorking_OptionalHolidayStillCounts(t *testing.T) {
	holidays := calendar.NewHolidaySet(calendar.Holiday{Date: mon10, Name: "Optional Day", IsOptional: true})
	assert.True(t, calendar.IsHoliday(mon10, holidays))
	assert.True(t, calendar.IsNonWorking(mon10, holidays))
	assert.False(t, calendar.IsNonWorking(tue11, holidays))
}

func TestTotalDaysInclusive(t *testing.T) {
	n, err := calendar.TotalDaysInclusive(thu6, thu6)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = calendar.TotalDaysInclusive(thu6, tue11)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestTotalDaysInclusive_EndBeforeStart(t *testing.T) {
	// Every pair with start after end fails, whatever the gap.
	for gap := 1; gap <= 40; gap++ {
		start := mon10.AddDays(gap)
		_, err := calendar.TotalDaysInclusive(start, mon10)
		assert.ErrorIs(t, err, calendar.ErrInvalidRange, "gap %d", gap)
	}
}

func TestCountDaysBreakdown_WeekendHolidayCountedOnce(t *testing.T) {
	// GIVEN: A holiday on Friday the 7th and another on Monday the 10th
	// THEN: Friday counts as weekend, Monday as holiday, nothing twice
	holidays := calendar.NewHolidaySet(
		calendar.Holiday{Date: fri7, Name: "Weekend Holiday"},
		calendar.Holiday{Date: mon10, Name: "Weekday Holiday"},
	)

	b, err := calendar.CountDaysBreakdown(thu6, tue11, holidays)
	require.NoError(t, err)
	assert.Equal(t, calendar.Breakdown{Total: 6, WeekendCount: 2, HolidayCount: 1, WorkingCount: 3}, b)
}

func TestCountDaysBreakdown_TotalsAlwaysAddUp(t *testing.T) {
	holidays := calendar.NewHolidaySet(
		calendar.Holiday{Date: calendar.NewDate(2025, time.February, 21), Name: "Language Day"},
		calendar.Holiday{Date: calendar.NewDate(2025, time.March, 26), Name: "Independence Day"},
		calendar.Holiday{Date: calendar.NewDate(2025, time.March, 28), Name: "Falls on Friday"},
	)
	start := calendar.NewDate(2025, time.February, 1)
	for span := 0; span < 90; span++ {
		end := start.AddDays(span)
		b, err := calendar.CountDaysBreakdown(start, end, holidays)
		require.NoError(t, err)
		assert.Equal(t, span+1, b.Total)
		assert.Equal(t, b.Total, b.WeekendCount+b.HolidayCount+b.WorkingCount)
		assert.GreaterOrEqual(t, b.WorkingCount, 0)
	}
}

func TestCountDaysBreakdown_InvalidRange(t *testing.T) {
	_, err := calendar.CountDaysBreakdown(tue11, thu6, nil)
	assert.ErrorIs(t, err, calendar.ErrInvalidRange)
}

func TestCountWorkingDaysBetween_StrictlyBetween(t *testing.T) {
	// Thu 6 .. Tue 11: strictly between are Fri, Sat, Sun, Mon -> Sun and Mon work
	assert.Equal(t, 2, calendar.CountWorkingDaysBetween(thu6, tue11, nil))
	assert.Equal(t, 2, calendar.CountWorkingDaysBetween(tue11, thu6, nil), "order independent")
	assert.Equal(t, 0, calendar.CountWorkingDaysBetween(thu6, thu6, nil))
	assert.Equal(t, 0, calendar.CountWorkingDaysBetween(sun9, mon10, nil))

	holidays := calendar.NewHolidaySet(calendar.Holiday{Date: mon10, Name: "Holiday"})
	assert.Equal(t, 1, calendar.CountWorkingDaysBetween(thu6, tue11, holidays))
}

func TestNextWorkingDay(t *testing.T) {
	assert.Equal(t, thu6, calendar.NextWorkingDay(thu6, nil))
	assert.Equal(t, sun9, calendar.NextWorkingDay(fri7, nil))

	holidays := calendar.NewHolidaySet(
		calendar.Holiday{Date: sun9, Name: "A"},
		calendar.Holiday{Date: mon10, Name: "B"},
	)
	assert.Equal(t, tue11, calendar.NextWorkingDay(fri7, holidays))
}

func TestDateOf_NormalisesToLocalMidnight(t *testing.T) {
	// 23:30 UTC on the 9th is already the 10th in Dhaka
	dhaka := time.FixedZone("Asia/Dhaka", 6*3600)
	utcLate := time.Date(2025, time.March, 9, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, mon10, calendar.DateOf(utcLate, dhaka))
	assert.Equal(t, sun9, calendar.DateOf(utcLate, time.UTC))
	assert.True(t, calendar.IsHoliday(calendar.DateOf(utcLate, dhaka),
		calendar.NewHolidaySet(calendar.Holiday{Date: mon10})))
}

func TestDate_JSON(t *testing.T) {
	var got struct {
		Start calendar.Date `json:"start"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"start":"2025-03-10"}`), &got))
	assert.Equal(t, mon10, got.Start)

	b, err := json.Marshal(calendar.Holiday{Date: mon10, Name: "X"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-03-10","name":"X","is_optional":false}`, string(b))

	_, err = calendar.ParseDate("10/03/2025")
	assert.Error(t, err)
}

func TestHolidaySet_ListSorted(t *testing.T) {
	set := calendar.NewHolidaySet(
		calendar.Holiday{Date: tue11, Name: "b"},
		calendar.Holiday{Date: thu6, Name: "a"},
	)
	list := set.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, 3, calendar.DaysBetween(sat8, tue11))
}
