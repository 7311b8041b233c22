package availability

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	cases := map[string]Clock{
		"00:00":           0,
		"09:00":           540,
		"18:30":           1110,
		"09:00:00":        540,
		"09:00:00.000000": 540,
		"23:59":           1439,
	}
	for in, want := range cases {
		got, err := ParseClock(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "9:00", "25:00", "ab:cd", "12", "09:00junk", "09:00:", "09:00:0", "09:00:00junk", "10:30 "} {
		_, err := ParseClock(in)
		assert.ErrorIs(t, err, ErrInvalidClock, in)
	}
}

func TestClockString(t *testing.T) {
	assert.Equal(t, "09:05", Clock(545).String())
	assert.Equal(t, "19:00", MustClock("18:30").Add(30).String())
}

func TestClockJSON(t *testing.T) {
	var w WorkingHours
	require.NoError(t, json.Unmarshal([]byte(`{"day_of_week":2,"start_time":"08:00","end_time":"12:30:00","is_closed":false}`), &w))
	assert.Equal(t, WorkingHours{DayOfWeek: 2, Start: 480, End: 750}, w)

	out, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"day_of_week":2,"start_time":"08:00","end_time":"12:30","is_closed":false}`, string(out))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-02-01")
	require.NoError(t, err)
	assert.Equal(t, 0, Weekday(d))
	assert.Equal(t, "2026-02-01", FormatDate(d))

	for _, in := range []string{"", "2026-13-01", "01/02/2026", "2026-02-30"} {
		_, err := ParseDate(in)
		assert.ErrorIs(t, err, ErrInvalidDate, in)
	}
}

func TestWeekday(t *testing.T) {
	saturday := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 6, Weekday(saturday))
	assert.Equal(t, 3, Weekday(wednesday))
}

func TestIntervalOverlaps(t *testing.T) {
	a := Interval{Start: MustClock("09:00"), End: MustClock("09:30")}
	assert.False(t, a.Overlaps(Interval{Start: MustClock("09:30"), End: MustClock("10:00")}))
	assert.False(t, a.Overlaps(Interval{Start: MustClock("08:30"), End: MustClock("09:00")}))
	assert.True(t, a.Overlaps(Interval{Start: MustClock("09:29"), End: MustClock("10:00")}))
	assert.True(t, a.Overlaps(Interval{Start: MustClock("08:00"), End: MustClock("12:00")}))
	assert.Equal(t, 30, a.Minutes())
}

func TestWorkingHoursValidate(t *testing.T) {
	assert.NoError(t, WorkingHours{DayOfWeek: 0, Closed: true}.Validate())
	assert.ErrorIs(t, WorkingHours{DayOfWeek: 7, Start: 540, End: 600}.Validate(), ErrInvalidWorkingHours)
	assert.ErrorIs(t, WorkingHours{DayOfWeek: 1, Start: 600, End: 600}.Validate(), ErrInvalidWorkingHours)
}
