package functions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/backend/pkg/formula/types"
)

func TestDateFormatTranslation(t *testing.T) {
	segments := parseDateFormat("DD Mon YYYY, HH24:MI:SS")
	assert.Equal(t, "%d %b %Y, %H:%i:%s", mysqlDateFormat(segments))
	assert.Equal(t, "02 Jan 2006, 15:04:05", goDateLayout(segments))

	assert.Equal(t, "100%% %Y", mysqlDateFormat(parseDateFormat("100% YYYY")))
	assert.Equal(t, "%h:%i %p", mysqlDateFormat(parseDateFormat("HH12:MI AM")))
	assert.Equal(t, "%W, %M", mysqlDateFormat(parseDateFormat("Day, Month")))
}

func TestFormatTimeKeepsLiterals(t *testing.T) {
	ts := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "2024 at 2 o'clock 15", formatTime(ts, parseDateFormat(`YYYY "at 2 o'clock" HH24`)))
}

func TestMysqlDateLayoutMatchesGoLayout(t *testing.T) {
	cases := []struct {
		date  types.Date
		mysql string
	}{
		{types.Date{Format: types.DateFormatISO}, "%Y-%m-%d"},
		{types.Date{Format: types.DateFormatEU, IncludeTime: true, TimeFormat: types.TimeFormat24}, "%d/%m/%Y %H:%i"},
		{types.Date{Format: types.DateFormatUS, IncludeTime: true, TimeFormat: types.TimeFormat12}, "%m/%d/%Y %h:%i %p"},
	}
	for _, c := range cases {
		assert.Equal(t, c.mysql, mysqlDateLayout(c.date), c.date.String())
	}
}

func TestParseInterval(t *testing.T) {
	cases := map[string]time.Duration{
		"1 day":           24 * time.Hour,
		"2 hours 30 mins": 150 * time.Minute,
		"-3 weeks":        -21 * 24 * time.Hour,
		"1 day 02:30:00":  26*time.Hour + 30*time.Minute,
		"1 month":         30 * 24 * time.Hour,
		"1 year":          365 * 24 * time.Hour,
		"90s":             90 * time.Second,
		"1.5 hours":       90 * time.Minute,
		"1 DAY, 1 hour":   25 * time.Hour,
	}
	for text, want := range cases {
		got, err := parseInterval(text)
		require.NoError(t, err, text)
		assert.Equal(t, want, got, text)
	}

	for _, bad := range []string{"", "day", "1", "1 fortnight", "1:2:3:4"} {
		_, err := parseInterval(bad)
		assert.Error(t, err, bad)
	}
}

func TestDateDiffMatchesTimestampDiff(t *testing.T) {
	start := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(0), dateDiff("month", start, time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(2), dateDiff("month", start, time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(-2), dateDiff("month", time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC), start))
	assert.Equal(t, int64(-1), dateDiff("month", time.Date(2024, 3, 30, 12, 0, 0, 0, time.UTC), start))
	assert.Equal(t, int64(1), dateDiff("year", start, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(1), dateDiff("week", start, start.AddDate(0, 0, 13)))
	assert.Equal(t, int64(-90), dateDiff("minute", start, start.Add(-90*time.Minute)))
}
