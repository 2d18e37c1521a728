package functions

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	secondsPerDay = 86400
	// Months and years have no fixed length; intervals use 30 and 365 days.
	secondsPerMonth = 30 * secondsPerDay
	secondsPerYear  = 365 * secondsPerDay
)

var intervalUnits = map[string]float64{
	"s": 1, "sec": 1, "secs": 1, "second": 1, "seconds": 1,
	"m": 60, "min": 60, "mins": 60, "minute": 60, "minutes": 60,
	"h": 3600, "hr": 3600, "hrs": 3600, "hour": 3600, "hours": 3600,
	"d": secondsPerDay, "day": secondsPerDay, "days": secondsPerDay,
	"w": 7 * secondsPerDay, "week": 7 * secondsPerDay, "weeks": 7 * secondsPerDay,
	"mon": secondsPerMonth, "mons": secondsPerMonth, "month": secondsPerMonth, "months": secondsPerMonth,
	"y": secondsPerYear, "yr": secondsPerYear, "yrs": secondsPerYear, "year": secondsPerYear, "years": secondsPerYear,
}

// parseInterval reads intervals such as '1 day', '2 hours 30 minutes',
// '-3 weeks' or '1 day 02:30:00'.
func parseInterval(text string) (time.Duration, error) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return 0, fmt.Errorf("the interval is empty")
	}
	var seconds float64
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if strings.Contains(f, ":") {
			s, err := parseClock(f)
			if err != nil {
				return 0, err
			}
			seconds += s
			continue
		}
		number, unit := splitNumberUnit(f)
		if unit == "" {
			if i+1 >= len(fields) {
				return 0, fmt.Errorf("%q has no unit", f)
			}
			i++
			unit = fields[i]
		}
		amount, err := strconv.ParseFloat(number, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", number)
		}
		factor, ok := intervalUnits[strings.TrimSuffix(unit, ",")]
		if !ok {
			return 0, fmt.Errorf("%q is not a known unit", unit)
		}
		seconds += amount * factor
	}
	return time.Duration(math.Round(seconds)) * time.Second, nil
}

func splitNumberUnit(f string) (string, string) {
	i := 0
	for i < len(f) && (f[i] == '-' || f[i] == '+' || f[i] == '.' || (f[i] >= '0' && f[i] <= '9')) {
		i++
	}
	return f[:i], f[i:]
}

func parseClock(f string) (float64, error) {
	sign := 1.0
	if strings.HasPrefix(f, "-") {
		sign = -1
		f = f[1:]
	}
	parts := strings.Split(f, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%q is not a valid time", f)
	}
	var total float64
	factors := []float64{3600, 60, 1}
	for i, p := range parts {
		n, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a valid time", f)
		}
		total += n * factors[i]
	}
	return sign * total, nil
}

// dateDiffUnits maps date_diff unit names onto the TIMESTAMPDIFF unit.
var dateDiffUnits = map[string]string{
	"year": "year", "years": "year", "yy": "year", "yyyy": "year",
	"quarter": "quarter", "quarters": "quarter", "qq": "quarter", "q": "quarter",
	"month": "month", "months": "month", "mm": "month", "m": "month",
	"week": "week", "weeks": "week", "wk": "week", "ww": "week",
	"day": "day", "days": "day", "dd": "day", "d": "day",
	"hour": "hour", "hours": "hour", "hh": "hour",
	"minute": "minute", "minutes": "minute", "mi": "minute", "n": "minute",
	"second": "second", "seconds": "second", "ss": "second", "s": "second",
}

// dateDiff counts whole units between start and end the way TIMESTAMPDIFF does.
func dateDiff(unit string, start, end time.Time) int64 {
	switch unit {
	case "year":
		return monthsBetween(start, end) / 12
	case "quarter":
		return monthsBetween(start, end) / 3
	case "month":
		return monthsBetween(start, end)
	case "week":
		return int64(end.Sub(start) / (7 * 24 * time.Hour))
	case "day":
		return int64(end.Sub(start) / (24 * time.Hour))
	case "hour":
		return int64(end.Sub(start) / time.Hour)
	case "minute":
		return int64(end.Sub(start) / time.Minute)
	}
	return int64(end.Sub(start) / time.Second)
}

func monthsBetween(start, end time.Time) int64 {
	start, end = start.UTC(), end.UTC()
	months := int64(end.Year()-start.Year())*12 + int64(end.Month()-start.Month())
	startRest := start.Sub(time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC))
	endRest := end.Sub(time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC))
	switch {
	case months > 0 && endRest < startRest:
		months--
	case months < 0 && endRest > startRest:
		months++
	}
	return months
}
