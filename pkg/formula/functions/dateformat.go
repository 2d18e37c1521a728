package functions

import (
	"strings"
	"time"

	"github.com/gridbase/backend/pkg/formula/types"
)

// dateToken is one placeholder of a datetime format string, with its MySQL
// DATE_FORMAT specifier and its Go layout.
type dateToken struct {
	name   string
	mysql  string
	layout string
}

// Longer names come first so HH24 wins over HH and MONTH over MON.
var dateTokens = []dateToken{
	{"YYYY", "%Y", "2006"},
	{"HH24", "%H", "15"},
	{"HH12", "%h", "03"},
	{"MONTH", "%M", "January"},
	{"MON", "%b", "Jan"},
	{"DAY", "%W", "Monday"},
	{"YY", "%y", "06"},
	{"MM", "%m", "01"},
	{"DD", "%d", "02"},
	{"DY", "%a", "Mon"},
	{"HH", "%h", "03"},
	{"MI", "%i", "04"},
	{"SS", "%s", "05"},
	{"AM", "%p", "PM"},
	{"PM", "%p", "PM"},
}

// dateSegment is either a token or literal text.
type dateSegment struct {
	token   *dateToken
	literal string
}

// parseDateFormat splits a format such as 'DD/MM/YYYY HH24:MI' into segments.
// Tokens match case insensitively; text in double quotes is copied verbatim.
func parseDateFormat(format string) []dateSegment {
	var segments []dateSegment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segments = append(segments, dateSegment{literal: lit.String()})
			lit.Reset()
		}
	}
	upper := strings.ToUpper(format)
	for i := 0; i < len(format); {
		if format[i] == '"' {
			end := strings.IndexByte(format[i+1:], '"')
			if end < 0 {
				lit.WriteString(format[i+1:])
				break
			}
			lit.WriteString(format[i+1 : i+1+end])
			i += end + 2
			continue
		}
		matched := false
		for k := range dateTokens {
			tok := &dateTokens[k]
			if strings.HasPrefix(upper[i:], tok.name) {
				flush()
				segments = append(segments, dateSegment{token: tok})
				i += len(tok.name)
				matched = true
				break
			}
		}
		if !matched {
			lit.WriteByte(format[i])
			i++
		}
	}
	flush()
	return segments
}

func mysqlDateFormat(segments []dateSegment) string {
	var sb strings.Builder
	for _, s := range segments {
		if s.token != nil {
			sb.WriteString(s.token.mysql)
			continue
		}
		sb.WriteString(strings.ReplaceAll(s.literal, "%", "%%"))
	}
	return sb.String()
}

func goDateLayout(segments []dateSegment) string {
	var sb strings.Builder
	for _, s := range segments {
		if s.token != nil {
			sb.WriteString(s.token.layout)
			continue
		}
		sb.WriteString(s.literal)
	}
	return sb.String()
}

// formatTime renders t segment by segment so literal text is never read as a
// Go layout element.
func formatTime(t time.Time, segments []dateSegment) string {
	var sb strings.Builder
	for _, s := range segments {
		if s.token != nil {
			sb.WriteString(t.Format(s.token.layout))
			continue
		}
		sb.WriteString(s.literal)
	}
	return sb.String()
}

// mysqlDateLayout is the DATE_FORMAT equivalent of types.Date.Layout.
func mysqlDateLayout(d types.Date) string {
	var layout string
	switch d.Format {
	case types.DateFormatEU:
		layout = "%d/%m/%Y"
	case types.DateFormatUS:
		layout = "%m/%d/%Y"
	default:
		layout = "%Y-%m-%d"
	}
	if !d.IncludeTime {
		return layout
	}
	if d.TimeFormat == types.TimeFormat12 {
		return layout + " %h:%i %p"
	}
	return layout + " %H:%i"
}
