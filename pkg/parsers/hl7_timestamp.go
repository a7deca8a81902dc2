package parsers

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateTimeLayout = "2006-01-02T15:04:05"
	dateLayout     = "2006-01-02"
)

// Timestamp is a validated HL7 DTM value.
type Timestamp struct {
	Time time.Time
	// Precision counts the digit groups present: 3 (date) up to 6 (seconds).
	Precision int
	// Millis holds the fraction truncated to milliseconds, -1 when absent.
	Millis    int
	HasOffset bool
}

// ParseTimestamp consumes YYYYMMDD[HH[MM[SS[.F+]]]][+/-ZZZZ]. Year, month
// and day are mandatory; every component is range checked.
func ParseTimestamp(value string) (Timestamp, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return Timestamp{}, tsError(value, "empty value")
	}

	digits := raw
	offsetPart := ""
	if idx := strings.IndexAny(raw, "+-"); idx >= 0 {
		digits, offsetPart = raw[:idx], raw[idx:]
	}
	fraction := ""
	hasFraction := false
	if idx := strings.IndexByte(digits, '.'); idx >= 0 {
		digits, fraction = digits[:idx], digits[idx+1:]
		hasFraction = true
	}
	if !allDigits(digits) {
		return Timestamp{}, tsError(value, "unexpected non-digit character")
	}
	if len(digits) < 8 {
		return Timestamp{}, tsError(value, "year, month and day are required")
	}
	if len(digits) > 14 || len(digits)%2 != 0 {
		return Timestamp{}, tsError(value, "time components must be complete two-digit groups")
	}

	groups := []int{atoi(digits[0:4])}
	for pos := 4; pos < len(digits); pos += 2 {
		groups = append(groups, atoi(digits[pos:pos+2]))
	}
	ts := Timestamp{Precision: len(groups), Millis: -1}
	for len(groups) < 6 {
		groups = append(groups, 0)
	}
	year, month, day, hour, minute, second := groups[0], groups[1], groups[2], groups[3], groups[4], groups[5]

	if month < 1 || month > 12 {
		return Timestamp{}, tsError(value, fmt.Sprintf("month must be 1-12, got %d", month))
	}
	if max := daysIn(year, time.Month(month)); day < 1 || day > max {
		return Timestamp{}, tsError(value, fmt.Sprintf("day must be 1-%d, got %d", max, day))
	}
	if hour > 23 {
		return Timestamp{}, tsError(value, fmt.Sprintf("hour must be 0-23, got %d", hour))
	}
	if minute > 59 {
		return Timestamp{}, tsError(value, fmt.Sprintf("minute must be 0-59, got %d", minute))
	}
	if second > 59 {
		return Timestamp{}, tsError(value, fmt.Sprintf("second must be 0-59, got %d", second))
	}

	nanos := 0
	if hasFraction {
		if ts.Precision < 6 {
			return Timestamp{}, tsError(value, "fractional seconds require seconds")
		}
		n := 0
		for n < len(fraction) && fraction[n] >= '0' && fraction[n] <= '9' {
			n++
		}
		if n == 0 || n != len(fraction) {
			return Timestamp{}, tsError(value, "malformed fractional seconds")
		}
		ms := (fraction + "000")[:3]
		ts.Millis = atoi(ms)
		nanos = ts.Millis * int(time.Millisecond)
	}

	loc := time.UTC
	if offsetPart != "" {
		if len(offsetPart) != 5 || !allDigits(offsetPart[1:]) {
			return Timestamp{}, tsError(value, "timezone offset must be a sign followed by 4 digits")
		}
		oh, om := atoi(offsetPart[1:3]), atoi(offsetPart[3:5])
		if oh > 23 || om > 59 {
			return Timestamp{}, tsError(value, "timezone offset out of range")
		}
		secs := (oh*60 + om) * 60
		if offsetPart[0] == '-' {
			secs = -secs
		}
		loc = time.FixedZone("", secs)
		ts.HasOffset = true
	}

	ts.Time = time.Date(year, time.Month(month), day, hour, minute, second, nanos, loc)
	return ts, nil
}

// String renders the full ISO form: date, time, optional milliseconds and
// either Z or a ±HH:MM offset.
func (t Timestamp) String() string {
	layout := dateTimeLayout
	if t.Millis >= 0 {
		layout += ".000"
	}
	return t.Time.Format(layout + "Z07:00")
}

// DateString renders only the calendar date as written in the source.
func (t Timestamp) DateString() string {
	return t.Time.Format(dateLayout)
}

// NormalizeTimestamp converts an HL7 DTM value to ISO 8601. Values without an
// offset are taken as UTC.
func NormalizeTimestamp(value string) (string, error) {
	ts, err := ParseTimestamp(value)
	if err != nil {
		return "", err
	}
	return ts.String(), nil
}

// NormalizeDate converts an HL7 date (or date-time) to YYYY-MM-DD.
func NormalizeDate(value string) (string, error) {
	ts, err := ParseTimestamp(value)
	if err != nil {
		return "", err
	}
	return ts.DateString(), nil
}

func tsError(value, reason string) *ParseError {
	return &ParseError{
		Kind:    KindTimestampFormat,
		Message: fmt.Sprintf("invalid HL7 timestamp %q: %s", value, reason),
	}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
