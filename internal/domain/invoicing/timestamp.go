package invoicing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the storage layout of calendar dates (InvoiceDate, DueDate)
const DateLayout = "2006-01-02"

// ErrUnparsableTimestamp is returned when a stored value cannot be read as a point in time
var ErrUnparsableTimestamp = errors.New("unparsable timestamp")

// epochMillisThreshold separates epoch seconds from epoch milliseconds. Seconds values
// stay below it until the year 5138.
const epochMillisThreshold = 1e11

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseFlexibleTimestamp normalises the timestamp shapes found in stored invoice data:
// time.Time values, date-only strings, RFC3339 and SQL datetime strings, and epoch
// seconds or milliseconds as numbers or digit strings. Date-only values and layouts
// without a zone are interpreted in loc. Nil and empty values return the zero time and
// ok=false.
func ParseFlexibleTimestamp(value any, loc *time.Location) (t time.Time, ok bool, err error) {
	if loc == nil {
		loc = time.Local
	}

	switch v := value.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false, nil
		}
		return v, true, nil
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false, nil
		}
		return *v, true, nil
	case int64:
		return fromEpoch(float64(v)), true, nil
	case int:
		return fromEpoch(float64(v)), true, nil
	case float64:
		return fromEpoch(v), true, nil
	case []byte:
		return parseTimestampString(string(v), loc)
	case string:
		return parseTimestampString(v, loc)
	case *string:
		if v == nil {
			return time.Time{}, false, nil
		}
		return parseTimestampString(*v, loc)
	}
	return time.Time{}, false, fmt.Errorf("%w: unsupported type %T", ErrUnparsableTimestamp, value)
}

func parseTimestampString(s string, loc *time.Location) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}

	if isDigits(s) {
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%w: %q", ErrUnparsableTimestamp, s)
		}
		return fromEpoch(n), true, nil
	}

	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, true, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%w: %q", ErrUnparsableTimestamp, s)
}

func fromEpoch(n float64) time.Time {
	if n >= epochMillisThreshold {
		return time.UnixMilli(int64(n))
	}
	return time.Unix(int64(n), 0)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseCalendarDate reads a stored calendar date and returns it at midnight in loc.
// Unparsable and empty values yield nil.
func ParseCalendarDate(value any, loc *time.Location) *time.Time {
	t, ok, err := ParseFlexibleTimestamp(value, loc)
	if err != nil || !ok {
		return nil
	}
	d := LocalMidnight(t, loc)
	return &d
}

// FormatCalendarDate renders a date in storage layout
func FormatCalendarDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}
