package utils

import (
	"time"
)

const (
	TimeFormat = "2006-01-02 15:04:05"
	DateFormat = "2006-01-02"
)

// ParseDate parse date string
func ParseDate(dateStr string) (time.Time, error) {
	return time.Parse(DateFormat, dateStr)
}

// GetStartOfDay get start time of the day
func GetStartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// GetEndOfDay get end time of the day
func GetEndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, t.Location())
}

// ParseDateRange turns optional "from"/"to" query dates into an inclusive time window.
// Empty bounds stay zero.
func ParseDateRange(from, to string) (time.Time, time.Time, error) {
	var start, end time.Time
	if from != "" {
		t, err := ParseDate(from)
		if err != nil {
			return start, end, NewError(CodeInvalidParam, "from must be formatted as YYYY-MM-DD")
		}
		start = GetStartOfDay(t)
	}
	if to != "" {
		t, err := ParseDate(to)
		if err != nil {
			return start, end, NewError(CodeInvalidParam, "to must be formatted as YYYY-MM-DD")
		}
		end = GetEndOfDay(t)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, NewError(CodeInvalidParam, "to must not be before from")
	}
	return start, end, nil
}

// IsTimeInRange check if time is within specified range
func IsTimeInRange(t, start, end time.Time) bool {
	return (t.Equal(start) || t.After(start)) && (t.Equal(end) || t.Before(end))
}
