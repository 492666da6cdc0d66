package utils

import (
	"fmt"
	"time"
)

// DBDateTimeLayout is the layout of every timestamp column. Values are UTC.
const DBDateTimeLayout = "2006-01-02 15:04:05"

// Now returns the current time. Tests replace it to freeze time.
var Now = func() time.Time {
	return time.Now().UTC()
}

// NowDB returns the current UTC time formatted for the database.
func NowDB() string {
	return FormatDateTimeForDB(Now())
}

// FormatDateTimeForDB formats a time for timestamp columns.
func FormatDateTimeForDB(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DBDateTimeLayout)
}

// ParseDBDate parses timestamps retrieved from the database.
func ParseDBDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}
	if ts, err := time.ParseInLocation(DBDateTimeLayout, value, time.UTC); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unsupported db time format: %s", value)
}

// ParseDeviceTime parses the local wall-clock timestamps terminals send
// ("2006-01-02 15:04:05") and re-renders them in the database layout.
func ParseDeviceTime(value string) (string, error) {
	ts, err := time.ParseInLocation(DBDateTimeLayout, value, time.UTC)
	if err != nil {
		return "", fmt.Errorf("unsupported device time format: %s", value)
	}
	return ts.Format(DBDateTimeLayout), nil
}
