package reference

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLen is the length of an ISO 8601 calendar date, YYYY-MM-DD.
const DateLen = len("2006-01-02")

// ErrInvalidDate is returned when a hosting reports something that is not a
// calendar date.
var ErrInvalidDate = errors.New("invalid ISO date")

// DateFromTimestamp takes the date part of an ISO 8601 timestamp such as
// "2024-01-02T10:11:12+01:00" as the hosting wrote it, without converting
// time zones.
func DateFromTimestamp(ts string) (string, error) {
	ts = strings.TrimSpace(ts)
	if len(ts) < DateLen {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, ts)
	}
	return ValidateDate(ts[:DateLen])
}

// ValidateDate checks that s is exactly YYYY-MM-DD.
func ValidateDate(s string) (string, error) {
	if len(s) != DateLen {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	if _, err := time.Parse(time.DateOnly, s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return s, nil
}

// textLayouts are the human-readable timestamp formats Git web front ends print.
var textLayouts = []string{
	time.RFC3339,
	"Mon Jan _2 15:04:05 2006 -0700",  // Gitiles, git's default date format
	"Mon Jan _2 15:04:05 2006",        // Gitiles without zone
	"Mon, _2 Jan 2006 15:04:05 -0700", // GitWeb, RFC 2822
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05 -0700", // cgit, git's iso date format
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"Mon, 02 Jan 2006", // Gogs tooltip, cut to the date
	"Jan _2, 2006",
}

// DateFromText parses a textual timestamp and returns its UTC calendar date.
func DateFromText(s string) (string, error) {
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range textLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return "", fmt.Errorf("%w: cannot parse %q", ErrInvalidDate, s)
}

// DateOf returns the UTC calendar date of t.
func DateOf(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
