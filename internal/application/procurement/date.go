package procurement

import (
	"strings"
	"time"
)

// dateLayout is the stored form of order_date
const dateLayout = "2006-01-02"

var acceptedLayouts = []string{
	dateLayout,
	time.RFC3339,
	"2006/01/02",
	"2006-01-02 15:04:05",
}

// BusinessDate is a calendar date in both of its stored forms.
// Date and Timestamp always come from the same parse.
type BusinessDate struct {
	Date      string
	Timestamp time.Time
}

// NormalizeDate parses raw and returns the date with its midnight-UTC timestamp.
// Timestamps keep the calendar day of their own offset. Empty or unparseable input falls back to now's day.
func NormalizeDate(raw string, now time.Time) BusinessDate {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		for _, layout := range acceptedLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return midnight(t)
			}
		}
	}
	return midnight(now.UTC())
}

func midnight(t time.Time) BusinessDate {
	ts := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return BusinessDate{Date: ts.Format(dateLayout), Timestamp: ts}
}
