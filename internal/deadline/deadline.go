// Package deadline turns the free-text application deadlines published by
// the upstreams into an expiry timestamp.
package deadline

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Oslo is the zone deadlines are interpreted in. Falls back to a fixed
// +01:00 offset when tzdata is unavailable.
var Oslo = loadOslo()

func loadOslo() *time.Location {
	if loc, err := time.LoadLocation("Europe/Oslo"); err == nil {
		return loc
	}
	return time.FixedZone("CET", 60*60)
}

var months = map[string]time.Month{
	"januar": time.January, "februar": time.February, "mars": time.March,
	"april": time.April, "mai": time.May, "juni": time.June,
	"juli": time.July, "august": time.August, "september": time.September,
	"oktober": time.October, "november": time.November, "desember": time.December,
	// abbreviations seen on FINN cards
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"jun": time.June, "jul": time.July, "aug": time.August, "sep": time.September,
	"okt": time.October, "nov": time.November, "des": time.December,
}

var (
	dottedRe = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)
	longRe   = regexp.MustCompile(`^(\d{1,2})\.?\s+([a-zæøå]+)\.?\s+(\d{4})$`)
)

// Parse reads a deadline string and returns the calendar day it names.
// ok is false for free text such as "Snarest" or "Løpende".
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	// A zoned timestamp names its day in its own zone; converting first can
	// move 23:59Z onto the next Oslo day.
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Oslo), true
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, Oslo); err == nil {
			return t, true
		}
	}

	if m := dottedRe.FindStringSubmatch(s); m != nil {
		return date(m[3], m[2], m[1])
	}
	if m := longRe.FindStringSubmatch(strings.ToLower(s)); m != nil {
		month, ok := months[m[2]]
		if !ok {
			return time.Time{}, false
		}
		return date(m[3], strconv.Itoa(int(month)), m[1])
	}
	return time.Time{}, false
}

// ExpireAt returns the last instant of the deadline day, or nil when the
// deadline cannot be read as a date.
func ExpireAt(s string) *time.Time {
	t, ok := Parse(s)
	if !ok {
		return nil
	}
	y, m, d := t.In(Oslo).Date()
	end := time.Date(y, m, d, 23, 59, 59, 0, Oslo).UTC()
	return &end
}

func date(year, month, day string) (time.Time, bool) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, Oslo)
	// time.Date normalizes 31.02 into March; reject instead.
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
