// Package availability turns a doctor's availability map into the dates and
// slot labels a patient can pick from.
package availability

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"
)

// DateLayout is the calendar date format used by the hospital API.
const DateLayout = "2006-01-02"

// Slot is a time range offered on a given date.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Day groups the two slot families the API returns for a date.
type Day struct {
	Consultations []Slot `json:"consultations"`
	Appointments  []Slot `json:"appointments"`
}

// Map is keyed by YYYY-MM-DD.
type Map map[string]Day

var (
	ErrNoDate      = errors.New("availability: date not selected")
	ErrNoSlot      = errors.New("availability: slot not selected")
	ErrUnknownSlot = errors.New("availability: slot not offered on date")
	// ErrDateUnavailable covers past dates, Sundays and malformed dates.
	ErrDateUnavailable = errors.New("availability: date cannot be booked")
)

var clockRe = regexp.MustCompile(`(?i)^\s*(\d{1,2}:\d{2})\s*([ap]\.?m\.?)?`)

// Clock trims trailing noise from a time string: "10:00 AM148" becomes "10:00 AM".
func Clock(s string) string {
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return strings.TrimSpace(s)
	}
	if m[2] == "" {
		return m[1]
	}
	return m[1] + " " + strings.ToUpper(strings.ReplaceAll(m[2], ".", ""))
}

// Label renders the slot as "<start> - <end>".
func (s Slot) Label() string {
	return Clock(s.Start) + " - " + Clock(s.End)
}

// minutes returns minutes after midnight for sorting, or -1 when unparseable.
func minutes(clock string) int {
	for _, layout := range []string{"3:04 PM", "15:04"} {
		if t, err := time.Parse(layout, clock); err == nil {
			return t.Hour()*60 + t.Minute()
		}
	}
	return -1
}

// Selectable reports whether date is today or later relative to now and
// not a Sunday. Malformed dates are never selectable.
func Selectable(date string, now time.Time) bool {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return false
	}
	return date >= now.Format(DateLayout) && d.Weekday() != time.Sunday
}

// Dates returns the selectable dates in ascending order.
func Dates(m Map, now time.Time) []string {
	out := make([]string, 0, len(m))
	for key := range m {
		if Selectable(key, now) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// SlotsFor merges consultation and appointment slots for date, dropping
// duplicate labels and ordering by start time.
func SlotsFor(m Map, date string) []Slot {
	day, ok := m[date]
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var out []Slot
	for _, group := range [][]Slot{day.Consultations, day.Appointments} {
		for _, s := range group {
			label := s.Label()
			if seen[label] {
				continue
			}
			seen[label] = true
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return minutes(Clock(out[i].Start)) < minutes(Clock(out[j].Start))
	})
	return out
}

// Offers reports whether label is among the slots for date.
func Offers(m Map, date, label string) bool {
	for _, s := range SlotsFor(m, date) {
		if s.Label() == label {
			return true
		}
	}
	return false
}
