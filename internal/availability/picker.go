package availability

import (
	"strings"
	"time"
)

// Selection is the calendar step's input.
type Selection struct {
	Date        string `json:"date"`
	Slot        Slot   `json:"slot"`
	Issue       string `json:"issue"`
	Description string `json:"description,omitempty"`
}

// Picker validates a selection against a fetched map. Now decides which
// dates are in the past; zero means the wall clock.
type Picker struct {
	Map Map
	Now time.Time
}

// Confirm checks that a selectable date and an offered slot are chosen. The
// issue text is checked by the draft, which owns that field.
func (p Picker) Confirm(sel Selection) (date, label string, err error) {
	date = strings.TrimSpace(sel.Date)
	if date == "" {
		return "", "", ErrNoDate
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	if !Selectable(date, now) {
		return "", "", ErrDateUnavailable
	}
	if strings.TrimSpace(sel.Slot.Start) == "" {
		return "", "", ErrNoSlot
	}
	label = sel.Slot.Label()
	if p.Map != nil && !Offers(p.Map, date, label) {
		return "", "", ErrUnknownSlot
	}
	return date, label, nil
}
