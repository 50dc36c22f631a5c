package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
)

const (
	DateLayout    = "2006-01-02"
	ClockLayout   = "15:04"
	DisplayLayout = "03:04 PM"
)

var clockLayouts = []string{"3:04 PM", "03:04 PM", "3:04PM", "15:04", "15:04:05"}

// Slot is a bookable (date, start time) pair. Two slots are the same slot exactly when
// their Date and Clock strings are equal, whichever format the visitor typed.
type Slot struct {
	Date  string
	Clock string
}

// Parse normalizes a visitor supplied date and time. "10:00 AM", "10:00am" and "10:00"
// all name the same slot.
func Parse(date, clock string) (Slot, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return Slot{}, apperr.Validation("date must be YYYY-MM-DD")
	}
	c, err := parseClock(clock)
	if err != nil {
		return Slot{}, err
	}
	return Slot{Date: d.Format(DateLayout), Clock: c.Format(ClockLayout)}, nil
}

func parseClock(raw string) (time.Time, error) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			if t.Second() != 0 {
				break
			}
			return t, nil
		}
	}
	return time.Time{}, apperr.Validation(fmt.Sprintf("time %q must look like 10:00 AM or 10:00", raw))
}

// Start returns the slot's start instant in loc.
func (s Slot) Start(loc *time.Location) time.Time {
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, s.Date+" "+s.Clock, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Display renders the clock the way visitors enter it, e.g. "10:00 AM".
func (s Slot) Display() string {
	t, err := time.Parse(ClockLayout, s.Clock)
	if err != nil {
		return s.Clock
	}
	return t.Format(DisplayLayout)
}

func (s Slot) String() string { return s.Date + " " + s.Display() }

// Policy decides which slots may be booked.
type Policy struct {
	Location *time.Location
	MinLead  time.Duration
	DayStart time.Duration
	DayEnd   time.Duration
	Step     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Location: time.UTC,
		MinLead:  time.Hour,
		DayStart: 9 * time.Hour,
		DayEnd:   17 * time.Hour,
		Step:     30 * time.Minute,
	}
}

// Check rejects slots that start too soon or fall outside the daily grid.
func (p Policy) Check(s Slot, now time.Time) error {
	start := s.Start(p.location())
	if start.IsZero() {
		return apperr.Validation("invalid slot")
	}
	if !start.After(now.Add(p.MinLead)) {
		return apperr.Validation("slot must be in the future")
	}
	offset := time.Duration(start.Hour())*time.Hour + time.Duration(start.Minute())*time.Minute
	if offset < p.DayStart || offset+p.Step > p.DayEnd {
		return apperr.Validation("slot is outside consultation hours")
	}
	if p.Step > 0 && (offset-p.DayStart)%p.Step != 0 {
		return apperr.Validation(fmt.Sprintf("slot must start on a %s boundary", p.Step))
	}
	return nil
}

// Open lists the slots of date that are still bookable, given the occupied ones.
func (p Policy) Open(date string, occupied []Slot, now time.Time) ([]Slot, error) {
	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), p.location())
	if err != nil {
		return nil, apperr.Validation("date must be YYYY-MM-DD")
	}
	busy := make([]Interval, 0, len(occupied))
	for _, s := range occupied {
		start := s.Start(p.location())
		busy = append(busy, Interval{Start: start, End: start.Add(p.Step)})
	}
	grid := wallClockGrid(day, p.DayStart, p.DayEnd, p.Step)
	starts := freeStarts(grid, p.Step, busy, now.Add(p.MinLead+time.Nanosecond))
	out := make([]Slot, 0, len(starts))
	for _, t := range starts {
		out = append(out, Slot{Date: t.Format(DateLayout), Clock: t.Format(ClockLayout)})
	}
	return out, nil
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}
