package availability

import "time"

// Interval is a half-open [Start, End) span of occupied time.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) overlaps(start, end time.Time) bool {
	return start.Before(iv.End) && iv.Start.Before(end)
}

// wallClockGrid returns the starts of day's [from, to) clock offsets in steps of
// length. Offsets are wall-clock times, so a DST change inside the day does not shift the
// grid; times that do not exist on that day are skipped.
func wallClockGrid(day time.Time, from, to, length time.Duration) []time.Time {
	if length <= 0 || to <= from {
		return nil
	}
	y, m, d := day.Date()
	var out []time.Time
	for off := from; off+length <= to; off += length {
		h, mn := int(off/time.Hour), int(off%time.Hour/time.Minute)
		t := time.Date(y, m, d, h, mn, 0, 0, day.Location())
		if t.Hour() != h || t.Minute() != mn {
			continue
		}
		out = append(out, t)
	}
	return out
}

// freeStarts returns the candidates whose whole step is free of busy intervals and which
// are not before notBefore.
func freeStarts(candidates []time.Time, length time.Duration, busy []Interval, notBefore time.Time) []time.Time {
	var out []time.Time
	for _, t := range candidates {
		if t.Before(notBefore) {
			continue
		}
		free := true
		for _, b := range busy {
			if b.overlaps(t, t.Add(length)) {
				free = false
				break
			}
		}
		if free {
			out = append(out, t)
		}
	}
	return out
}
