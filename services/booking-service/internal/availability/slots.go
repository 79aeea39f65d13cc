package availability

import "time"

const (
	OpeningHour = 8
	ClosingHour = 20
	SlotLength  = time.Hour
)

type Interval struct {
	Start time.Time
	End   time.Time
}

type Slot struct {
	Start     time.Time
	Available bool
}

// DaySlots returns one slot per working hour of the UTC day containing day.
// A slot is unavailable when it overlaps a booked slot or has already started.
func DaySlots(day time.Time, booked []time.Time, now time.Time) []Slot {
	d := day.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), OpeningHour, 0, 0, 0, time.UTC)
	end := time.Date(d.Year(), d.Month(), d.Day(), ClosingHour, 0, 0, 0, time.UTC)

	busy := make([]Interval, 0, len(booked))
	for _, b := range booked {
		busy = append(busy, Interval{Start: b, End: b.Add(SlotLength)})
	}

	var slots []Slot
	for t := start; !t.Add(SlotLength).After(end); t = t.Add(SlotLength) {
		slots = append(slots, Slot{
			Start:     t,
			Available: !t.Before(now) && !overlapsAny(t, t.Add(SlotLength), busy),
		})
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
