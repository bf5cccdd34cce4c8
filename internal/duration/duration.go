// Package duration assigns an end time to a resolved start.
package duration

import (
	"time"

	"textcal/internal/model"
)

// DefaultLength is used when nothing in the clause says how long an event is.
const DefaultLength = time.Hour

// overnight is the longest event an end time on the next day may produce.
const overnight = 12 * time.Hour

// Assigner is stateless and safe for concurrent use.
type Assigner struct {
	def time.Duration
}

// New returns an Assigner. A non-positive default falls back to one hour.
func New(def time.Duration) *Assigner {
	if def <= 0 {
		def = DefaultLength
	}
	return &Assigner{def: def}
}

// Default is the length applied when the clause has no end information.
func (a *Assigner) Default() time.Duration { return a.def }

// Assign computes the end of an event starting at start. An explicit end
// time ("until 3 pm", "2-4 pm") wins over a duration ("for 2 hours"). An end
// clock before the start moves to the next day when that gives an overnight
// event ("10 pm until 1 am"). Otherwise, when the computed end is not after
// start, the default length is used instead and clamped is true.
func (a *Assigner) Assign(start time.Time, exprs []model.Expression) (end time.Time, clamped bool) {
	end, ok := explicitEnd(start, exprs)
	if !ok {
		return start.Add(a.def), false
	}
	if end.Before(start) {
		if next := end.AddDate(0, 0, 1); next.Sub(start) <= overnight {
			return next, false
		}
	}
	if !end.After(start) {
		return start.Add(a.def), true
	}
	return end, false
}

func explicitEnd(start time.Time, exprs []model.Expression) (time.Time, bool) {
	for _, e := range exprs {
		if e.Kind != model.TimeOfDay {
			continue
		}
		switch {
		case e.HasEnd:
			return onDay(start, e.EndHour, e.EndMin), true
		case e.IsEnd:
			return onDay(start, e.Hour, e.Minute), true
		}
	}
	for _, e := range exprs {
		if e.Kind == model.Duration {
			return start.Add(e.Length), true
		}
	}
	return time.Time{}, false
}

// onDay places hour:minute on start's calendar day. Midnight as an end time
// means the end of that day.
func onDay(start time.Time, hour, minute int) time.Time {
	t := time.Date(start.Year(), start.Month(), start.Day(), hour, minute, 0, 0, start.Location())
	if hour == 0 && minute == 0 {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
