// Package temporal detects date and time expressions in a clause and
// resolves them to concrete date-times.
//
// Resolution order for the date part:
//
//  1. absolute dates ("may 10th", "2024-06-19")
//  2. dates relative to now ("tomorrow", "next monday")
//  3. dates relative to the previous event ("the day after")
//  4. a bare day of month ("the 15th")
//
// The time of day is resolved independently and merged onto the date.
package temporal

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "textcal/internal/log"
	"textcal/internal/model"
)

// Options configures a Resolver.
type Options struct {
	// Location is used unless a clause names its own zone. Nil means UTC.
	Location *time.Location

	// DefaultHour and DefaultMinute apply when a clause has no time of day.
	DefaultHour   int
	DefaultMinute int
}

// Resolver turns clauses into start times. It holds no per-run state and is
// safe for concurrent use.
type Resolver struct {
	loc           *time.Location
	defaultHour   int
	defaultMinute int
}

// NewResolver builds a Resolver. Out-of-range default times fall back to 09:00.
func NewResolver(opt Options) *Resolver {
	r := &Resolver{loc: opt.Location, defaultHour: opt.DefaultHour, defaultMinute: opt.DefaultMinute}
	if r.loc == nil {
		r.loc = time.UTC
	}
	if !validClock(r.defaultHour, r.defaultMinute) {
		r.defaultHour, r.defaultMinute = 9, 0
	}
	return r
}

// Location is the zone used for clauses that do not name one.
func (r *Resolver) Location() *time.Location { return r.loc }

// Resolution is the outcome of resolving one clause.
type Resolution struct {
	// Start is the resolved start in the clause's location.
	Start time.Time

	// Expressions are every expression detected in the clause, including
	// durations and end times for the duration assigner and the title
	// extractor.
	Expressions []model.Expression

	// Date is the expression that decided the calendar day.
	Date model.Expression
}

// Resolve resolves a clause against now and the previous event's start.
// prev is nil for the first event of a run.
func (r *Resolver) Resolve(c model.Clause, now time.Time, prev *time.Time) (Resolution, error) {
	exprs := Detect(c)
	res := Resolution{Expressions: exprs}

	loc := r.loc
	if t, ok := pickTime(exprs); ok && t.Location != nil {
		loc = t.Location
	}

	dateExpr, ok := pickDate(exprs)
	if !ok {
		return res, fmt.Errorf("temporal: clause %d: %w", c.Index, model.ErrUnresolvedDate)
	}
	res.Date = dateExpr

	day, err := r.resolveDate(dateExpr, now.In(loc), prev, loc)
	if err != nil {
		return res, fmt.Errorf("temporal: clause %d %q: %w", c.Index, dateExpr.Text, err)
	}

	hour, minute := r.defaultHour, r.defaultMinute
	if t, ok := pickTime(exprs); ok {
		hour, minute = t.Hour, t.Minute
	} else if dateExpr.DefaultHour > 0 {
		hour, minute = dateExpr.DefaultHour, 0
	}

	res.Start = time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
	appLog.Debug("temporal: clause resolved",
		"clause", c.Index,
		"date", dateExpr.Text,
		"kind", dateExpr.Kind.String(),
		"start", res.Start.Format(time.RFC3339),
	)
	return res, nil
}

// pickDate applies the precedence order. Within one rank the first
// expression in the clause wins.
func pickDate(exprs []model.Expression) (model.Expression, bool) {
	ranks := []func(model.Expression) bool{
		func(e model.Expression) bool { return e.Kind == model.AbsoluteDate && e.Month != 0 },
		func(e model.Expression) bool { return e.Kind == model.RelativeDate || e.Kind == model.NamedWeekday },
		func(e model.Expression) bool { return e.Kind == model.Implicit },
		func(e model.Expression) bool { return e.Kind == model.AbsoluteDate && e.Month == 0 },
	}
	for _, match := range ranks {
		for _, e := range exprs {
			if match(e) {
				return e, true
			}
		}
	}
	return model.Expression{}, false
}

// pickTime returns the start time of day: an exact time beats a fuzzy one
// and end-only times never start an event.
func pickTime(exprs []model.Expression) (model.Expression, bool) {
	var fuzzy *model.Expression
	for i, e := range exprs {
		if e.Kind != model.TimeOfDay || e.IsEnd {
			continue
		}
		if !e.Fuzzy {
			return e, true
		}
		if fuzzy == nil {
			fuzzy = &exprs[i]
		}
	}
	if fuzzy != nil {
		return *fuzzy, true
	}
	return model.Expression{}, false
}

func (r *Resolver) resolveDate(e model.Expression, now time.Time, prev *time.Time, loc *time.Location) (time.Time, error) {
	today := midnight(now, loc)

	switch e.Kind {
	case model.AbsoluteDate:
		if e.Month == 0 {
			return bareDay(e.Day, today, prev, loc)
		}
		return absoluteDate(e, today, loc)

	case model.RelativeDate:
		d := today.AddDate(0, 0, e.OffsetDays)
		if e.OffsetMonths != 0 {
			d = addMonthsClamped(d, e.OffsetMonths)
		}
		return d, nil

	case model.NamedWeekday:
		return nextWeekday(today, e.Weekday, e.Next)

	case model.Implicit:
		if prev == nil {
			return time.Time{}, model.ErrNoAnchorEvent
		}
		return midnight(*prev, loc).AddDate(0, 0, e.OffsetDays), nil
	}
	return time.Time{}, model.ErrUnresolvedDate
}

// absoluteDate fills a missing year with the anchor year, moving to the
// next year when the date has already passed.
func absoluteDate(e model.Expression, today time.Time, loc *time.Location) (time.Time, error) {
	if e.Year != 0 {
		d, ok := calendarDate(e.Year, e.Month, e.Day, loc)
		if !ok {
			return time.Time{}, fmt.Errorf("%d-%02d-%02d is not a calendar date: %w", e.Year, e.Month, e.Day, model.ErrUnresolvedDate)
		}
		return d, nil
	}

	year := today.Year()
	d, ok := calendarDate(year, e.Month, e.Day, loc)
	if ok && !d.Before(today) {
		return d, nil
	}
	// Feb 29 may need a few years to come round again.
	for y := year + 1; y <= year+8; y++ {
		if d, ok := calendarDate(y, e.Month, e.Day, loc); ok {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("%s %d is not a calendar date: %w", e.Month, e.Day, model.ErrUnresolvedDate)
}

// bareDay resolves "the 15th". It follows the previous event's month, or the
// current month, and moves forward while the day has passed or does not
// exist in that month. With a previous event, "passed" means before that
// event, so a list of dates never runs backwards.
func bareDay(day int, today time.Time, prev *time.Time, loc *time.Location) (time.Time, error) {
	base := today
	if prev != nil {
		base = midnight(*prev, loc)
	}
	for i := 0; i <= 12; i++ {
		first := time.Date(base.Year(), base.Month()+time.Month(i), 1, 0, 0, 0, 0, loc)
		d, ok := calendarDate(first.Year(), first.Month(), day, loc)
		if ok && !d.Before(base) {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("day %d is not a day of any month: %w", day, model.ErrUnresolvedDate)
}

var rruleWeekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// nextWeekday finds the weekday on or after today, or strictly after it for
// "next monday".
func nextWeekday(today time.Time, wd time.Weekday, strictlyAfter bool) (time.Time, error) {
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{rruleWeekdays[wd]},
		Dtstart:   today,
		Count:     2,
	})
	if err != nil {
		return time.Time{}, err
	}
	d := rule.After(today, !strictlyAfter)
	if d.IsZero() {
		return time.Time{}, fmt.Errorf("no %s after %s: %w", wd, today.Format("2006-01-02"), model.ErrUnresolvedDate)
	}
	return d, nil
}

func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// calendarDate rejects dates that time.Date would normalise, like Feb 30.
func calendarDate(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, loc)
	return d, d.Month() == month && d.Day() == day
}

// addMonthsClamped keeps the day within the target month, so Jan 31 plus one
// month is Feb 28 or 29.
func addMonthsClamped(d time.Time, months int) time.Time {
	first := time.Date(d.Year(), d.Month()+time.Month(months), 1, 0, 0, 0, 0, d.Location())
	last := first.AddDate(0, 1, -1).Day()
	day := d.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, d.Location())
}
