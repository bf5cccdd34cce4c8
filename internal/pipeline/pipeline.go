// Package pipeline turns free text into a calendar document.
//
// A run segments the input into clauses, resolves each clause to a start,
// extracts a title and an end, and serializes the surviving events. Clauses
// that cannot be placed on a date are reported as skipped; they never abort
// the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"textcal/internal/duration"
	"textcal/internal/ics"
	appLog "textcal/internal/log"
	"textcal/internal/model"
	"textcal/internal/nlp"
	"textcal/internal/segment"
	"textcal/internal/temporal"
	"textcal/internal/title"
)

// DefaultPlaceholder titles events whose clause has no words left.
const DefaultPlaceholder = "Untitled Event"

// Options configures a Generator. Zero values pick the defaults of each stage.
type Options struct {
	Engine nlp.Engine
	Policy segment.Policy

	Location *time.Location

	// DefaultHour and DefaultMinute start events that name no time. Both
	// zero means 09:00.
	DefaultHour   int
	DefaultMinute int

	DefaultDuration time.Duration
	Placeholder     string

	Serializer *ics.Serializer
}

// Generator holds read-only stages and is safe for concurrent use.
type Generator struct {
	segmenter   *segment.Segmenter
	resolver    *temporal.Resolver
	titles      *title.Extractor
	durations   *duration.Assigner
	serializer  *ics.Serializer
	placeholder string

	defaultHour   int
	defaultMinute int
}

// New wires the stages. A nil engine uses the rule engine.
func New(opt Options) *Generator { return newGenerator(opt, false) }

// newGenerator keeps a 00:00 default time when exactClock is set.
func newGenerator(opt Options, exactClock bool) *Generator {
	engine := opt.Engine
	if engine == nil {
		engine = nlp.NewRules()
	}
	ser := opt.Serializer
	if ser == nil {
		ser = ics.NewSerializer("", "")
	}
	placeholder := strings.TrimSpace(opt.Placeholder)
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	hour, minute := opt.DefaultHour, opt.DefaultMinute
	if hour == 0 && minute == 0 && !exactClock {
		hour = 9
	}

	return &Generator{
		segmenter: segment.New(engine, opt.Policy),
		resolver: temporal.NewResolver(temporal.Options{
			Location:      opt.Location,
			DefaultHour:   hour,
			DefaultMinute: minute,
		}),
		titles:        title.New(),
		durations:     duration.New(opt.DefaultDuration),
		serializer:    ser,
		placeholder:   placeholder,
		defaultHour:   hour,
		defaultMinute: minute,
	}
}

// Location is the zone used for clauses that do not name one.
func (g *Generator) Location() *time.Location { return g.resolver.Location() }

// WithLocation returns a copy of g that resolves clauses in loc.
func (g *Generator) WithLocation(loc *time.Location) *Generator {
	cp := *g
	cp.resolver = temporal.NewResolver(temporal.Options{
		Location:      loc,
		DefaultHour:   g.defaultHour,
		DefaultMinute: g.defaultMinute,
	})
	return &cp
}

// Result is the outcome of one run.
type Result struct {
	Document model.CalendarDocument
	Skipped  []model.SkippedClause
	Warnings []string
}

// Generate runs the whole pipeline over text. now anchors relative dates.
//
// model.ErrEmptyInput and model.ErrSerialization are returned as errors.
// Clauses without a usable date end up in Result.Skipped.
func (g *Generator) Generate(ctx context.Context, text string, now time.Time) (Result, error) {
	var out Result

	clauses, err := g.segmenter.Split(ctx, text)
	if err != nil {
		return out, err
	}

	var (
		events    []model.ExtractedEvent
		prev      *time.Time
		lastTitle string
	)
	for _, c := range clauses {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		res, err := g.resolver.Resolve(c, now, prev)
		if err != nil {
			if errors.Is(err, model.ErrNoAnchorEvent) || errors.Is(err, model.ErrUnresolvedDate) {
				appLog.Warn("pipeline: clause skipped", "clause", c.Index, "text", c.Text, "reason", err.Error())
				out.Skipped = append(out.Skipped, model.SkippedClause{
					Index:  c.Index,
					Text:   c.Text,
					Start:  c.Start,
					End:    c.End,
					Reason: err,
				})
				continue
			}
			return out, err
		}

		name, warn, err := g.titleFor(c, res.Expressions, lastTitle)
		if err != nil {
			return out, err
		}
		if warn != "" {
			out.Warnings = append(out.Warnings, warn)
		}

		end, clamped := g.durations.Assign(res.Start, res.Expressions)
		if clamped {
			msg := fmt.Sprintf("clause %d: end time is not after start; using default length %s", c.Index, g.durations.Default())
			appLog.Warn("pipeline: end clamped", "clause", c.Index, "start", res.Start.Format(time.RFC3339))
			out.Warnings = append(out.Warnings, msg)
		}

		events = append(events, model.ExtractedEvent{
			Title:             name,
			Start:             res.Start,
			End:               end,
			SourceClauseIndex: c.Index,
		})
		start := res.Start
		prev = &start
		lastTitle = name
	}

	if len(events) == 0 {
		out.Warnings = append(out.Warnings, "no events found")
	}

	doc, err := g.serializer.Serialize(events)
	if err != nil {
		return out, err
	}
	out.Document = doc

	appLog.Info("pipeline: calendar generated",
		"clauses", len(clauses),
		"events", len(events),
		"skipped", len(out.Skipped),
	)
	return out, nil
}

// titleFor returns the event title and, when a placeholder had to be used,
// a warning for the result.
func (g *Generator) titleFor(c model.Clause, exprs []model.Expression, lastTitle string) (string, string, error) {
	if c.InheritTitle && lastTitle != "" {
		return lastTitle, "", nil
	}

	name, err := g.titles.Extract(c, exprs)
	if err == nil {
		return name, "", nil
	}
	if !errors.Is(err, model.ErrEmptyTitle) {
		return "", "", err
	}
	appLog.Warn("pipeline: empty title", "clause", c.Index, "placeholder", g.placeholder)
	return g.placeholder, fmt.Sprintf("clause %d: no title found; using %q", c.Index, g.placeholder), nil
}
