package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "textcal/internal/log"
	"textcal/internal/model"
)

const (
	// Version is the only iCalendar version emitted.
	Version = "2.0"

	// DefaultProductID identifies documents written by textcal.
	DefaultProductID = "-//textcal//Natural Language Calendar//EN"

	// DefaultUIDDomain is appended to generated UIDs.
	DefaultUIDDomain = "event.org"
)

// Serializer renders extracted events as an RFC 5545 document.
type Serializer struct {
	productID string
	now       func() time.Time
	newUID    func() string
}

// Option customizes a Serializer.
type Option func(*Serializer)

// WithClock replaces the DTSTAMP/CREATED clock.
func WithClock(now func() time.Time) Option {
	return func(s *Serializer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithUIDGenerator replaces the UID generator.
func WithUIDGenerator(gen func() string) Option {
	return func(s *Serializer) {
		if gen != nil {
			s.newUID = gen
		}
	}
}

// NewSerializer builds a Serializer. Empty productID or uidDomain fall back
// to the package defaults.
func NewSerializer(productID, uidDomain string, opts ...Option) *Serializer {
	if productID == "" {
		productID = DefaultProductID
	}
	if uidDomain == "" {
		uidDomain = DefaultUIDDomain
	}
	s := &Serializer{
		productID: productID,
		now:       time.Now,
		newUID:    func() string { return uuid.NewString() + "@" + uidDomain },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serialize renders events in the given order. It fails with
// model.ErrSerialization when an event breaks the ExtractedEvent invariants.
func (s *Serializer) Serialize(events []model.ExtractedEvent) (model.CalendarDocument, error) {
	for i, ev := range events {
		if err := checkEvent(ev); err != nil {
			return model.CalendarDocument{}, fmt.Errorf("ics: event %d: %w", i, err)
		}
	}

	cal := ical.NewCalendarFor("textcal")
	cal.SetProductId(s.productID)

	stamp := s.now().UTC().Truncate(time.Second)
	for _, ev := range events {
		ve := cal.AddEvent(s.newUID())
		ve.SetDtStampTime(stamp)
		ve.SetCreatedTime(stamp)
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
		ve.SetSummary(ev.Title)
	}

	var b strings.Builder
	if err := cal.SerializeTo(&b, ical.WithNewLineWindows); err != nil {
		return model.CalendarDocument{}, fmt.Errorf("ics: %w: %v", model.ErrSerialization, err)
	}

	appLog.Debug("ics: document serialized", "events", len(events), "bytes", b.Len())
	return model.CalendarDocument{
		ProductID: s.productID,
		Version:   Version,
		Events:    append([]model.ExtractedEvent(nil), events...),
		Text:      b.String(),
	}, nil
}

func checkEvent(ev model.ExtractedEvent) error {
	switch {
	case strings.TrimSpace(ev.Title) == "":
		return fmt.Errorf("%w: empty title", model.ErrSerialization)
	case ev.Start.IsZero() || ev.End.IsZero():
		return fmt.Errorf("%w: missing start or end", model.ErrSerialization)
	case !ev.End.After(ev.Start):
		return fmt.Errorf("%w: end %s is not after start %s", model.ErrSerialization,
			ev.End.Format(time.RFC3339), ev.Start.Format(time.RFC3339))
	}
	return nil
}
