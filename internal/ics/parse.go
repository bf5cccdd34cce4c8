package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "textcal/internal/log"
)

// ParsedEvent is a VEVENT read back from a document.
type ParsedEvent struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
	Stamp   time.Time
	AllDay  bool
}

// ParseDocument reads every VEVENT of an iCalendar document. Events that
// cannot be read are logged and skipped.
func ParseDocument(body []byte) ([]ParsedEvent, error) {
	cal, err := parseCalendar(body)
	if err != nil {
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			appLog.Error("ics: vevent parse failed", perr, "uid", comp.Id())
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics: parse completed", "event_count", len(events))
	return events, nil
}

func parseCalendar(body []byte) (*ical.Calendar, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("ics: empty document")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse: %w", err)
	}
	return cal, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	// A DTSTART without a time part is an all-day event from another tool.
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
		if !strings.Contains(p.Value, "T") {
			out.AllDay = true
		}
	}

	var err error
	if out.AllDay {
		out.Start, err = ve.GetAllDayStartAt()
	} else {
		out.Start, err = ve.GetStartAt()
	}
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}

	if out.AllDay {
		out.End, err = ve.GetAllDayEndAt()
	} else {
		out.End, err = ve.GetEndAt()
	}
	if err != nil {
		return out, fmt.Errorf("DTEND: %w", err)
	}

	if stamp, serr := ve.GetDtStampTime(); serr == nil {
		out.Stamp = stamp
	}
	return out, nil
}
