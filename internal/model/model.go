package model

import (
	"errors"
	"time"

	"textcal/internal/nlp"
)

// Error taxonomy shared by every pipeline stage. Stages wrap these with
// context (fmt.Errorf("...: %w", ErrX)); callers test with errors.Is.
var (
	// ErrEmptyInput aborts a run before any clause is produced.
	ErrEmptyInput = errors.New("empty input")

	// ErrNoAnchorEvent means a clause refers to "the previous event" but none
	// has been resolved yet.
	ErrNoAnchorEvent = errors.New("no previous event to anchor relative date")

	// ErrUnresolvedDate means a clause carries no usable date expression.
	ErrUnresolvedDate = errors.New("no date found")

	// ErrEmptyTitle is recovered by the assembler with a placeholder title.
	ErrEmptyTitle = errors.New("empty title")

	// ErrSerialization signals a broken invariant upstream and is always fatal.
	ErrSerialization = errors.New("serialization invariant violated")
)

// Clause is one candidate event description cut from the raw input.
type Clause struct {
	// Index is the clause position in the input, starting at zero.
	Index int

	// Text is the case-folded clause text. Folding never changes byte
	// length, so Start/End can be used against the raw input directly.
	Text  string
	Start int
	End   int

	// Entities are temporal spans detected in Text (offsets relative to Text).
	Entities []nlp.Entity

	// InheritTitle marks a clause that only carries a date and borrows the
	// title of the clause before it.
	InheritTitle bool
}

// ExpressionKind tags the variant carried by an Expression.
type ExpressionKind int

const (
	AbsoluteDate ExpressionKind = iota
	RelativeDate
	NamedWeekday
	TimeOfDay
	Implicit
	Duration
)

func (k ExpressionKind) String() string {
	switch k {
	case AbsoluteDate:
		return "absolute_date"
	case RelativeDate:
		return "relative_date"
	case NamedWeekday:
		return "named_weekday"
	case TimeOfDay:
		return "time_of_day"
	case Implicit:
		return "implicit"
	case Duration:
		return "duration"
	default:
		return "unknown"
	}
}

// Expression is a detected temporal span plus the fields needed to resolve it.
// Only the fields relevant to Kind are populated.
type Expression struct {
	Kind  ExpressionKind
	Text  string
	Start int
	End   int

	// Dates. Zero Year/Month means "not stated".
	Year  int
	Month time.Month
	Day   int

	// Offsets for RelativeDate and Implicit.
	OffsetDays   int
	OffsetMonths int

	// NamedWeekday.
	Weekday time.Weekday
	Next    bool

	// TimeOfDay. Fuzzy marks "morning"-style phrases that lose to exact times.
	Hour     int
	Minute   int
	Fuzzy    bool
	IsEnd    bool
	HasEnd   bool
	EndHour  int
	EndMin   int
	Location *time.Location

	// DefaultHour lets date words such as "tonight" suggest a time.
	DefaultHour int

	// Duration.
	Length time.Duration
}

// ExtractedEvent is one resolved event, ordered by appearance in the input.
type ExtractedEvent struct {
	Title             string    `json:"title"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	SourceClauseIndex int       `json:"source_clause_index"`
}

// SkippedClause reports a clause that produced no event.
type SkippedClause struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Reason error  `json:"-"`
}

// ReasonText is the human-readable reason, used for JSON and CLI output.
func (s SkippedClause) ReasonText() string {
	if s.Reason == nil {
		return ""
	}
	return s.Reason.Error()
}

// CalendarDocument is the terminal artifact of a run.
type CalendarDocument struct {
	ProductID string
	Version   string
	Events    []ExtractedEvent

	// Text is the serialized RFC 5545 document.
	Text string
}
