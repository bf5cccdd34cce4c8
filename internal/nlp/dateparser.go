package nlp

import (
	"context"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"

	appLog "textcal/internal/log"
)

// searchFunc finds date phrases in text.
type searchFunc func(text string) ([]dps.SearchResult, error)

// DateparserRecognizer adds the date phrases go-dateparser finds to the rule
// engine's entities. Phrases that overlap a rule entity are left to the
// rules; the rest are labelled DATE, or TIME when the parse is only sure of
// a clock time. A failed search falls back to the rules alone.
type DateparserRecognizer struct {
	rules  *Rules
	search searchFunc
}

// NewDateparserRecognizer returns a recognizer searching English text.
func NewDateparserRecognizer() *DateparserRecognizer {
	parser := &dps.Parser{}
	cfg := dps.Configuration{
		Languages:       []string{"en"},
		DefaultTimezone: time.UTC,
	}
	return &DateparserRecognizer{
		rules: NewRules(),
		search: func(text string) ([]dps.SearchResult, error) {
			_, found, err := parser.Search(cfg.Clone(), text)
			return found, err
		},
	}
}

func (d *DateparserRecognizer) Tokenize(text string) []Token { return d.rules.Tokenize(text) }

func (d *DateparserRecognizer) Tag(tokens []Token) []Token { return d.rules.Tag(tokens) }

// DetectEntities merges rule entities with the phrases the parser found.
func (d *DateparserRecognizer) DetectEntities(ctx context.Context, text string) ([]Entity, error) {
	ents, err := d.rules.DetectEntities(ctx, text)
	if err != nil {
		return nil, err
	}

	found, err := d.search(text)
	if err != nil {
		appLog.Error("nlp: dateparser search failed; using rules", err)
		return ents, nil
	}

	cands := append([]Entity(nil), ents...)
	cursor := 0
	for _, r := range found {
		phrase := strings.TrimSpace(r.Text)
		if phrase == "" {
			continue
		}
		idx := strings.Index(text[cursor:], phrase)
		if idx < 0 {
			continue
		}
		start := cursor + idx
		end := start + len(phrase)
		cursor = end
		if overlapsAny(ents, start, end) {
			continue
		}
		label := LabelDate
		if r.Date.Period.IsTime() {
			label = LabelTime
		}
		cands = append(cands, Entity{Label: label, Text: phrase, Start: start, End: end})
	}
	appLog.Debug("nlp: dateparser entities", "found", len(found), "added", len(cands)-len(ents))
	return resolveOverlaps(cands), nil
}

func overlapsAny(ents []Entity, start, end int) bool {
	for _, e := range ents {
		if e.Overlaps(start, end) {
			return true
		}
	}
	return false
}
