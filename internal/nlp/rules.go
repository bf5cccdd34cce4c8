package nlp

import (
	"context"
	"regexp"
	"strings"
)

// Shared pattern fragments. Input is expected to be case-folded.
const (
	monthPattern    = `(?:january|february|march|april|may|june|july|august|september|october|november|december|sept|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)\.?`
	weekdayPattern  = `(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|tues|thurs)`
	ordinalPattern  = `\d{1,2}(?:st|nd|rd|th)?`
	countPattern    = `(?:\d+|a|an|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)`
	meridiemPattern = `(?:a\.m\.|p\.m\.|a\.m|p\.m|am\b|pm\b)`
	zonePattern     = `(?:\s*(?:utc|gmt|[+-]\d{2}:?\d{2}|est|edt|cst|cdt|mst|mdt|pst|pdt|cet|cest|bst)\b)?`
)

type rule struct {
	label Label
	re    *regexp.Regexp
}

var dateTimeRules = []rule{
	// Anchored on the previous event.
	{LabelDate, regexp.MustCompile(`\b(?:the\s+)?day\s+after\s+tomorrow\b`)},
	{LabelDate, regexp.MustCompile(`\b(?:the\s+)?(?:day|week)\s+(?:after|before)(?:\s+that)?\b`)},
	{LabelDate, regexp.MustCompile(`\bthe\s+(?:following|next)\s+(?:day|week)\b`)},
	{LabelDate, regexp.MustCompile(`\b` + countPattern + `\s+(?:days?|weeks?)\s+(?:later|afterwards|after(?:\s+that)?)\b`)},

	// Relative to now.
	{LabelDate, regexp.MustCompile(`\b(?:today|tonight|tomorrow|tmrw|yesterday)\b`)},
	{LabelDate, regexp.MustCompile(`\bin\s+` + countPattern + `\s+(?:days?|weeks?|months?)\b`)},
	{LabelDate, regexp.MustCompile(`\b(?:next|this|coming)\s+(?:week|month|year)\b`)},
	{LabelDate, regexp.MustCompile(`\b(?:(?:next|this|coming)\s+)?` + weekdayPattern + `\b`)},

	// Absolute.
	{LabelDate, regexp.MustCompile(`\b` + monthPattern + `\s+(?:the\s+)?` + ordinalPattern + `\b(?:,?\s+\d{4}\b)?`)},
	{LabelDate, regexp.MustCompile(`\b(?:the\s+)?` + ordinalPattern + `\s+(?:of\s+)?` + monthPattern + `(?:,?\s+\d{4}\b)?`)},
	{LabelDate, regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)},
	{LabelDate, regexp.MustCompile(`\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b`)},

	// Bare day of month needs an ordinal suffix to be told apart from counts.
	{LabelDate, regexp.MustCompile(`\b(?:the\s+)?\d{1,2}(?:st|nd|rd|th)\b`)},

	// Times.
	{LabelTime, regexp.MustCompile(`\b(?:at\s+|from\s+)?\d{1,2}(?:[:.]\d{2})?\s*` + meridiemPattern + `?\s*(?:-|–|to|until|till)\s*\d{1,2}(?:[:.]\d{2})?\s*` + meridiemPattern + zonePattern)},
	{LabelTime, regexp.MustCompile(`\b(?:at\s+|from\s+)?(?:[01]?\d|2[0-3]):[0-5]\d\s*(?:-|–|to|until|till)\s*(?:[01]?\d|2[0-3]):[0-5]\d\b` + zonePattern)},
	{LabelTime, regexp.MustCompile(`\b(?:at\s+)?\d{1,2}(?:[:.]\d{2})?\s*` + meridiemPattern + zonePattern)},
	{LabelTime, regexp.MustCompile(`\b(?:at\s+)?(?:[01]?\d|2[0-3]):[0-5]\d\b` + zonePattern)},
	// A dotted 24-hour clock needs "at" so decimals stay out.
	{LabelTime, regexp.MustCompile(`\bat\s+(?:[01]?\d|2[0-3])\.[0-5]\d\b` + zonePattern)},
	{LabelTime, regexp.MustCompile(`\b(?:at\s+)?\d{1,2}\s*o'?clock\b`)},
	{LabelTime, regexp.MustCompile(`\bat\s+\d{1,2}\b`)},
	{LabelTime, regexp.MustCompile(`\b(?:at\s+)?(?:noon|midday|midnight)\b`)},
	{LabelTime, regexp.MustCompile(`\b(?:(?:in\s+the|this)\s+)?(?:morning|afternoon|evening)\b`)},

	// Durations.
	{LabelDuration, regexp.MustCompile(`\bfor\s+(?:half\s+an\s+hour|an?\s+hour(?:\s+and\s+a\s+half)?|` + countPattern + `(?:\.\d+)?\s*(?:hours?|hrs?|minutes?|mins?)(?:\s+and\s+(?:a\s+half|\d+\s*(?:minutes?|mins?)))?)\b`)},
}

// Rules is the default Engine: a deterministic lexicon and pattern based
// recognizer. It needs no model download and is safe for concurrent use.
type Rules struct {
	rules []rule
}

// NewRules returns the rule-based engine.
func NewRules() *Rules {
	return &Rules{rules: dateTimeRules}
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)?|[^\s\p{L}\p{N}]`)

// Tokenize splits text into words and punctuation with byte offsets.
func (r *Rules) Tokenize(text string) []Token {
	locs := tokenRe.FindAllStringIndex(text, -1)
	out := make([]Token, 0, len(locs))
	for _, loc := range locs {
		out = append(out, Token{Text: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
	}
	return out
}

// Tag assigns closed-class tags from the lexicon and NOUN to anything else.
func (r *Rules) Tag(tokens []Token) []Token {
	out := make([]Token, len(tokens))
	for i, tok := range tokens {
		tok.Tag = lookupTag(strings.ToLower(tok.Text))
		out[i] = tok
	}
	return out
}

// DetectEntities returns non-overlapping date, time and duration spans.
func (r *Rules) DetectEntities(_ context.Context, text string) ([]Entity, error) {
	var cands []Entity
	for _, rl := range r.rules {
		for _, loc := range rl.re.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			// Patterns with optional trailing groups can pick up whitespace.
			for end > start && text[end-1] == ' ' {
				end--
			}
			cands = append(cands, Entity{Label: rl.label, Text: text[start:end], Start: start, End: end})
		}
	}
	return resolveOverlaps(cands), nil
}
