// Package title derives a human-readable event title from a clause.
package title

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"textcal/internal/model"
)

// leadingPhrases are stripped from the start of a title, longest first.
var leadingPhrases = [][]string{
	{"remind", "me", "about", "the"},
	{"remind", "me", "about"},
	{"remind", "me", "of"},
	{"remind", "me", "to"},
	{"don't", "forget", "about"},
	{"don't", "forget", "to"},
	{"don't", "forget"},
	{"i", "have", "got", "a"},
	{"i", "have", "got", "an"},
	{"i've", "got", "a"},
	{"i've", "got", "an"},
	{"i", "have", "a"},
	{"i", "have", "an"},
	{"we", "have", "a"},
	{"we", "have", "an"},
	{"there", "is", "a"},
	{"there", "is", "an"},
	{"there's", "a"},
	{"there's", "an"},
	{"i", "need", "to"},
	{"i", "have", "to"},
	{"i", "have"},
	{"we", "have"},
	{"i've", "got"},
	{"i", "am"},
	{"i'm"},
}

// edgeWords never start or end a title.
var edgeWords = map[string]bool{
	"a": true, "an": true, "the": true, "on": true, "at": true, "for": true,
	"from": true, "until": true, "till": true, "to": true, "in": true, "by": true,
	"and": true, "&": true, "with": true, "of": true, "is": true, "then": true,
	"also": true, "plus": true, "next": true, "this": true,
}

// minorWords stay lower-case unless they open the title.
var minorWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"of": true, "on": true, "at": true, "in": true, "to": true, "for": true,
	"with": true, "by": true, "from": true, "vs": true,
}

// Extractor is stateless and safe for concurrent use.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor { return &Extractor{} }

// Extract removes the expression spans, any other entity the engine found,
// and connective phrases from the clause text and title-cases what is left.
// It fails with model.ErrEmptyTitle when nothing remains.
func (x *Extractor) Extract(c model.Clause, spans []model.Expression) (string, error) {
	b := []byte(c.Text)
	for _, s := range spans {
		blank(b, s.Start, s.End)
	}
	for _, e := range c.Entities {
		blank(b, e.Start, e.End)
	}
	words := strings.Fields(string(b))

	cleaned := words[:0]
	for _, w := range words {
		w = strings.TrimFunc(w, isEdgePunct)
		if w != "" {
			cleaned = append(cleaned, w)
		}
	}
	words = stripLeading(cleaned)
	words = stripEdges(words)
	if len(words) == 0 {
		return "", fmt.Errorf("title: clause %d: %w", c.Index, model.ErrEmptyTitle)
	}
	return titleCase(words), nil
}

// blank overwrites [start, end) with spaces so neighbouring words do not merge.
func blank(b []byte, start, end int) {
	if start < 0 {
		start = 0
	}
	if end > len(b) {
		end = len(b)
	}
	for i := start; i < end; i++ {
		b[i] = ' '
	}
}

func stripLeading(words []string) []string {
	for _, phrase := range leadingPhrases {
		if hasPrefix(words, phrase) {
			return words[len(phrase):]
		}
	}
	return words
}

func hasPrefix(words, phrase []string) bool {
	if len(words) < len(phrase) {
		return false
	}
	for i, p := range phrase {
		if words[i] != p {
			return false
		}
	}
	return true
}

func stripEdges(words []string) []string {
	for len(words) > 0 && edgeWords[words[0]] {
		words = words[1:]
	}
	for len(words) > 0 && edgeWords[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return words
}

func isEdgePunct(r rune) bool {
	return unicode.IsPunct(r) && r != '&' && r != '\'' && r != '’'
}

func titleCase(words []string) string {
	caser := cases.Title(language.English)
	out := make([]string, len(words))
	for i, w := range words {
		if i > 0 && minorWords[w] {
			out[i] = w
			continue
		}
		out[i] = caser.String(w)
	}
	return strings.Join(out, " ")
}
