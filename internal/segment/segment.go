// Package segment splits raw input into candidate event clauses.
//
// Sentences end at '.', '!', '?', ';' and newlines. Inside a sentence the word
// "and" and commas are candidate split points; a split is taken only when
// both sides carry a content word outside any temporal phrase, so "may 10th
// at 2 pm" or "the 10th and the 15th" never fall apart. Temporal phrases are
// never cut.
package segment

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	appLog "textcal/internal/log"
	"textcal/internal/model"
	"textcal/internal/nlp"
)

// Policy decides what happens to a date-only piece joined by "and".
type Policy string

const (
	// PolicyJoin keeps "exam on the 10th and the 15th" as one clause; the
	// first date wins during resolution.
	PolicyJoin Policy = "join"
	// PolicyDistribute turns each extra date into its own clause that
	// borrows the preceding title.
	PolicyDistribute Policy = "distribute"
)

// Segmenter is safe for concurrent use.
type Segmenter struct {
	engine nlp.Engine
	policy Policy
}

// New builds a Segmenter. An unknown policy falls back to PolicyJoin.
func New(engine nlp.Engine, policy Policy) *Segmenter {
	if policy != PolicyDistribute {
		policy = PolicyJoin
	}
	return &Segmenter{engine: engine, policy: policy}
}

// abbreviations whose trailing period does not end a sentence.
var abbreviations = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "st": true,
	"prof": true, "vs": true, "etc": true, "approx": true,
}

type span struct {
	start, end int
}

// Split returns the clauses of raw in input order.
func (s *Segmenter) Split(ctx context.Context, raw string) ([]model.Clause, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("segment: %w", model.ErrEmptyInput)
	}

	text := FoldCase(raw)
	ents, err := s.engine.DetectEntities(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("segment: detect entities: %w", err)
	}
	tokens := s.engine.Tag(s.engine.Tokenize(text))

	a := &analysis{raw: raw, text: text, ents: ents, tokens: tokens}

	var clauses []model.Clause
	for _, sentence := range a.sentences() {
		for _, piece := range s.mergePieces(a, a.pieces(sentence)) {
			clauses = append(clauses, a.clause(len(clauses), piece.span, piece.inherit))
		}
	}
	if len(clauses) == 0 {
		return nil, fmt.Errorf("segment: nothing but punctuation: %w", model.ErrEmptyInput)
	}

	appLog.Debug("segment: split input", "clauses", len(clauses), "entities", len(ents), "policy", string(s.policy))
	return clauses, nil
}

type piece struct {
	span
	inherit bool
}

// mergePieces applies the content-word rule to the soft split points of a
// sentence.
func (s *Segmenter) mergePieces(a *analysis, pieces []span) []piece {
	var out []piece
	var cur *piece
	for _, p := range pieces {
		if cur == nil {
			cur = &piece{span: p}
			continue
		}
		switch {
		case a.hasContent(p) && (cur.inherit || a.hasContent(cur.span)):
			out = append(out, *cur)
			cur = &piece{span: p}
		case s.policy == PolicyDistribute && a.hasDate(cur.span) && !a.hasContent(p) && a.hasDate(p):
			out = append(out, *cur)
			cur = &piece{span: p, inherit: true}
		default:
			cur.end = p.end
		}
	}
	if cur != nil {
		out = append(out, *cur)
	}

	trimmed := out[:0]
	for _, p := range out {
		p.span = a.trim(p.span)
		if p.end > p.start {
			trimmed = append(trimmed, p)
		}
	}
	return trimmed
}

type analysis struct {
	raw    string
	text   string
	ents   []nlp.Entity
	tokens []nlp.Token
}

func (a *analysis) insideEntity(offset int) bool {
	for _, e := range a.ents {
		if offset >= e.Start && offset < e.End {
			return true
		}
	}
	return false
}

func (a *analysis) overlapsEntity(sp span) bool {
	for _, e := range a.ents {
		if e.Overlaps(sp.start, sp.end) {
			return true
		}
	}
	return false
}

// sentences cuts at hard boundaries outside temporal phrases.
func (a *analysis) sentences() []span {
	var out []span
	start := 0
	for i := 0; i < len(a.text); i++ {
		switch a.text[i] {
		case '.', '!', '?', ';', '\n':
		default:
			continue
		}
		if a.insideEntity(i) {
			// "at 9 a.m. Gym on friday": the entity owns the period.
			if a.text[i] == '.' && a.entityEndsAt(i+1) && a.capitalFollows(i+1) {
				out = append(out, span{start, i + 1})
				start = i + 1
			}
			continue
		}
		if !a.isSentenceEnd(i) {
			continue
		}
		out = append(out, span{start, i})
		start = i + 1
	}
	return append(out, span{start, len(a.text)})
}

func (a *analysis) entityEndsAt(offset int) bool {
	for _, e := range a.ents {
		if e.End == offset {
			return true
		}
	}
	return false
}

// capitalFollows reports whether the raw input continues after whitespace
// with an upper-case letter, or ends.
func (a *analysis) capitalFollows(i int) bool {
	if i >= len(a.raw) {
		return true
	}
	if !unicode.IsSpace(rune(a.raw[i])) {
		return false
	}
	rest := strings.TrimLeftFunc(a.raw[i:], unicode.IsSpace)
	if rest == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return unicode.IsUpper(r)
}

func (a *analysis) isSentenceEnd(i int) bool {
	if a.text[i] != '.' {
		return true
	}
	// "9.30" or "example.com" keep going.
	if i+1 < len(a.text) && !unicode.IsSpace(rune(a.text[i+1])) {
		return false
	}
	j := i
	for j > 0 && isWordByte(a.text[j-1]) {
		j--
	}
	return !abbreviations[a.text[j:i]]
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// pieces cuts a sentence at "and" / "," tokens that sit outside entities.
func (a *analysis) pieces(sentence span) []span {
	var out []span
	start := sentence.start
	for _, tok := range a.tokens {
		if tok.Start < sentence.start || tok.End > sentence.end {
			continue
		}
		if tok.Text != "and" && tok.Text != "," && tok.Text != "&" {
			continue
		}
		if a.overlapsEntity(span{tok.Start, tok.End}) {
			continue
		}
		out = append(out, span{start, tok.Start})
		start = tok.End
	}
	return append(out, span{start, sentence.end})
}

// hasContent reports whether sp holds an open-class word outside temporal
// phrases.
func (a *analysis) hasContent(sp span) bool {
	for _, tok := range a.tokens {
		if tok.Start < sp.start || tok.End > sp.end {
			continue
		}
		if !tok.Tag.IsContent() || a.overlapsEntity(span{tok.Start, tok.End}) {
			continue
		}
		return true
	}
	return false
}

func (a *analysis) hasDate(sp span) bool {
	for _, e := range a.ents {
		if e.Label == nlp.LabelDate && e.Start >= sp.start && e.End <= sp.end {
			return true
		}
	}
	return false
}

// trim drops surrounding whitespace, punctuation and dangling connectives.
func (a *analysis) trim(sp span) span {
	for {
		before := sp
		for sp.start < sp.end && isTrimByte(a.text[sp.start]) && !a.insideEntity(sp.start) {
			sp.start++
		}
		for sp.end > sp.start && isTrimByte(a.text[sp.end-1]) && !a.insideEntity(sp.end-1) {
			sp.end--
		}
		for _, w := range connectives {
			if strings.HasPrefix(a.text[sp.start:sp.end], w) && a.wordBoundary(sp.start+len(w)) && !a.insideEntity(sp.start) {
				sp.start += len(w)
			}
			if strings.HasSuffix(a.text[sp.start:sp.end], w) && a.wordBoundaryBefore(sp.end-len(w)) && !a.insideEntity(sp.end-1) {
				sp.end -= len(w)
			}
		}
		if sp == before {
			return sp
		}
	}
}

var connectives = []string{"and", "&"}

func (a *analysis) wordBoundary(i int) bool {
	return i >= len(a.text) || !isWordByte(a.text[i])
}

func (a *analysis) wordBoundaryBefore(i int) bool {
	return i <= 0 || !isWordByte(a.text[i-1])
}

func isTrimByte(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', ',', '.', ';', ':', '!', '?', '-', '"', '\'':
		return true
	default:
		return false
	}
}

func (a *analysis) clause(index int, sp span, inherit bool) model.Clause {
	c := model.Clause{
		Index:        index,
		Text:         a.text[sp.start:sp.end],
		Start:        sp.start,
		End:          sp.end,
		InheritTitle: inherit,
	}
	for _, e := range a.ents {
		if e.Start >= sp.start && e.End <= sp.end {
			e.Start -= sp.start
			e.End -= sp.start
			c.Entities = append(c.Entities, e)
		}
	}
	return c
}

// FoldCase lowercases text without changing its byte length, so offsets
// computed on the result are valid for the original. Runes whose lowercase
// form has a different encoded width, and invalid bytes, are kept as-is.
func FoldCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			b.WriteByte(s[i])
			i++
			continue
		}
		lr := unicode.ToLower(r)
		if utf8.RuneLen(lr) == size {
			b.WriteRune(lr)
		} else {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}
