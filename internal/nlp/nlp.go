// Package nlp defines the language capability the extraction pipeline
// consumes: tokenization, part-of-speech tagging and recognition of
// date/time entities. Implementations are read-only once constructed and
// may be shared between concurrent pipeline runs.
package nlp

import (
	"context"
	"sort"
)

// Label classifies a recognized entity.
type Label string

const (
	LabelDate     Label = "DATE"
	LabelTime     Label = "TIME"
	LabelDuration Label = "DURATION"
)

// Entity is a tagged span. Start/End are byte offsets into the text that was
// passed to DetectEntities.
type Entity struct {
	Label Label  `json:"label"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Overlaps reports whether the entity intersects [start, end).
func (e Entity) Overlaps(start, end int) bool {
	return e.Start < end && start < e.End
}

// Contains reports whether offset lies strictly inside the entity.
func (e Entity) Contains(offset int) bool {
	return offset > e.Start && offset < e.End
}

// Tag is a coarse universal part-of-speech tag.
type Tag string

const (
	TagNoun  Tag = "NOUN"
	TagPropn Tag = "PROPN"
	TagVerb  Tag = "VERB"
	TagAdj   Tag = "ADJ"
	TagAdv   Tag = "ADV"
	TagAux   Tag = "AUX"
	TagAdp   Tag = "ADP"
	TagDet   Tag = "DET"
	TagPron  Tag = "PRON"
	TagCconj Tag = "CCONJ"
	TagPart  Tag = "PART"
	TagNum   Tag = "NUM"
	TagPunct Tag = "PUNCT"
)

// IsContent reports whether the tag marks an open-class (content) word.
func (t Tag) IsContent() bool {
	switch t {
	case TagNoun, TagPropn, TagVerb, TagAdj:
		return true
	default:
		return false
	}
}

// Token is a single word or punctuation mark.
type Token struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Tag   Tag    `json:"tag,omitempty"`
}

// Engine is the NLP capability consumed by the pipeline.
type Engine interface {
	Tokenize(text string) []Token
	Tag(tokens []Token) []Token
	DetectEntities(ctx context.Context, text string) ([]Entity, error)
}

// resolveOverlaps keeps the earliest, then longest, of any overlapping
// candidates and returns the survivors in text order.
func resolveOverlaps(cands []Entity) []Entity {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Start != cands[j].Start {
			return cands[i].Start < cands[j].Start
		}
		return cands[i].End-cands[i].Start > cands[j].End-cands[j].Start
	})

	out := make([]Entity, 0, len(cands))
	for _, c := range cands {
		if n := len(out); n > 0 && out[n-1].Overlaps(c.Start, c.End) {
			continue
		}
		out = append(out, c)
	}
	return out
}
