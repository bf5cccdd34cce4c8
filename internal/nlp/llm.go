package nlp

import (
	"context"
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	appLog "textcal/internal/log"
)

// Completer abstracts a chat-style language model so the recognizer can be
// tested without network access.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const recognizerPrompt = `You extract date, time and duration expressions from English text.
Reply with JSON only: {"entities":[{"label":"DATE|TIME|DURATION","text":"<exact substring>"}]}.
Copy each expression exactly as it appears, in order of appearance. DATE covers calendar dates,
weekdays and relative days ("tomorrow", "the day after", "the 15th"). TIME covers clock times,
ranges ("2-4 pm") and "noon"/"midnight". DURATION covers "for 2 hours" style phrases.`

// LLMRecognizer detects entities with a language model and delegates
// tokenization and tagging to the rule engine. When the model fails or
// returns unusable output it falls back to the rules.
type LLMRecognizer struct {
	rules *Rules
	llm   Completer
}

// NewLLMRecognizer wraps a Completer.
func NewLLMRecognizer(llm Completer) (*LLMRecognizer, error) {
	if llm == nil {
		return nil, errors.New("nlp: llm client is required")
	}
	return &LLMRecognizer{rules: NewRules(), llm: llm}, nil
}

func (l *LLMRecognizer) Tokenize(text string) []Token { return l.rules.Tokenize(text) }

func (l *LLMRecognizer) Tag(tokens []Token) []Token { return l.rules.Tag(tokens) }

// DetectEntities asks the model for spans and anchors each one on the input.
func (l *LLMRecognizer) DetectEntities(ctx context.Context, text string) ([]Entity, error) {
	raw, err := l.llm.Complete(ctx, recognizerPrompt, text)
	if err != nil {
		appLog.Error("nlp: llm entity detection failed; using rules", err)
		return l.rules.DetectEntities(ctx, text)
	}

	ents, err := anchorEntities(text, raw)
	if err != nil {
		appLog.Error("nlp: unusable llm output; using rules", err, "output_len", len(raw))
		return l.rules.DetectEntities(ctx, text)
	}
	appLog.Debug("nlp: llm entities", "count", len(ents))
	return ents, nil
}

// anchorEntities parses the model reply and locates every reported span in
// text, scanning forward so repeated phrases map to successive occurrences.
// Spans that cannot be found are dropped.
func anchorEntities(text, raw string) ([]Entity, error) {
	payload := stripCodeFence(raw)
	if !gjson.Valid(payload) {
		return nil, errors.New("nlp: reply is not valid JSON")
	}

	list := gjson.Get(payload, "entities")
	if !list.IsArray() {
		return nil, errors.New("nlp: reply has no entities array")
	}

	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		lower = text
	}
	var cands []Entity
	cursor := 0
	for _, item := range list.Array() {
		label := Label(strings.ToUpper(item.Get("label").String()))
		switch label {
		case LabelDate, LabelTime, LabelDuration:
		default:
			continue
		}
		span := strings.ToLower(strings.TrimSpace(item.Get("text").String()))
		if span == "" {
			continue
		}

		idx := strings.Index(lower[cursor:], span)
		if idx < 0 {
			// Out-of-order reply: retry from the start.
			idx = strings.Index(lower, span)
			if idx < 0 {
				continue
			}
		} else {
			idx += cursor
		}
		end := idx + len(span)
		cands = append(cands, Entity{Label: label, Text: text[idx:end], Start: idx, End: end})
		cursor = end
	}
	return resolveOverlaps(cands), nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
