package pipeline

import (
	"errors"
	"fmt"
	"os"

	"textcal/internal/config"
	"textcal/internal/ics"
	appLog "textcal/internal/log"
	"textcal/internal/nlp"
	"textcal/internal/segment"
)

// NewEngine builds the entity recognizer selected by cfg. The openai engine
// reads its key from OPENAI_API_KEY when the config leaves it empty.
func NewEngine(cfg config.NLPConfig) (nlp.Engine, error) {
	switch cfg.Engine {
	case "", "rules":
		return nlp.NewRules(), nil
	case "dateparser":
		appLog.Info("pipeline: using dateparser entity recognizer")
		return nlp.NewDateparserRecognizer(), nil
	case "openai":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		completer, err := nlp.NewOpenAICompleter(nlp.OpenAISettings{
			Model:   cfg.Model,
			APIKey:  key,
			BaseURL: cfg.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		rec, err := nlp.NewLLMRecognizer(completer)
		if err != nil {
			return nil, err
		}
		appLog.Info("pipeline: using llm entity recognizer", "model", cfg.Model)
		return rec, nil
	default:
		return nil, fmt.Errorf("pipeline: unknown nlp engine %q", cfg.Engine)
	}
}

// FromConfig builds a Generator from a loaded configuration. Serializer
// options (clock, UID generator) are passed through.
func FromConfig(cfg *config.Config, opts ...ics.Option) (*Generator, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: nil config")
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	hour, minute, err := config.ParseClock(cfg.DefaultTime)
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(cfg.NLP)
	if err != nil {
		return nil, err
	}

	return newGenerator(Options{
		Engine:          engine,
		Policy:          segment.Policy(cfg.Segment.Policy),
		Location:        loc,
		DefaultHour:     hour,
		DefaultMinute:   minute,
		DefaultDuration: cfg.DefaultDuration,
		Placeholder:     cfg.PlaceholderTitle,
		Serializer:      ics.NewSerializer(cfg.ProductID, cfg.UIDDomain, opts...),
	}, true), nil
}
