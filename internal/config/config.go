package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// NOTE: Load creates the file with defaults on first run; Save writes
// atomically with 0600 permissions since the file may hold an API key.

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" validate:"required"`
	Password string `yaml:"password" json:"password" validate:"required"`
}

// SegmentConfig tunes clause segmentation.
type SegmentConfig struct {
	// Policy decides what "exam on the 10th and the 15th" becomes:
	//   - "join" (default): one event on the first date
	//   - "distribute": one event per date, sharing the title
	Policy string `yaml:"policy" json:"policy" validate:"oneof=join distribute"`
}

// NLPConfig selects the entity recognizer.
type NLPConfig struct {
	// Engine is "rules" (default, offline), "dateparser" or "openai".
	Engine string `yaml:"engine" json:"engine" validate:"oneof=rules dateparser openai"`
	// Model is the chat model used by the openai engine.
	Model string `yaml:"model" json:"model" validate:"required_if=Engine openai"`
	// BaseURL points at an OpenAI-compatible endpoint. Empty uses the SDK default.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" validate:"omitempty,url"`
	// APIKey falls back to OPENAI_API_KEY when empty.
	APIKey string `yaml:"api_key,omitempty" json:"-"`
}

// InboxConfig configures the watch command.
type InboxConfig struct {
	// Dir is scanned for *.txt files.
	Dir string `yaml:"dir" json:"dir" validate:"required"`
	// OutDir receives one .ics per processed file.
	OutDir string `yaml:"out_dir" json:"out_dir" validate:"required"`
	// Schedule is a standard 5-field cron spec (e.g. "*/5 * * * *").
	Schedule string `yaml:"schedule" json:"schedule" validate:"required,cronspec"`
	// Workers bounds how many files are processed at once.
	Workers int `yaml:"workers" json:"workers" validate:"min=1,max=64"`
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=console json"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone used for input that names no zone (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone" validate:"required,timezone"`

	// DefaultTime is the start time, "HH:MM", for events without a time of day.
	DefaultTime string `yaml:"default_time" json:"default_time" validate:"required,clock"`

	// DefaultDuration is the event length when the text gives none.
	DefaultDuration time.Duration `yaml:"default_duration" json:"default_duration" validate:"min=1m,max=24h"`

	// PlaceholderTitle replaces titles that come out empty.
	PlaceholderTitle string `yaml:"placeholder_title" json:"placeholder_title" validate:"required"`

	// ProductID is written as the document PRODID.
	ProductID string `yaml:"product_id" json:"product_id" validate:"required"`

	// UIDDomain is appended to generated event UIDs.
	UIDDomain string `yaml:"uid_domain" json:"uid_domain" validate:"required,hostname_rfc1123"`

	Segment SegmentConfig `yaml:"segment" json:"segment"`
	NLP     NLPConfig     `yaml:"nlp" json:"nlp"`

	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen" validate:"required,hostname_port"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty" validate:"omitempty"`

	Inbox InboxConfig `yaml:"inbox" json:"inbox"`
	Log   LogConfig   `yaml:"log" json:"log"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultTime        = "09:00"
	defaultDuration    = time.Hour
	defaultPlaceholder = "Untitled Event"
	defaultProductID   = "-//textcal//Natural Language Calendar//EN"
	defaultUIDDomain   = "event.org"
	defaultSchedule    = "*/5 * * * *"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone:         defaultTimezone,
		DefaultTime:      defaultTime,
		DefaultDuration:  defaultDuration,
		PlaceholderTitle: defaultPlaceholder,
		ProductID:        defaultProductID,
		UIDDomain:        defaultUIDDomain,
		Segment:          SegmentConfig{Policy: "join"},
		NLP:              NLPConfig{Engine: "rules", Model: "gpt-4o-mini"},
		Listen:           defaultListen,
		Inbox: InboxConfig{
			Dir:      "./inbox",
			OutDir:   "./calendars",
			Schedule: defaultSchedule,
			Workers:  4,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.DefaultTime == "" {
		c.DefaultTime = d.DefaultTime
	}
	if c.DefaultDuration == 0 {
		c.DefaultDuration = d.DefaultDuration
	}
	if strings.TrimSpace(c.PlaceholderTitle) == "" {
		c.PlaceholderTitle = d.PlaceholderTitle
	}
	if c.ProductID == "" {
		c.ProductID = d.ProductID
	}
	if c.UIDDomain == "" {
		c.UIDDomain = d.UIDDomain
	}
	c.Segment.Policy = strings.ToLower(c.Segment.Policy)
	if c.Segment.Policy == "" {
		c.Segment.Policy = d.Segment.Policy
	}
	c.NLP.Engine = strings.ToLower(c.NLP.Engine)
	if c.NLP.Engine == "" {
		c.NLP.Engine = d.NLP.Engine
	}
	if c.NLP.Model == "" {
		c.NLP.Model = d.NLP.Model
	}
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	// Empty credentials mean auth is off.
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
	if c.Inbox.Dir == "" {
		c.Inbox.Dir = d.Inbox.Dir
	}
	if c.Inbox.OutDir == "" {
		c.Inbox.OutDir = d.Inbox.OutDir
	}
	if c.Inbox.Schedule == "" {
		c.Inbox.Schedule = d.Inbox.Schedule
	}
	if c.Inbox.Workers <= 0 {
		c.Inbox.Workers = d.Inbox.Workers
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

var (
	vOnce sync.Once
	v     *validator.Validate
)

func getValidator() *validator.Validate {
	vOnce.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())

		// Report yaml keys, they are what users edit.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("yaml")
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			if tag == "" || tag == "-" {
				return fld.Name
			}
			return tag
		})
		_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, _, err := ParseClock(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
			_, err := cron.ParseStandard(fl.Field().String())
			return err == nil
		})
	})
	return v
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", ns, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", ns, fe.Tag(), fe.Value()))
		}
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ParseClock parses "HH:MM" in 24-hour form.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("config: clock %q: want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// Load reads the YAML config at path. A missing file is created with the
// defaults, so the first run leaves an editable config behind. Values read
// from disk are normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// The defaults stay usable when the file cannot be written.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save validates cfg and writes it to path through a temp file and rename.
// The file is 0600 and its directory 0700.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: nil config")
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".textcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save writes c to path; see the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
