package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_PartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: Asia/Seoul
default_time: "08:30"
default_duration: 90m
segment:
  policy: Distribute
nlp:
  engine: openai
  model: gpt-4o-mini
  base_url: https://llm.internal/v1
basic_auth:
  username: ""
  password: ""
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Asia/Seoul", cfg.Timezone)
	assert.Equal(t, 90*time.Minute, cfg.DefaultDuration)
	assert.Equal(t, "distribute", cfg.Segment.Policy)
	assert.Equal(t, "openai", cfg.NLP.Engine)
	assert.Nil(t, cfg.BasicAuth)
	assert.Equal(t, "Untitled Event", cfg.PlaceholderTitle)
	assert.Equal(t, 4, cfg.Inbox.Workers)
	assert.Equal(t, "*/5 * * * *", cfg.Inbox.Schedule)

	h, m, err := ParseClock(cfg.DefaultTime)
	require.NoError(t, err)
	assert.Equal(t, 8, h)
	assert.Equal(t, 30, m)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		problem string
	}{
		{name: "unknown timezone", yaml: "timezone: Mars/Olympus\n", problem: "timezone"},
		{name: "bad clock", yaml: "default_time: \"25:00\"\n", problem: "default_time"},
		{name: "bad cron", yaml: "inbox:\n  schedule: every minute\n", problem: "inbox.schedule"},
		{name: "unknown policy", yaml: "segment:\n  policy: guess\n", problem: "segment.policy"},
		{name: "unknown engine", yaml: "nlp:\n  engine: spacy\n", problem: "nlp.engine"},
		{name: "too short duration", yaml: "default_duration: 10s\n", problem: "default_duration"},
		{name: "half basic auth", yaml: "basic_auth:\n  username: admin\n", problem: "basic_auth.password"},
		{name: "bad listen", yaml: "listen: localhost\n", problem: "listen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.problem)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timezone: [oops"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Timezone = "Europe/Berlin"
	cfg.DefaultDuration = 45 * time.Minute
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}
	cfg.Inbox.Workers = 8
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "default_duration: 45m0s")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSave_Errors(t *testing.T) {
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))

	bad := DefaultConfig()
	bad.Log.Format = "xml"
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), bad))

	_, err := Load("")
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock(" 14:05 ")
	require.NoError(t, err)
	assert.Equal(t, 14, h)
	assert.Equal(t, 5, m)

	for _, bad := range []string{"", "9", "9am", "24:00", "12:60"} {
		_, _, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}
