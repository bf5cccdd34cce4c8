package ics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ical "github.com/arran4/golang-ical"

	appLog "textcal/internal/log"
)

// DefaultFileName is used when no output path is given.
const DefaultFileName = "generated_calendar.ics"

// WriteFile writes a document to path atomically: the text goes to a temp
// file in the same directory which is then renamed over the target.
func WriteFile(path, text string) error {
	if path == "" {
		return errors.New("ics: output path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".textcal-*.ics.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(text); err != nil {
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
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	appLog.Info("ics: calendar written", "path", path, "bytes", len(text))
	return nil
}

// Merge appends the VEVENTs of addition to the calendar in existing.
// Events whose UID already exists are skipped. Calendar-level properties
// of existing are kept.
func Merge(existing, addition string) (string, int, error) {
	base, err := parseCalendar([]byte(existing))
	if err != nil {
		return "", 0, fmt.Errorf("ics: merge base: %w", err)
	}
	extra, err := parseCalendar([]byte(addition))
	if err != nil {
		return "", 0, fmt.Errorf("ics: merge addition: %w", err)
	}

	seen := make(map[string]bool)
	for _, ev := range base.Events() {
		seen[ev.Id()] = true
	}

	added := 0
	for _, ev := range extra.Events() {
		if seen[ev.Id()] {
			appLog.Warn("ics: merge skipped duplicate uid", "uid", ev.Id())
			continue
		}
		base.AddVEvent(ev)
		seen[ev.Id()] = true
		added++
	}

	var b strings.Builder
	if err := base.SerializeTo(&b, ical.WithNewLineWindows); err != nil {
		return "", 0, fmt.Errorf("ics: merge: %w", err)
	}
	return b.String(), added, nil
}

// AppendFile merges text into the calendar stored at path, creating the
// file when it does not exist yet. It returns how many events were added.
func AppendFile(path, text string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return 0, err
		}
		events, perr := ParseDocument([]byte(text))
		if perr != nil {
			return 0, perr
		}
		return len(events), WriteFile(path, text)
	}

	merged, added, err := Merge(string(data), text)
	if err != nil {
		return 0, err
	}
	return added, WriteFile(path, merged)
}
