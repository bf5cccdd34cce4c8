// Package inbox turns text files dropped into a directory into calendar
// files, either once or on a cron schedule.
//
// For every <name>.txt in Dir the processor writes <name>.ics to OutDir and
// moves the input to Dir/processed. Inputs that cannot be turned into a
// calendar are moved to Dir/failed so they are not retried forever.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"textcal/internal/config"
	"textcal/internal/ics"
	appLog "textcal/internal/log"
	"textcal/internal/pipeline"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// Result describes one processed input file.
type Result struct {
	Input    string
	Output   string
	Events   int
	Skipped  int
	Warnings []string
}

// Processor is safe to run from one scheduler at a time; a tick that fires
// while the previous batch is still running is dropped.
type Processor struct {
	gen     *pipeline.Generator
	dir     string
	outDir  string
	workers int
	now     func() time.Time

	running sync.Mutex
}

// NewProcessor builds a Processor for the given inbox settings.
func NewProcessor(gen *pipeline.Generator, cfg config.InboxConfig) *Processor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Processor{
		gen:     gen,
		dir:     cfg.Dir,
		outDir:  cfg.OutDir,
		workers: workers,
		now:     time.Now,
	}
}

// SetClock overrides the anchor used for relative dates.
func (p *Processor) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Pending lists the *.txt files waiting in the inbox, sorted by name.
func (p *Processor) Pending() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("inbox: read %s: %w", p.dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		files = append(files, filepath.Join(p.dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ProcessAll handles every pending file with at most `workers` files in
// flight. Failures for individual files are logged and returned in the
// error slice; they do not stop the batch.
func (p *Processor) ProcessAll(ctx context.Context) ([]Result, []error) {
	files, err := p.Pending()
	if err != nil {
		return nil, []error{err}
	}
	if len(files) == 0 {
		appLog.Debug("inbox: nothing to do", "dir", p.dir)
		return nil, nil
	}

	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(files))
		errs    = make([]error, 0)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, path := range files {
		g.Go(func() error {
			res, err := p.ProcessFile(gctx, path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				appLog.Error("inbox: file failed", err, "file", path)
				errs = append(errs, err)
				return nil
			}
			results = append(results, res)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Input < results[j].Input })
	appLog.Info("inbox: batch done", "files", len(files), "ok", len(results), "failed", len(errs))
	return results, errs
}

// ProcessFile generates the calendar for one input file and moves the input
// out of the inbox.
func (p *Processor) ProcessFile(ctx context.Context, path string) (Result, error) {
	res := Result{Input: filepath.Base(path)}

	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("inbox: read %s: %w", res.Input, err)
	}

	out, err := p.gen.Generate(ctx, string(data), p.now())
	if err != nil {
		if ctx.Err() != nil {
			return res, err
		}
		if merr := p.move(path, failedDir); merr != nil {
			err = errors.Join(err, merr)
		}
		return res, fmt.Errorf("inbox: %s: %w", res.Input, err)
	}

	name := strings.TrimSuffix(res.Input, filepath.Ext(res.Input)) + ".ics"
	res.Output = filepath.Join(p.outDir, name)
	if err := ics.WriteFile(res.Output, out.Document.Text); err != nil {
		return res, fmt.Errorf("inbox: write %s: %w", name, err)
	}
	if err := p.move(path, processedDir); err != nil {
		return res, fmt.Errorf("inbox: %s: %w", res.Input, err)
	}

	res.Events = len(out.Document.Events)
	res.Skipped = len(out.Skipped)
	res.Warnings = out.Warnings
	appLog.Info("inbox: file processed", "file", res.Input, "output", res.Output, "events", res.Events, "skipped", res.Skipped)
	return res, nil
}

func (p *Processor) move(path, sub string) error {
	dst := filepath.Join(p.dir, sub)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dst, filepath.Base(path)))
}

// tick runs one batch unless the previous one is still in progress.
func (p *Processor) tick(ctx context.Context) {
	if !p.running.TryLock() {
		appLog.Warn("inbox: previous batch still running; tick skipped")
		return
	}
	defer p.running.Unlock()
	p.ProcessAll(ctx)
}

// Run processes the inbox once, then on every tick of schedule (standard
// 5-field cron) until ctx is cancelled.
func (p *Processor) Run(ctx context.Context, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { p.tick(ctx) }); err != nil {
		return fmt.Errorf("inbox: schedule %q: %w", schedule, err)
	}

	appLog.Info("inbox: watching", "dir", p.dir, "out_dir", p.outDir, "schedule", schedule, "workers", p.workers)
	p.tick(ctx)

	c.Start()
	<-ctx.Done()

	appLog.Info("inbox: stopping scheduler")
	<-c.Stop().Done()
	return nil
}
