package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"textcal/internal/inbox"
	"textcal/internal/pipeline"
)

// Flags for watch.
var (
	watchOnce   bool
	inboxDir    string
	inboxOutDir string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Turn text files in an inbox directory into calendars",
	Long: `Watch the inbox directory and convert every *.txt file into an .ics file in
the output directory, on the cron schedule from the config (inbox.schedule).

Processed inputs move to <inbox>/processed, unusable ones to <inbox>/failed.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "process the inbox once and exit")
	watchCmd.Flags().StringVar(&inboxDir, "dir", "", "inbox directory (overrides config if set)")
	watchCmd.Flags().StringVar(&inboxOutDir, "out-dir", "", "output directory (overrides config if set)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if inboxDir != "" {
		cfg.Inbox.Dir = inboxDir
	}
	if inboxOutDir != "" {
		cfg.Inbox.OutDir = inboxOutDir
	}

	gen, err := pipeline.FromConfig(cfg)
	if err != nil {
		return err
	}
	p := inbox.NewProcessor(gen, cfg.Inbox)

	if !watchOnce {
		return p.Run(cmd.Context(), cfg.Inbox.Schedule)
	}

	results, errs := p.ProcessAll(cmd.Context())
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d event(s), %d skipped)\n", r.Input, r.Output, r.Events, r.Skipped)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d file(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
