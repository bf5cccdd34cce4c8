// Package cli holds the cobra commands of the textcal binary.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"textcal/internal/config"
	appLog "textcal/internal/log"
)

var (
	// version is set from main via ldflags.
	version = "dev"

	// verbose forces debug logging regardless of the config file.
	verbose bool

	// configPath is the YAML config file. Empty means built-in defaults and
	// no file is created.
	configPath string

	// cfg is loaded once per invocation by the root pre-run hook.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "textcal",
	Short: "Turn plain-English event descriptions into iCalendar files",
	Long: `textcal reads free-form text such as

  "I have a chemistry exam on June 19th at 9 AM and a meeting the day after"

and writes an RFC 5545 calendar with one event per described appointment.
It can run once from the command line, serve an HTTP API, or watch an inbox
directory on a cron schedule.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx available to every command.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string for the CLI.
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file (created with defaults if missing)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose debug output")
}

// loadConfig reads the config file and configures logging before any
// command runs.
func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	if configPath == "" {
		cfg = config.DefaultConfig()
	} else if cfg, err = config.Load(configPath); err != nil {
		return err
	}

	level := appLog.ParseLevel(cfg.Log.Level)
	if verbose {
		level = appLog.LevelDebug
	}
	appLog.Configure(appLog.Options{Level: level, Format: cfg.Log.Format, Writer: cmd.ErrOrStderr()})
	appLog.Debug("cli: config loaded", "path", configPath, "timezone", cfg.Timezone, "engine", cfg.NLP.Engine)
	return nil
}
