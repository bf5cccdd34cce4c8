package cli

import (
	"github.com/spf13/cobra"

	"textcal/internal/pipeline"
	"textcal/internal/web"
)

var listenFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the generate API over HTTP",
	Long: `Serve POST /api/generate and GET /health on the configured listen address.

The server stops gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenFlag, "listen", "", "HTTP listen address (overrides config if set)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if listenFlag != "" {
		cfg.Listen = listenFlag
	}
	gen, err := pipeline.FromConfig(cfg)
	if err != nil {
		return err
	}
	return web.StartServer(cmd.Context(), cfg, gen)
}
