package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"textcal/internal/ics"
	"textcal/internal/model"
	"textcal/internal/pipeline"
)

// Flags for generate.
var (
	outputPath string
	toStdout   bool
	appendMode bool
	jsonReport bool
	nowFlag    string
	zoneFlag   string
)

var generateCmd = &cobra.Command{
	Use:   "generate [text...]",
	Short: "Generate a calendar from text",
	Long: `Generate a calendar from the text given as arguments, or from stdin when no
arguments (or a single "-") are given.

Examples:
  textcal generate "Dentist tomorrow at 3 pm"
  echo "Gym on Friday for 90 minutes" | textcal generate --stdout
  textcal generate --append -o ~/cal.ics "Team lunch next monday at noon"`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&outputPath, "output", "o", ics.DefaultFileName, "calendar file to write")
	generateCmd.Flags().BoolVar(&toStdout, "stdout", false, "write the calendar to stdout instead of a file")
	generateCmd.Flags().BoolVar(&appendMode, "append", false, "merge new events into an existing calendar file")
	generateCmd.Flags().BoolVar(&jsonReport, "json", false, "print events, skipped clauses and warnings as JSON")
	generateCmd.Flags().StringVar(&nowFlag, "now", "", "anchor time for relative dates (RFC3339, default: current time)")
	generateCmd.Flags().StringVar(&zoneFlag, "timezone", "", "IANA timezone overriding the config")
	generateCmd.MarkFlagsMutuallyExclusive("stdout", "append")
	generateCmd.MarkFlagsMutuallyExclusive("stdout", "json")

	rootCmd.AddCommand(generateCmd)
}

type eventReport struct {
	Title             string    `json:"title"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	SourceClauseIndex int       `json:"source_clause_index"`
}

type skippedReport struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Reason string `json:"reason"`
}

type generateReport struct {
	Events   []eventReport   `json:"events"`
	Skipped  []skippedReport `json:"skipped"`
	Warnings []string        `json:"warnings"`
	Output   string          `json:"output,omitempty"`
}

func runGenerate(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	now := time.Now()
	if nowFlag != "" {
		if now, err = time.Parse(time.RFC3339, nowFlag); err != nil {
			return fmt.Errorf("invalid --now %q: %w", nowFlag, err)
		}
	}

	gen, err := pipeline.FromConfig(cfg)
	if err != nil {
		return err
	}
	if zoneFlag != "" {
		loc, err := time.LoadLocation(zoneFlag)
		if err != nil {
			return fmt.Errorf("invalid --timezone %q: %w", zoneFlag, err)
		}
		gen = gen.WithLocation(loc)
	}

	res, err := gen.Generate(cmd.Context(), text, now)
	if err != nil {
		if errors.Is(err, model.ErrEmptyInput) {
			return errors.New("no input text given")
		}
		return err
	}

	written := ""
	if len(res.Document.Events) > 0 && !toStdout {
		if written, err = writeCalendar(cmd, res); err != nil {
			return err
		}
	}

	if jsonReport {
		return printJSON(cmd.OutOrStdout(), res, written)
	}

	stderr := cmd.ErrOrStderr()
	for _, sk := range res.Skipped {
		fmt.Fprintf(stderr, "skipped clause %d %q: %s\n", sk.Index, sk.Text, sk.ReasonText())
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(stderr, "warning: %s\n", w)
	}

	if toStdout {
		_, err := io.WriteString(cmd.OutOrStdout(), res.Document.Text)
		return err
	}
	if written == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "No events found; nothing written.")
		return nil
	}
	for _, ev := range res.Document.Events {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s - %s\n",
			ev.Title, ev.Start.Format("Mon Jan 2 2006 15:04 MST"), ev.End.Format("15:04"))
	}
	return nil
}

// readInput joins the arguments, or reads stdin for none or "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

// writeCalendar stores the document and reports where it went.
func writeCalendar(cmd *cobra.Command, res pipeline.Result) (string, error) {
	if appendMode {
		added, err := ics.AppendFile(outputPath, res.Document.Text)
		if err != nil {
			return "", err
		}
		if !jsonReport {
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d event(s) to %s\n", added, outputPath)
		}
		return outputPath, nil
	}

	if err := ics.WriteFile(outputPath, res.Document.Text); err != nil {
		return "", err
	}
	if !jsonReport {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d event(s) to %s\n", len(res.Document.Events), outputPath)
	}
	return outputPath, nil
}

func printJSON(w io.Writer, res pipeline.Result, written string) error {
	rep := generateReport{
		Events:   make([]eventReport, 0, len(res.Document.Events)),
		Skipped:  make([]skippedReport, 0, len(res.Skipped)),
		Warnings: res.Warnings,
		Output:   written,
	}
	if rep.Warnings == nil {
		rep.Warnings = []string{}
	}
	for _, ev := range res.Document.Events {
		rep.Events = append(rep.Events, eventReport(ev))
	}
	for _, sk := range res.Skipped {
		rep.Skipped = append(rep.Skipped, skippedReport{
			Index:  sk.Index,
			Text:   sk.Text,
			Start:  sk.Start,
			End:    sk.End,
			Reason: sk.ReasonText(),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
