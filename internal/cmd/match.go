package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/crimson-sun/grouping/pkg/grouping"
)

func newMatchCmd() *cobra.Command {
	var (
		rules  []string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "match --rules GLOB [EVENT_FILE]",
		Short: "Show the group of each event in a file",
		Long: `Match groups the events in EVENT_FILE, or standard input when it is
omitted or "-". The file may hold one event, a JSON array of events or
newline-delimited events.

Examples:
  grouping match --rules "rules/*.rules" event.json
  cat events.ndjson | grouping match --rules rules/app.rules --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := grouping.New(grouping.WithRuleFiles(rules...))
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			events, err := readEvents(in)
			if err != nil {
				return err
			}
			return printMatches(cmd.OutOrStdout(), g, events, asJSON)
		},
	}
	cmd.Flags().StringSliceVarP(&rules, "rules", "r", nil, "rule file patterns (repeatable or comma-separated)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON result per event")
	_ = cmd.MarkFlagRequired("rules")
	return cmd
}

// readEvents splits the input into event payloads.
func readEvents(r io.Reader) ([]json.RawMessage, error) {
	dec := json.NewDecoder(r)
	var events []json.RawMessage
	for {
		var v json.RawMessage
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading event %d: %w", len(events)+1, err)
		}

		if trimmed := bytes.TrimSpace(v); len(trimmed) > 0 && trimmed[0] == '[' {
			var batch []json.RawMessage
			if err := json.Unmarshal(trimmed, &batch); err != nil {
				return nil, fmt.Errorf("reading event array: %w", err)
			}
			events = append(events, batch...)
			continue
		}
		events = append(events, v)
	}
	if len(events) == 0 {
		return nil, errors.New("no events in input")
	}
	return events, nil
}

func printMatches(w io.Writer, g *grouping.Grouper, events []json.RawMessage, asJSON bool) error {
	enc := json.NewEncoder(w)
	for i, payload := range events {
		res, err := g.Group(payload)
		if err != nil {
			return fmt.Errorf("event %d: %w", i+1, err)
		}
		if asJSON {
			if err := enc.Encode(res); err != nil {
				return err
			}
			continue
		}

		rule := res.Rule
		if res.Default {
			rule = "(default grouping)"
		}
		fmt.Fprintf(w, "%s  %s\n", res.Hash, res.Title)
		fmt.Fprintf(w, "  fingerprint: %s\n", strings.Join(res.Fingerprint, ", "))
		fmt.Fprintf(w, "  rule:        %s\n", rule)
	}
	return nil
}
