package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the grouping command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "grouping",
		Short: "Group error events with fingerprinting rules",
		Long: `Grouping assigns error events to groups. Fingerprinting rules decide
which events belong together and what the group is called; events no rule
matches are grouped by exception type and in-app stack frames.

Rules are plain text files, one rule per line:

  error.type:"*Timeout*" -> "timeouts", {{ transaction }}
  logger:"payments.*" level:error -> "payments-error" title="Payment failure"`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newCheckCmd(), newCompileCmd(), newMatchCmd(), newStreamCmd(), newQueryCmd())
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
