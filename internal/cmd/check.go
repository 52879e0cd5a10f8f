package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/grouping/internal/engine/fingerprinting"
	"github.com/crimson-sun/grouping/internal/rulesource"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE...",
		Short: "Validate fingerprinting rule files",
		Long: `Check compiles every rule file on its own and reports the first error
in each. Arguments may be doublestar patterns.

Examples:
  grouping check rules/app.rules
  grouping check "rules/**/*.rules"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	files, err := rulesource.New(args).Files()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no rule files match %v", args)
	}

	failed := 0
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", f, err)
			failed++
			continue
		}
		rs, err := fingerprinting.Parse(string(data))
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", f, describe(err))
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d rules\n", f, len(rs.Rules))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d rule files are invalid", failed, len(files))
	}
	return nil
}

// describe prefixes syntax errors with their line and column.
func describe(err error) string {
	var ice *fingerprinting.InvalidConfigError
	if errors.As(err, &ice) && ice.Line > 0 {
		return fmt.Sprintf("%d:%d: %s", ice.Line, ice.Column, ice.Msg)
	}
	return err.Error()
}
