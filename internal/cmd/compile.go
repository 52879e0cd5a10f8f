package cmd

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/crimson-sun/grouping/internal/rulesource"
)

func newCompileCmd() *cobra.Command {
	var indent bool
	cmd := &cobra.Command{
		Use:   "compile FILE...",
		Short: "Compile rule files to their JSON form",
		Long: `Compile joins the rule files in lexical path order, compiles them and
prints the versioned JSON rule set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := rulesource.Load(args)
			if err != nil {
				return err
			}

			var data []byte
			if indent {
				data, err = json.MarshalIndent(rs.ToConfig(), "", "  ")
			} else {
				data, err = rs.ToJSON()
			}
			if err != nil {
				return fmt.Errorf("encoding rules: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&indent, "indent", false, "indent the JSON output")
	return cmd
}
