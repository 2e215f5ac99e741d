package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"routinely/internal/registry"
)

func newStepsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the step catalog and aliases",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-8s  %-22s  %s\n", "ID", "TITLE", "ALIASES")
			for _, s := range registry.Catalog() {
				fmt.Fprintf(out, "%-8s  %-22s  %s\n", s.ID, s.Title, strings.Join(s.Aliases, ", "))
			}
		},
	}
}
