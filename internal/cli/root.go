// Package cli provides the routinely command tree.
//
// Commands stay thin: argument and flag handling here, all workflow
// behavior in the workflow package. Failures travel as [ExitError] values
// so [Execute] owns the single translation to a process exit code.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the routinely command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "routinely",
		Short:         "Sequenced project-hygiene workflow",
		Long:          "routinely runs a sequenced set of maintenance steps against a project\ndirectory: prune old dumps, reformat, test, clean caches, scan, back up,\nregenerate dumps, commit a snapshot, and audit dependencies.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newStepsCommand())
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		if code, ok := IsExitError(err); ok {
			return code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
