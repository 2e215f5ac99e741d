package cli

import (
	"os"

	"github.com/spf13/cobra"

	"routinely/internal/config"
	"routinely/internal/logging"
	"routinely/internal/workflow"
)

func newRunCommand() *cobra.Command {
	var (
		configPath string
		steps      []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the hygiene workflow",
		Long: `Run the sequenced project-hygiene steps under the single-instance lock.

Steps may be selected by canonical id or alias with --steps; an empty
selection runs the full catalog in order. Use "routinely steps" to list
the catalog. Dry-run passes each tool's preview flag instead of
suppressing invocation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader()
			if err := loader.BindFlags(cmd.Flags()); err != nil {
				return err
			}

			var (
				cfg *config.Config
				err error
			)
			if configPath != "" {
				cfg, err = loader.LoadFromFile(configPath)
			} else {
				cfg, err = loader.Load()
			}
			if err != nil {
				return err
			}

			sink := logging.Init(logging.Options{
				FilePath:  cfg.LogFile,
				Console:   os.Stdout,
				Decorator: logging.SelectDecorator(os.Stdout),
			})
			sink.Infof("Logging initialized -> %s", cfg.LogFile)

			runner := workflow.NewRunner(cfg, sink)
			if code := runner.Run(cmd.Context(), steps); code != 0 {
				return NewExitError(code)
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&configPath, "config", "", "config file path (default: ./routinely.yaml)")
	fl.StringSliceVar(&steps, "steps", nil, "run specific steps only, by id or alias")
	fl.String("project-root", "", "project directory to operate on")
	fl.String("log-dir", "", "directory for persistent run logs")
	fl.String("log-file", "", "explicit log file (default: derived from log dir)")
	fl.String("lock-dir", "", "single-instance lock location")
	fl.Bool("dry-run", false, "pass preview flags to wrapped tools")
	fl.Bool("yes", false, "auto-confirm tool prompts")
	fl.Bool("fail-on-backup", false, "exit 2 when the backup step fails")
	fl.Bool("security", false, "enable the security scan step")
	fl.Bool("audit", false, "enable the dependency audit step")
	fl.Bool("git-push", true, "push the hygiene snapshot")
	fl.Int("workers", 0, "parallel workers for the reformat pass")
	fl.Int("workflow-timeout", 0, "overall timeout in seconds (0 disables)")
	fl.Int("coverage-threshold", 0, "minimum test coverage percent (0 disables)")
	fl.StringSlice("exclude", nil, "override exclusion glob patterns")

	return cmd
}
