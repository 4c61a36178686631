package cmd

import (
	stderrors "errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check [paths...]",
		Short: "Compile every component file and report all errors",
		Long: `Walk the given directories, or the configured scan paths, and compile every
component file found. All failures are reported together; the command exits
non-zero when any file failed.

Examples:
  fibre check
  fibre check components pages`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}

			paths := args
			if len(paths) == 0 {
				paths = env.config.Components.ScanPaths
			}

			out := cmd.OutOrStdout()
			scanErr := env.scanner.ScanPaths(paths)
			if scanErr == nil {
				fmt.Fprintf(out, "%d component(s) OK\n", env.registry.Count())
				return nil
			}

			var merr *multierror.Error
			if !stderrors.As(scanErr, &merr) {
				return scanErr
			}
			for _, e := range merr.Errors {
				fmt.Fprintf(out, "FAIL %v\n", e)
			}
			fmt.Fprintf(out, "%d component(s) OK, %d failed\n", env.registry.Count(), len(merr.Errors))
			return fmt.Errorf("%d component file(s) failed to compile", len(merr.Errors))
		},
	}
}
