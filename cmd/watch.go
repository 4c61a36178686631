package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/fibre/internal/component"
	"github.com/conneroisu/fibre/internal/watcher"
)

func newWatchCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Recompile components as their files change",
		Long: `Compile every component under the configured scan paths, then watch those
paths and recompile changed files. Compile errors are reported as they
happen; the previous definition of a failing component stays registered.

Examples:
  fibre watch
  fibre watch --verbose`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			fileWatcher, err := watcher.NewFileWatcher(env.config.Watch.Debounce, env.logger)
			if err != nil {
				return fmt.Errorf("failed to create file watcher: %w", err)
			}
			defer fileWatcher.Stop()

			fileWatcher.AddFilter(watcher.NoGitFilter)
			fileWatcher.AddFilter(env.scanner.Matches)
			fileWatcher.AddHandler(func(events []watcher.ChangeEvent) error {
				if verbose {
					for _, event := range events {
						fmt.Fprintf(out, "%s: %s\n", event.Type, event.Path)
					}
				}
				if err := env.scanner.HandleChanges(events); err != nil {
					fmt.Fprintf(out, "FAIL %v\n", err)
				}
				return nil
			})

			for _, path := range env.config.Components.ScanPaths {
				if err := fileWatcher.AddRecursive(path); err != nil {
					env.logger.Warn(ctx, err, "failed to watch path", "path", path)
					continue
				}
				fmt.Fprintf(out, "Watching %s\n", path)
			}

			if err := env.scanner.ScanPaths(env.config.Components.ScanPaths); err != nil {
				fmt.Fprintf(out, "FAIL %v\n", err)
			}
			fmt.Fprintf(out, "Found %d components\n", env.registry.Count())

			events := env.registry.Watch()
			defer env.registry.UnWatch(events)

			if err := fileWatcher.Start(ctx); err != nil {
				return fmt.Errorf("failed to start file watcher: %w", err)
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case event := <-events:
					if verbose || event.Type == component.EventTypeRemoved {
						fmt.Fprintf(out, "%s %s\n", event.Type, event.Name)
					} else {
						fmt.Fprintf(out, "compiled %s\n", event.Name)
					}
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	return cmd
}
