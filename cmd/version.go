package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/fibre/internal/version"
)

func newVersionCommand() *cobra.Command {
	format := newOutputFormat("text", "text", "json", "yaml")
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version information for fibre: the version, git commit, build
time, Go version and target platform.

Examples:
  fibre version
  fibre version --short
  fibre version --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.GetBuildInfo()
			out := cmd.OutOrStdout()

			switch {
			case format.String() != "text":
				return encode(out, format.String(), info)
			case short:
				_, err := fmt.Fprintln(out, info.Short())
				return err
			default:
				_, err := fmt.Fprintln(out, info.String())
				return err
			}
		},
	}

	addFormatFlag(cmd.Flags(), format)
	cmd.Flags().BoolVar(&short, "short", false, "Show short version only")

	return cmd
}
