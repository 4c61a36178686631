package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/fibre/internal/server"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live previews of the components",
		Long: `Start the preview server. Every component under the scan paths gets a page
at /component/<name>; query parameters become its props. Pages update in
place when the component file changes.

Examples:
  fibre serve
  fibre serve --port 3000
  open "http://localhost:8080/component/user-card?user.name=Ann"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}

			srv, err := server.New(env.config, env.logger)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Serving previews on http://%s\n", env.config.Address())
			return srv.Start(cmd.Context())
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	cmd.Flags().String("host", "localhost", "Host to bind to")
	_ = viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}
