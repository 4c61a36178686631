// Package cmd provides the fibre command-line interface.
//
// Configuration is read from, in order of precedence:
//
//  1. Command-line flags (--config, --log-level, --port, ...)
//  2. FIBRE_CONFIG_FILE: path to a configuration file
//  3. FIBRE_<SECTION>_<OPTION> environment variables, e.g. FIBRE_SERVER_PORT
//  4. .fibre.yml in the current directory
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/fibre/internal/component"
	"github.com/conneroisu/fibre/internal/config"
	"github.com/conneroisu/fibre/internal/logging"
	"github.com/conneroisu/fibre/internal/scanner"
)

// NewRootCommand builds the fibre command tree.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "fibre",
		Short: "Compile, render and preview reactive HTML components",
		Long: `fibre compiles HTML component templates with ${expression} text bindings
and --directive attributes into instruction lists, renders them against state,
and serves live previews that update as the component files change.

Quick Start:
  fibre check                       Compile every component under the scan paths
  fibre compile card.html           Show the instructions a template compiles to
  fibre render card.html --set n=3  Render a component with some state
  fibre serve                       Start the live preview server`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, cfgFile)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .fibre.yml, can also use FIBRE_CONFIG_FILE env var)")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(
		newCompileCommand(),
		newRenderCommand(),
		newCheckCommand(),
		newWatchCommand(),
		newServeCommand(),
		newVersionCommand(),
	)

	return rootCmd
}

// Execute runs the command tree with the given context.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// initConfig points viper at the configuration file and the environment.
func initConfig(cmd *cobra.Command, cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("FIBRE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".fibre")
	}

	viper.SetEnvPrefix("FIBRE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); missing && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Using config file:", viper.ConfigFileUsed())
	return nil
}

// environment is what most commands need: validated configuration, a
// logger writing to the command's stderr, and a registry holding every
// component found under the scan paths.
type environment struct {
	config   *config.Config
	logger   logging.Logger
	registry *component.Registry
	scanner  *scanner.ComponentScanner
}

func setup(cmd *cobra.Command) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	lc := cfg.LoggerConfig()
	lc.Output = cmd.ErrOrStderr()
	logger := logging.NewLogger(lc).WithComponent("cli")

	registry := component.NewRegistry(component.Config{
		Compiler: cfg.TemplateOptions(),
		Logger:   logger,
	})

	return &environment{
		config:   cfg,
		logger:   logger,
		registry: registry,
		scanner: scanner.NewComponentScanner(registry, scanner.Options{
			Extension:       cfg.Components.Extension,
			ExcludePatterns: cfg.Components.ExcludePatterns,
			Logger:          logger,
		}),
	}, nil
}

// scanLibrary registers the components under the configured scan paths that
// exist. Failures are logged; the target of a command is compiled on its own.
func (e *environment) scanLibrary(ctx context.Context) {
	var dirs []string
	for _, dir := range e.config.Components.ScanPaths {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	if err := e.scanner.ScanPaths(dirs); err != nil {
		e.logger.Warn(ctx, err, "component library has errors")
	}
}

// target defines the component named by arg, which is either a component
// file or the name of a component found under the scan paths.
func (e *environment) target(ctx context.Context, arg string) (*component.Factory, error) {
	e.scanLibrary(ctx)

	name := arg
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		if err := e.scanner.ScanFile(arg); err != nil {
			return nil, err
		}
		name = scanner.ComponentName(arg)
	}

	f, ok := e.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("component %q not found", arg)
	}
	return f, nil
}
