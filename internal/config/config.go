// Package config provides configuration management for fibre using Viper
// for loading from files, environment variables, and command-line flags.
//
// Configuration comes from .fibre.yml, FIBRE_* environment variables and
// flags bound by the CLI. It covers the directive syntax the template
// compiler accepts, logging, where component files live, the preview
// server, and the file watcher.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/viper"

	"github.com/conneroisu/fibre/internal/errors"
	"github.com/conneroisu/fibre/internal/expression"
	"github.com/conneroisu/fibre/internal/logging"
	"github.com/conneroisu/fibre/internal/template"
)

type Config struct {
	Compiler   CompilerConfig   `yaml:"compiler" mapstructure:"compiler"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	Components ComponentsConfig `yaml:"components" mapstructure:"components"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Watch      WatchConfig      `yaml:"watch" mapstructure:"watch"`
}

type CompilerConfig struct {
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
	Open   string `yaml:"open" mapstructure:"open"`
	Close  string `yaml:"close" mapstructure:"close"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

type ComponentsConfig struct {
	ScanPaths       []string `yaml:"scan_paths" mapstructure:"scan_paths"`
	Extension       string   `yaml:"extension" mapstructure:"extension"`
	ExcludePatterns []string `yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
}

type ServerConfig struct {
	Host           string   `yaml:"host" mapstructure:"host"`
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// Defaults are registered with viper by SetDefaults.
var defaults = map[string]any{
	"compiler.prefix":             template.DefaultPrefix,
	"compiler.open":               expression.Interpolation.Open,
	"compiler.close":              expression.Interpolation.Close,
	"logging.level":               "info",
	"logging.format":              "text",
	"components.scan_paths":       []string{"./components"},
	"components.extension":        ".html",
	"components.exclude_patterns": []string{"*_test.html", "*.bak"},
	"server.host":                 "localhost",
	"server.port":                 8080,
	"watch.debounce":              "300ms",
}

// SetDefaults registers the default value of every key with viper.
func SetDefaults() {
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

// Load reads the configuration viper has collected, fills in anything
// left unset, and validates it.
func Load() (*Config, error) {
	SetDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Handle slices set via viper as comma separated strings
	if viper.IsSet("components.scan_paths") {
		config.Components.ScanPaths = viper.GetStringSlice("components.scan_paths")
	}
	if viper.IsSet("components.exclude_patterns") {
		config.Components.ExcludePatterns = viper.GetStringSlice("components.exclude_patterns")
	}
	if viper.IsSet("server.allowed_origins") {
		config.Server.AllowedOrigins = viper.GetStringSlice("server.allowed_origins")
	}

	// Validate configuration values
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// TemplateOptions returns the compiler options the configuration selects.
func (c *Config) TemplateOptions() template.Options {
	return template.Options{
		Prefix:     c.Compiler.Prefix,
		Delimiters: &expression.Delimiters{Open: c.Compiler.Open, Close: c.Compiler.Close},
	}
}

// LoggerConfig returns the logger settings the configuration selects.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Logging.Level); err == nil {
		cfg.Level = level
	}
	cfg.Format = c.Logging.Format
	return cfg
}

// Address returns the server's listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateCompilerConfig(&config.Compiler); err != nil {
		return fmt.Errorf("compiler config: %w", err)
	}

	if err := validateLoggingConfig(&config.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := validateComponentsConfig(&config.Components); err != nil {
		return fmt.Errorf("components config: %w", err)
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if config.Watch.Debounce < 0 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("watch debounce %s must not be negative", config.Watch.Debounce))
	}

	return nil
}

// validateCompilerConfig checks that the directive prefix can start an
// attribute name and that the delimiters are usable.
func validateCompilerConfig(config *CompilerConfig) error {
	if config.Prefix == "" {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "prefix must not be empty")
	}
	for _, r := range config.Prefix {
		if unicode.IsSpace(r) || strings.ContainsRune(`"'<>/=`, r) {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("prefix %q cannot appear in an attribute name", config.Prefix))
		}
	}

	if config.Open == "" || config.Close == "" {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "expression delimiters must not be empty")
	}
	if config.Open == config.Close {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("open and close delimiters must differ, both are %q", config.Open))
	}

	return nil
}

func validateLoggingConfig(config *LoggingConfig) error {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
	}
	switch config.Format {
	case "text", "json":
	default:
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("log format %q must be text or json", config.Format))
	}
	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

// validateComponentsConfig validates components configuration values
func validateComponentsConfig(config *ComponentsConfig) error {
	for _, path := range config.ScanPaths {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("invalid scan path '%s': %w", path, err)
		}
	}

	if !strings.HasPrefix(config.Extension, ".") || len(config.Extension) < 2 {
		return fmt.Errorf("extension %q must start with a dot", config.Extension)
	}

	for _, pattern := range config.ExcludePatterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid exclude pattern '%s': %w", pattern, err)
		}
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	// Reject path traversal attempts
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
