package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"lcfetch/pkg/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage lcfetch configuration files.

Configuration can be loaded from:
  - Environment variables (highest priority)
  - .env file
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as 'lcfetch.yaml'
unless a different path is specified with the --config flag.`,
	Run: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the current configuration including values from all sources.

Catalog instance tokens are masked for security.`,
	Run: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Required fields
  - Value types and ranges
  - Path accessibility`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = "lcfetch.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(os.Stderr, "configuration file already exists: %s\n", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	exampleConfig := `# lcfetch configuration file
#
# Instance tokens can also come from environment variables:
# LCFETCH_<INSTANCE>_TOKEN (e.g. LCFETCH_KOWALSKI_TOKEN), read from the
# environment or a .env file in the working directory.

# Catalog query service connection
catalog:
  # Protocol: http or https
  protocol: "https"

  # Port shared by all instances
  port: 443

  # Query timeout in seconds
  timeout: 60

  # Named instances; queries fan out over all of them and the first
  # successful response wins. Instances without a token are skipped.
  instances:
    kowalski:
      host: "kowalski.example.edu"
      token: ""
    gloria:
      host: "gloria.example.edu"
      token: ""

  # Default collection holding the feature documents
  features_collection: "ZTF_source_features_DR5"

# Feature ontology. Omit this section to use the built-in defaults.
# Each entry declares the column's dtype (float64, float32, int64, int32,
# bool, str or object), whether it is periodic (renamed by period_suffix),
# an optional impute strategy (median, mean, zero) and an optional
# reference fill value used when imputing with --self-impute=false.
features:
  # Suffix appended to periodic feature names, e.g. "period" -> "period_2_0".
  # Leave empty (or "None") to keep the plain names.
  period_suffix: ""

# Input/output path conventions
paths:
  # Identifier lists: <ids_directory>/field_<f>/data_ccd_<cc>_quad_<q>.json
  ids_directory: "ids"

  # Output segments: <features_directory>/field_<f>/<region>_iter_<n>.parquet
  features_directory: "features"

# Query pacing
rate_limit:
  # Queries per minute across all instances
  requests_per_minute: 60

# Retry configuration for transient catalog faults
retry:
  # Maximum number of attempts per instance
  max_attempts: 3

  # Initial backoff duration in seconds
  initial_backoff: 1

  # Maximum backoff duration in seconds
  max_backoff: 60

  # Backoff multiplier
  multiplier: 2.0

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: "info"

  # Log file path (optional)
  # Leave empty to log to stderr only
  file: ""
`

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create configuration file: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the configuration file and add your catalog hosts and tokens")
	fmt.Println("2. Run 'lcfetch config validate' to check the configuration")
	fmt.Println("3. Start downloading with 'lcfetch fetch <field> --write-results'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Mask tokens before display
	displayCfg := *cfg
	displayCfg.Catalog.Instances = make(map[string]config.InstanceConfig, len(cfg.Catalog.Instances))
	for name, instance := range cfg.Catalog.Instances {
		instance.Token = maskToken(instance.Token)
		displayCfg.Catalog.Instances[name] = instance
	}

	data, err := yaml.Marshal(&displayCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to format configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Current configuration:")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Environment variables (LCFETCH_*)")
	fmt.Println("2. .env file")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (searched in standard locations)")
	}
	fmt.Println("4. Default values")
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	if configFile == "" {
		possiblePaths := []string{
			"lcfetch.yaml",
			"lcfetch.yml",
			".lcfetch.yaml",
			filepath.Join(os.Getenv("HOME"), ".config", "lcfetch", "config.yaml"),
			filepath.Join(os.Getenv("HOME"), ".lcfetch.yaml"),
		}

		for _, path := range possiblePaths {
			if _, err := os.Stat(path); err == nil {
				configFile = path
				break
			}
		}

		if configFile == "" {
			fmt.Fprintln(os.Stderr, "no configuration file found; specify one with --config")
			os.Exit(1)
		}
	}

	fmt.Println("Validating configuration:", configFile)

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration validation failed: %v\n", err)
		os.Exit(1)
	}

	var warnings []string
	var errs []string

	// Tokens are not required at validation time but fetch needs at least one
	tokens := 0
	for _, instance := range cfg.Catalog.Instances {
		if instance.Token != "" {
			tokens++
		}
	}
	if len(cfg.Catalog.Instances) == 0 {
		warnings = append(warnings, "no catalog instances configured")
	} else if tokens == 0 {
		warnings = append(warnings, "no catalog instance has a token configured")
	}

	if err := os.MkdirAll(cfg.Paths.FeaturesDirectory, 0755); err != nil {
		errs = append(errs, fmt.Sprintf("cannot create features directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			errs = append(errs, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	if len(errs) > 0 {
		fmt.Fprintln(os.Stderr, "configuration has errors:")
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  - %s\n", e)
		}
		os.Exit(1)
	}

	if len(warnings) > 0 {
		fmt.Println("Configuration warnings:")
		for _, warn := range warnings {
			fmt.Printf("  - %s\n", warn)
		}
		fmt.Println()
	}

	fmt.Println("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Catalog instances: %d (%d with tokens)\n", len(cfg.Catalog.Instances), tokens)
	fmt.Printf("  Features collection: %s\n", cfg.Catalog.FeaturesCollection)
	fmt.Printf("  Feature columns: %d\n", len(cfg.Features.Ontological))
	fmt.Printf("  IDs directory: %s\n", cfg.Paths.IDsDirectory)
	fmt.Printf("  Features directory: %s\n", cfg.Paths.FeaturesDirectory)
	fmt.Printf("  Rate limit: %d requests/minute\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Printf("  Max retries: %d\n", cfg.Retry.MaxAttempts)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
}

// maskToken hides all but the edges of a token
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) > 8 {
		return token[:4] + "..." + token[len(token)-4:]
	}
	return "***"
}
