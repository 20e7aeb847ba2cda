package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the feature downloader
type Config struct {
	// Remote catalog service connection parameters
	Catalog CatalogConfig `yaml:"catalog" json:"catalog"`

	// Feature ontology: which columns exist and how to treat them
	Features FeaturesConfig `yaml:"features" json:"features"`

	// Input/output path conventions
	Paths PathsConfig `yaml:"paths" json:"paths"`

	// Query pacing configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry configuration for the catalog client
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// CatalogConfig holds connection parameters for the catalog query service
type CatalogConfig struct {
	Protocol  string                    `yaml:"protocol" json:"protocol"`
	Port      int                       `yaml:"port" json:"port"`
	Timeout   int                       `yaml:"timeout" json:"timeout"` // seconds
	Instances map[string]InstanceConfig `yaml:"instances" json:"instances"`

	// Default collection to query for features
	FeaturesCollection string `yaml:"features_collection" json:"features_collection"`
}

// InstanceConfig describes one named catalog service endpoint
type InstanceConfig struct {
	Host  string `yaml:"host" json:"host"`
	Token string `yaml:"token" json:"token"`
}

// FeaturesConfig declares the known feature columns
type FeaturesConfig struct {
	// PeriodSuffix renames periodic feature columns with a trailing suffix
	// (e.g. "period" -> "period_2_0"). Empty means no renaming.
	PeriodSuffix string `yaml:"period_suffix" json:"period_suffix"`

	Ontological map[string]FeatureConfig `yaml:"ontological" json:"ontological"`
}

// FeatureConfig describes one feature column
type FeatureConfig struct {
	DType    string `yaml:"dtype" json:"dtype"`
	Periodic bool   `yaml:"periodic" json:"periodic"`
	// Impute strategy: median (default), mean or zero
	Impute string `yaml:"impute,omitempty" json:"impute,omitempty"`
	// Reference is the global fill value used when imputing without
	// self-impute; absent means fall back to the table's own statistics
	Reference *float64 `yaml:"reference,omitempty" json:"reference,omitempty"`
}

// PathsConfig holds input and output directory conventions
type PathsConfig struct {
	IDsDirectory      string `yaml:"ids_directory" json:"ids_directory"`
	FeaturesDirectory string `yaml:"features_directory" json:"features_directory"`
}

// RateLimitConfig holds query pacing configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// RetryConfig holds retry configuration for remote queries
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts" json:"max_attempts"`
	InitialBackoff int     `yaml:"initial_backoff" json:"initial_backoff"` // seconds
	MaxBackoff     int     `yaml:"max_backoff" json:"max_backoff"`         // seconds
	Multiplier     float64 `yaml:"multiplier" json:"multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			Protocol:           "https",
			Port:               443,
			Timeout:            60,
			Instances:          map[string]InstanceConfig{},
			FeaturesCollection: "ZTF_source_features_DR5",
		},
		Features: FeaturesConfig{
			PeriodSuffix: "",
			Ontological:  defaultOntology(),
		},
		Paths: PathsConfig{
			IDsDirectory:      "ids",
			FeaturesDirectory: "features",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 1,
			MaxBackoff:     60,
			Multiplier:     2.0,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// defaultOntology returns the built-in feature declarations used when no
// config file provides one. Real deployments override this from YAML.
func defaultOntology() map[string]FeatureConfig {
	return map[string]FeatureConfig{
		"ad":                    {DType: "float64"},
		"amplitude":             {DType: "float64"},
		"chi2red":               {DType: "float64"},
		"dec":                   {DType: "float64"},
		"dmdt":                  {DType: "object"},
		"f1_amp":                {DType: "float64", Periodic: true},
		"f1_phi0":               {DType: "float64", Periodic: true},
		"f1_power":              {DType: "float64", Periodic: true},
		"field":                 {DType: "int64"},
		"inv_vonneumannratio":   {DType: "float64"},
		"iqr":                   {DType: "float64"},
		"kurtosis":              {DType: "float64"},
		"median":                {DType: "float64"},
		"median_abs_dev":        {DType: "float64"},
		"n":                     {DType: "int64"},
		"norm_excess_var":       {DType: "float64"},
		"norm_peak_to_peak_amp": {DType: "float64"},
		"period":                {DType: "float64", Periodic: true},
		"ra":                    {DType: "float64"},
		"roms":                  {DType: "float64"},
		"significance":          {DType: "float64", Periodic: true},
		"skew":                  {DType: "float64"},
		"smallkurt":             {DType: "float64"},
		"stetson_j":             {DType: "float64"},
		"stetson_k":             {DType: "float64"},
		"sw":                    {DType: "float64"},
		"welch_i":               {DType: "float64"},
		"wmean":                 {DType: "float64"},
		"wstd":                  {DType: "float64"},
	}
}

// ResolveName applies the period suffix renaming rule to a feature name
func (f *FeaturesConfig) ResolveName(name string) string {
	fc, ok := f.Ontological[name]
	if !ok {
		return name
	}
	if fc.Periodic && f.PeriodSuffix != "" && f.PeriodSuffix != "None" {
		return name + "_" + f.PeriodSuffix
	}
	return name
}

// FeatureNames returns all configured feature names in sorted order, with
// the period suffix applied to periodic features
func (f *FeaturesConfig) FeatureNames() []string {
	names := make([]string, 0, len(f.Ontological))
	for name := range f.Ontological {
		names = append(names, f.ResolveName(name))
	}
	sort.Strings(names)
	return names
}

// DTypes returns the declared scalar type per resolved feature name
func (f *FeaturesConfig) DTypes() map[string]string {
	dtypes := make(map[string]string, len(f.Ontological))
	for name, fc := range f.Ontological {
		dtypes[f.ResolveName(name)] = fc.DType
	}
	return dtypes
}

// DefaultProjection returns the projection naming every configured feature
func (f *FeaturesConfig) DefaultProjection() map[string]int {
	projection := make(map[string]int, len(f.Ontological))
	for name := range f.Ontological {
		projection[f.ResolveName(name)] = 1
	}
	return projection
}

// ImputeStrategies returns the imputation strategy per resolved feature name
func (f *FeaturesConfig) ImputeStrategies() map[string]string {
	strategies := make(map[string]string, len(f.Ontological))
	for name, fc := range f.Ontological {
		strategy := fc.Impute
		if strategy == "" {
			strategy = "median"
		}
		strategies[f.ResolveName(name)] = strategy
	}
	return strategies
}

// ReferenceValues returns the configured global fill values per resolved
// feature name. Features without a reference value are omitted.
func (f *FeaturesConfig) ReferenceValues() map[string]float64 {
	values := make(map[string]float64)
	for name, fc := range f.Ontological {
		if fc.Reference != nil {
			values[f.ResolveName(name)] = *fc.Reference
		}
	}
	return values
}

// LoadFromEnv loads configuration overrides from environment variables.
// Instance tokens use LCFETCH_<INSTANCE>_TOKEN (e.g. LCFETCH_KOWALSKI_TOKEN).
func (c *Config) LoadFromEnv() error {
	for name, instance := range c.Catalog.Instances {
		envKey := fmt.Sprintf("LCFETCH_%s_TOKEN", strings.ToUpper(name))
		if token := os.Getenv(envKey); token != "" {
			instance.Token = token
			c.Catalog.Instances[name] = instance
		}
	}

	if logLevel := os.Getenv("LCFETCH_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if idsDir := os.Getenv("LCFETCH_IDS_DIR"); idsDir != "" {
		c.Paths.IDsDirectory = idsDir
	}
	if featuresDir := os.Getenv("LCFETCH_FEATURES_DIR"); featuresDir != "" {
		c.Paths.FeaturesDirectory = featuresDir
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		"lcfetch.yaml",
		"lcfetch.yml",
		".lcfetch.yaml",
		filepath.Join(os.Getenv("HOME"), ".config", "lcfetch", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".lcfetch.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Catalog.Protocol != "http" && c.Catalog.Protocol != "https" {
		errs = append(errs, errors.New("catalog protocol must be http or https"))
	}
	if c.Catalog.Port <= 0 {
		errs = append(errs, errors.New("catalog port must be positive"))
	}
	if c.Catalog.Timeout <= 0 {
		errs = append(errs, errors.New("catalog timeout must be positive"))
	}
	if c.Catalog.FeaturesCollection == "" {
		errs = append(errs, errors.New("features collection is required"))
	}

	if len(c.Features.Ontological) == 0 {
		errs = append(errs, errors.New("feature ontology must declare at least one feature"))
	}
	for name, fc := range c.Features.Ontological {
		switch fc.DType {
		case "float64", "float32", "int64", "int32", "bool", "str", "object":
		default:
			errs = append(errs, fmt.Errorf("feature %q has unknown dtype %q", name, fc.DType))
		}
	}

	if c.Paths.IDsDirectory == "" {
		errs = append(errs, errors.New("ids directory is required"))
	}
	if c.Paths.FeaturesDirectory == "" {
		errs = append(errs, errors.New("features directory is required"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("max attempts cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Environment variables > .env file > Config file > Defaults
func Load(configPath string) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".lcfetch.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
