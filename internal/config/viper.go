package config

import (
	"fmt"
	"os"
	"strings"

	"secretsift/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable override
const EnvPrefix = "SECRETSIFT"

// parameterSource tracks where each parameter value came from
type parameterSource struct {
	Key    string
	Value  interface{}
	Source string
}

// flagNames maps config keys to the CLI flags bound to them
var flagNames = map[string]string{
	"aws.profile":   "profile",
	"report.output": "output",
}

// configKeys lists every configuration parameter in display order
var configKeys = []string{
	"aws.profile",
	"aws.region",
	"aws.requests_per_second",
	"aws.max_retries",
	"app.max_workers",
	"app.region_timeout",
	"app.log_format",
	"app.log_level",
	"app.progress",
	"scan.generic_min_length",
	"scan.detector_config",
	"scan.max_pages",
	"scan.instance_page_size",
	"scan.tag_page_size",
	"scan.template_page_size",
	"report.output",
	"report.keep_existing",
}

// envKey returns the environment variable that overrides key
func envKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// getParameterSource determines where a parameter value came from (config file, env var, flag, or default)
func getParameterSource(key string, cmd *cobra.Command) parameterSource {
	value := viper.Get(key)

	if cmd != nil {
		if flagName, ok := flagNames[key]; ok {
			if f := cmd.Flags().Lookup(flagName); f != nil && f.Changed {
				return parameterSource{key, value, "command line flag"}
			}
		}
	}

	if _, exists := os.LookupEnv(envKey(key)); exists {
		return parameterSource{key, value, "environment variable"}
	}

	if viper.GetViper().InConfig(key) {
		return parameterSource{key, value, "config file"}
	}

	return parameterSource{key, value, "default value"}
}

// LogConfigurationSources logs the source of each configuration parameter
func LogConfigurationSources(shouldLog bool, cmd *cobra.Command) {
	if !shouldLog {
		return
	}

	logging.Debug("Configuration parameter sources:", nil)
	for _, key := range configKeys {
		source := getParameterSource(key, cmd)
		logging.Debug(fmt.Sprintf("  %s = %v (from %s)", source.Key, source.Value, source.Source), nil)
	}
}

// InitConfig initializes the Viper configuration
func InitConfig(shouldLog bool) error {
	defaults := Default()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("aws.profile", "")
	viper.SetDefault("aws.region", defaults.Region)
	viper.SetDefault("aws.requests_per_second", defaults.RateLimit.RequestsPerSecond)
	viper.SetDefault("aws.max_retries", defaults.RateLimit.MaxRetries)
	viper.SetDefault("app.max_workers", defaults.MaxWorkers)
	viper.SetDefault("app.region_timeout", defaults.RegionTimeout)
	viper.SetDefault("app.log_format", defaults.LogFormat)
	viper.SetDefault("app.log_level", defaults.LogLevel)
	viper.SetDefault("app.progress", defaults.Progress)
	viper.SetDefault("scan.generic_min_length", defaults.GenericMinLength)
	viper.SetDefault("scan.detector_config", defaults.DetectorConfig)
	viper.SetDefault("scan.max_pages", defaults.MaxPages)
	viper.SetDefault("scan.instance_page_size", defaults.InstancePageSize)
	viper.SetDefault("scan.tag_page_size", defaults.TagPageSize)
	viper.SetDefault("scan.template_page_size", defaults.TemplatePageSize)
	viper.SetDefault("report.output", defaults.Output)
	viper.SetDefault("report.keep_existing", defaults.KeepExisting)

	// An explicit config file wins over the working-directory lookup
	if path, ok := os.LookupEnv(EnvPrefix + "_CONFIG"); ok && path != "" {
		viper.SetConfigFile(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		if shouldLog {
			logging.Debug("No config file found, using defaults and environment variables", nil)
		}
	} else if shouldLog {
		logging.Debug("Loaded config file", map[string]interface{}{
			"path": viper.ConfigFileUsed(),
		})
	}

	return nil
}

// BindFlags binds the command's flags to their configuration keys
func BindFlags(cmd *cobra.Command) error {
	for key, flagName := range flagNames {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			return fmt.Errorf("flag --%s is not defined", flagName)
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", flagName, err)
		}
	}
	return nil
}

// Load builds and validates a GlobalConfig from the current viper state
func Load() (*GlobalConfig, error) {
	cfg := Default()

	cfg.Profile = viper.GetString("aws.profile")
	cfg.Region = viper.GetString("aws.region")
	cfg.RateLimit.RequestsPerSecond = viper.GetInt("aws.requests_per_second")
	cfg.RateLimit.MaxRetries = viper.GetInt("aws.max_retries")
	cfg.MaxWorkers = viper.GetInt("app.max_workers")
	cfg.RegionTimeout = viper.GetDuration("app.region_timeout")
	cfg.LogFormat = viper.GetString("app.log_format")
	cfg.LogLevel = viper.GetString("app.log_level")
	cfg.Progress = viper.GetBool("app.progress")
	cfg.GenericMinLength = viper.GetInt("scan.generic_min_length")
	cfg.DetectorConfig = viper.GetString("scan.detector_config")
	cfg.MaxPages = viper.GetInt("scan.max_pages")
	cfg.InstancePageSize = viper.GetInt("scan.instance_page_size")
	cfg.TagPageSize = viper.GetInt("scan.tag_page_size")
	cfg.TemplatePageSize = viper.GetInt("scan.template_page_size")
	cfg.Output = viper.GetString("report.output")
	cfg.KeepExisting = viper.GetBool("report.keep_existing")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
