package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "output.txt", cfg.Output)
	assert.Equal(t, 40, cfg.GenericMinLength)
	assert.Equal(t, 999, cfg.InstancePageSize)
	assert.Equal(t, 1000, cfg.TagPageSize)
	assert.Equal(t, 200, cfg.TemplatePageSize)
	assert.Equal(t, 0, cfg.MaxWorkers)
	assert.Zero(t, cfg.RegionTimeout)
	assert.False(t, cfg.KeepExisting)
	assert.Equal(t, DefaultRateLimitConfig, cfg.RateLimit)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *GlobalConfig)
		wantErr string
	}{
		{"valid", func(c *GlobalConfig) {}, ""},
		{"missing profile", func(c *GlobalConfig) { c.Profile = "" }, "profile is required"},
		{"empty output", func(c *GlobalConfig) { c.Output = "" }, "output path"},
		{"negative workers", func(c *GlobalConfig) { c.MaxWorkers = -1 }, "max workers"},
		{"negative region timeout", func(c *GlobalConfig) { c.RegionTimeout = -time.Second }, "region timeout"},
		{"generic too short", func(c *GlobalConfig) { c.GenericMinLength = 0 }, "generic detector"},
		{"generic too long", func(c *GlobalConfig) { c.GenericMinLength = 256 }, "generic detector"},
		{"generic relaxed", func(c *GlobalConfig) { c.GenericMinLength = 20 }, ""},
		{"no pages", func(c *GlobalConfig) { c.MaxPages = 0 }, "max pages"},
		{"instance page too small", func(c *GlobalConfig) { c.InstancePageSize = 4 }, "instance page size"},
		{"tag page too big", func(c *GlobalConfig) { c.TagPageSize = 1001 }, "tag page size"},
		{"template page too big", func(c *GlobalConfig) { c.TemplatePageSize = 201 }, "template page size"},
		{"zero rps", func(c *GlobalConfig) { c.RateLimit.RequestsPerSecond = 0 }, "requests per second"},
		{"zero retries", func(c *GlobalConfig) { c.RateLimit.MaxRetries = 0 }, "max retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Profile = "audit"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "secretsift"}
	cmd.Flags().StringP("profile", "p", "", "")
	cmd.Flags().StringP("output", "o", "output.txt", "")
	return cmd
}

func TestLoadFromFlags(t *testing.T) {
	resetViper(t)
	t.Chdir(t.TempDir())

	require.NoError(t, InitConfig(false))
	cmd := newRootCommand()
	require.NoError(t, BindFlags(cmd))
	require.NoError(t, cmd.Flags().Parse([]string{"-p", "audit", "-o", "report.json"}))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "audit", cfg.Profile)
	assert.Equal(t, "report.json", cfg.Output)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "command line flag", getParameterSource("aws.profile", cmd).Source)
	assert.Equal(t, "default value", getParameterSource("scan.max_pages", cmd).Source)
}

func TestLoadRequiresProfile(t *testing.T) {
	resetViper(t)
	t.Chdir(t.TempDir())

	require.NoError(t, InitConfig(false))
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadFromEnvironment(t *testing.T) {
	resetViper(t)
	t.Chdir(t.TempDir())
	t.Setenv("SECRETSIFT_AWS_PROFILE", "from-env")
	t.Setenv("SECRETSIFT_SCAN_GENERIC_MIN_LENGTH", "20")
	t.Setenv("SECRETSIFT_REPORT_KEEP_EXISTING", "true")

	require.NoError(t, InitConfig(false))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Profile)
	assert.Equal(t, 20, cfg.GenericMinLength)
	assert.True(t, cfg.KeepExisting)
	assert.Equal(t, "environment variable", getParameterSource("aws.profile", nil).Source)
}

func TestLoadFromConfigFile(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Chdir(dir)

	content := []byte("aws:\n  profile: from-file\n  region: eu-west-1\napp:\n  max_workers: 3\n  region_timeout: 90s\nscan:\n  max_pages: 7\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644))

	require.NoError(t, InitConfig(false))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Profile)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, 3, cfg.MaxWorkers)
	assert.Equal(t, 90*time.Second, cfg.RegionTimeout)
	assert.Equal(t, 7, cfg.MaxPages)
	assert.Equal(t, "config file", getParameterSource("aws.region", nil).Source)
}

func TestInitConfigRejectsBrokenFile(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aws: [unterminated"), 0o644))
	t.Setenv("SECRETSIFT_CONFIG", path)

	err := InitConfig(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestBindFlagsRequiresDefinedFlags(t *testing.T) {
	resetViper(t)
	err := BindFlags(&cobra.Command{Use: "bare"})
	require.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "SECRETSIFT_AWS_PROFILE", envKey("aws.profile"))
	assert.Equal(t, "SECRETSIFT_SCAN_TAG_PAGE_SIZE", envKey("scan.tag_page_size"))
}
