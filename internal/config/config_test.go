package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FairForge/streamcheck/internal/loadtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, loadtest.DefaultThresholds(), cfg.Thresholds)
	assert.Equal(t, 4, cfg.Load.Workers)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "streamcheck.yaml", `
target:
  url: https://inference.internal:8443
  max_tokens: 20
  timeout: 15s
load:
  workers: 16
  duration: 2m
thresholds:
  max_5xx_rate: 0.01
output:
  location: s3://runs/latest.json.gz
  s3:
    region: eu-west-1
    path_style: true
`)
	cfg := Default()
	require.NoError(t, LoadFile(cfg, path))

	assert.Equal(t, "https://inference.internal:8443", cfg.Target.URL)
	assert.Equal(t, 20, cfg.Target.MaxTokens)
	assert.Equal(t, 15*time.Second, cfg.Target.Timeout)
	assert.Equal(t, 16, cfg.Load.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Load.Duration)
	assert.Equal(t, 0.01, cfg.Thresholds.MaxServerErrorRate)
	// Untouched keys keep their defaults.
	assert.Equal(t, loadtest.DefaultMaxErrorRate, cfg.Thresholds.MaxErrorRate)
	assert.Equal(t, "Qwen/Qwen2.5-0.5B-Instruct", cfg.Target.Model)
	assert.Equal(t, "eu-west-1", cfg.Output.S3.Region)
	assert.True(t, cfg.Output.S3.PathStyle)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile_Errors(t *testing.T) {
	cfg := Default()
	assert.Error(t, LoadFile(cfg, filepath.Join(t.TempDir(), "missing.yaml")))

	path := writeFile(t, "bad.yaml", "load: [not, a, map")
	assert.ErrorIs(t, LoadFile(cfg, path), ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative url", func(c *Config) { c.Target.URL = "localhost:8000" }},
		{"empty url", func(c *Config) { c.Target.URL = "" }},
		{"ftp url", func(c *Config) { c.Target.URL = "ftp://host" }},
		{"zero workers", func(c *Config) { c.Load.Workers = 0 }},
		{"zero duration", func(c *Config) { c.Load.Duration = 0 }},
		{"zero max tokens", func(c *Config) { c.Target.MaxTokens = 0 }},
		{"negative timeout", func(c *Config) { c.Target.Timeout = -time.Second }},
		{"threshold above one", func(c *Config) { c.Thresholds.MinStreamCompletionRate = 1.2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STREAMCHECK_URL", "http://gpu-node:9000")
	t.Setenv("STREAMCHECK_WORKERS", "32")
	t.Setenv("STREAMCHECK_DURATION", "45s")
	t.Setenv("STREAMCHECK_MAX_ERROR_RATE", "0.1")
	t.Setenv("STREAMCHECK_OUTPUT", "out.json")

	cfg := Default()
	require.NoError(t, LoadFromEnv(cfg))

	assert.Equal(t, "http://gpu-node:9000", cfg.Target.URL)
	assert.Equal(t, 32, cfg.Load.Workers)
	assert.Equal(t, 45*time.Second, cfg.Load.Duration)
	assert.Equal(t, 0.1, cfg.Thresholds.MaxErrorRate)
	assert.Equal(t, "out.json", cfg.Output.Location)
}

func TestLoadFromEnv_EmptyKeepsCurrent(t *testing.T) {
	t.Setenv("STREAMCHECK_MODEL", "")
	t.Setenv("STREAMCHECK_API_KEY", "token")

	cfg := Default()
	cfg.Target.Model = "from-file"
	require.NoError(t, LoadFromEnv(cfg))

	assert.Equal(t, "from-file", cfg.Target.Model)
	assert.Equal(t, "token", cfg.Target.APIKey)
}

func TestLoadFromEnv_BadValues(t *testing.T) {
	t.Setenv("STREAMCHECK_WORKERS", "many")
	assert.ErrorIs(t, LoadFromEnv(Default()), ErrInvalid)
}

func TestLoadPrompts(t *testing.T) {
	cfg := Default()
	set, err := cfg.LoadPrompts()
	require.NoError(t, err)
	assert.Equal(t, len(loadtest.DefaultPrompts), set.Len())

	cfg.Load.PromptsFile = writeFile(t, "prompts.txt", "first prompt\n\n   \n  second prompt  \n")
	set, err = cfg.LoadPrompts()
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, "second prompt", set.At(1))
}

func TestLoadPrompts_EmptyFileIsError(t *testing.T) {
	cfg := Default()
	cfg.Load.PromptsFile = writeFile(t, "prompts.txt", "\n  \n")

	_, err := cfg.LoadPrompts()
	assert.ErrorIs(t, err, ErrInvalid)

	cfg.Load.PromptsFile = filepath.Join(t.TempDir(), "nope.txt")
	_, err = cfg.LoadPrompts()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("STREAMCHECK_TEST_VALUE", "set")
	assert.Equal(t, "set", GetEnvOrDefault("STREAMCHECK_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", GetEnvOrDefault("STREAMCHECK_TEST_UNSET", "fallback"))
}
