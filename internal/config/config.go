// Package config loads run settings from a YAML file and STREAMCHECK_*
// environment variables.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/FairForge/streamcheck/internal/loadtest"
	"github.com/FairForge/streamcheck/internal/report"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a configuration that cannot drive a run.
var ErrInvalid = errors.New("config: invalid configuration")

type Config struct {
	Target     TargetConfig        `yaml:"target"`
	Load       LoadConfig          `yaml:"load"`
	Thresholds loadtest.Thresholds `yaml:"thresholds"`
	Output     OutputConfig        `yaml:"output"`
	Log        LogConfig           `yaml:"log"`
	Metrics    MetricsConfig       `yaml:"metrics"`
}

type TargetConfig struct {
	URL           string        `yaml:"url"`
	Model         string        `yaml:"model"`
	APIKey        string        `yaml:"api_key"`
	MaxTokens     int           `yaml:"max_tokens"`
	Timeout       time.Duration `yaml:"timeout"`
	SkipPreflight bool          `yaml:"skip_preflight"`
}

type LoadConfig struct {
	Workers          int           `yaml:"workers"`
	Duration         time.Duration `yaml:"duration"`
	PromptsFile      string        `yaml:"prompts_file"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

type OutputConfig struct {
	Location        string           `yaml:"location"` // path or s3://bucket/key; empty skips the artifact
	IncludeRequests bool             `yaml:"include_requests"`
	S3              report.S3Options `yaml:"s3"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			URL:       "http://localhost:8000",
			Model:     "Qwen/Qwen2.5-0.5B-Instruct",
			MaxTokens: 100,
			Timeout:   120 * time.Second,
		},
		Load: LoadConfig{
			Workers:          4,
			Duration:         30 * time.Second,
			ProgressInterval: loadtest.DefaultProgressInterval,
		},
		Thresholds: loadtest.DefaultThresholds(),
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the file
// keep their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}
	return nil
}

// Validate rejects settings that cannot drive a run.
func (c *Config) Validate() error {
	var problems []string

	u, err := url.Parse(c.Target.URL)
	if c.Target.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("target url %q must be an absolute http(s) URL", c.Target.URL))
	}
	if c.Target.MaxTokens <= 0 {
		problems = append(problems, fmt.Sprintf("max tokens must be positive, got %d", c.Target.MaxTokens))
	}
	if c.Target.Timeout <= 0 {
		problems = append(problems, fmt.Sprintf("timeout must be positive, got %v", c.Target.Timeout))
	}
	if c.Load.Workers <= 0 {
		problems = append(problems, fmt.Sprintf("workers must be positive, got %d", c.Load.Workers))
	}
	if c.Load.Duration <= 0 {
		problems = append(problems, fmt.Sprintf("duration must be positive, got %v", c.Load.Duration))
	}
	if err := c.Thresholds.Validate(); err != nil {
		problems = append(problems, strings.TrimPrefix(err.Error(), "loadtest: "))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// LoadPrompts returns the configured prompt set. Without a prompts file the
// built-in prompts are used; a file that yields no prompts is an error.
func (c *Config) LoadPrompts() (*loadtest.PromptSet, error) {
	if c.Load.PromptsFile == "" {
		return loadtest.NewPromptSet(loadtest.DefaultPrompts)
	}

	f, err := os.Open(c.Load.PromptsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: prompts file: %v", ErrInvalid, err)
	}
	defer func() { _ = f.Close() }()

	var prompts []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			prompts = append(prompts, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read prompts file: %v", ErrInvalid, err)
	}
	if len(prompts) == 0 {
		return nil, fmt.Errorf("%w: prompts file %s contains no prompts", ErrInvalid, c.Load.PromptsFile)
	}
	return loadtest.NewPromptSet(prompts)
}
