package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const envPrefix = "STREAMCHECK_"

// LoadFromEnv overlays STREAMCHECK_* environment variables onto cfg.
func LoadFromEnv(cfg *Config) error {
	strs := map[string]*string{
		"URL":           &cfg.Target.URL,
		"MODEL":         &cfg.Target.Model,
		"API_KEY":       &cfg.Target.APIKey,
		"PROMPTS_FILE":  &cfg.Load.PromptsFile,
		"OUTPUT":        &cfg.Output.Location,
		"LOG_LEVEL":     &cfg.Log.Level,
		"LOG_FORMAT":    &cfg.Log.Format,
		"METRICS_ADDR":  &cfg.Metrics.Addr,
		"S3_REGION":     &cfg.Output.S3.Region,
		"S3_ENDPOINT":   &cfg.Output.S3.Endpoint,
		"S3_ACCESS_KEY": &cfg.Output.S3.AccessKey,
		"S3_SECRET_KEY": &cfg.Output.S3.SecretKey,
	}
	for key, dst := range strs {
		*dst = GetEnvOrDefault(envPrefix+key, *dst)
	}

	ints := map[string]*int{
		"WORKERS":    &cfg.Load.Workers,
		"MAX_TOKENS": &cfg.Target.MaxTokens,
	}
	for key, dst := range ints {
		if v := os.Getenv(envPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q is not an integer", ErrInvalid, envPrefix, key, v)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"DURATION": &cfg.Load.Duration,
		"TIMEOUT":  &cfg.Target.Timeout,
	}
	for key, dst := range durations {
		if v := os.Getenv(envPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q is not a duration", ErrInvalid, envPrefix, key, v)
			}
			*dst = d
		}
	}

	floats := map[string]*float64{
		"MAX_ERROR_RATE":             &cfg.Thresholds.MaxErrorRate,
		"MAX_5XX_RATE":               &cfg.Thresholds.MaxServerErrorRate,
		"MIN_STREAM_COMPLETION_RATE": &cfg.Thresholds.MinStreamCompletionRate,
	}
	for key, dst := range floats {
		if v := os.Getenv(envPrefix + key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q is not a number", ErrInvalid, envPrefix, key, v)
			}
			*dst = f
		}
	}

	return nil
}

// GetEnvOrDefault returns the variable's value, or defaultValue when it is
// unset or empty.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
