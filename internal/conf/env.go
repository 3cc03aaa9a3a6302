// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/platelab/labeler/internal/logger"
)

// envPrefix is prepended to every automatically bound variable.
const envPrefix = "LABELER"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly documented environment variables.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"main.mediaroot", "LABELER_MEDIA_ROOT", validateEnvPath},
		{"webserver.host", "LABELER_HOST", nil},
		{"webserver.port", "LABELER_PORT", validateEnvPort},

		{"catalog.scope", "LABELER_CATALOG_SCOPE", validateEnvScope},

		{"detector.backend", "LABELER_DETECTOR_BACKEND", validateEnvBackend},
		{"detector.modelpath", "LABELER_DETECTOR_MODELPATH", validateEnvPath},
		{"detector.url", "LABELER_DETECTOR_URL", validateEnvURL},
		{"detector.threshold", "LABELER_DETECTOR_THRESHOLD", validateEnvThreshold},
		{"detector.threads", "LABELER_DETECTOR_THREADS", validateEnvThreads},

		{"logging.level", "LABELER_LOG_LEVEL", validateEnvLogLevel},
		{"logging.json", "LABELER_LOG_JSON", validateEnvBool},

		{"telemetry.metrics", "LABELER_METRICS", validateEnvBool},
		{"telemetry.sentrydsn", "LABELER_SENTRY_DSN", validateEnvURL},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v",
					binding.EnvVar, logger.RedactSensitiveData(envValue), err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// configureEnvironmentVariables enables LABELER_SECTION_KEY overrides for
// every key plus the explicit bindings above.
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return bindEnvVars(v)
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvThreshold(value string) error {
	threshold, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("invalid threshold: %w", err)
	}
	if threshold < 0.0 || threshold > 1.0 {
		return fmt.Errorf("threshold must be between 0.0 and 1.0, got %g", threshold)
	}
	return nil
}

func validateEnvThreads(value string) error {
	threads, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid threads: %w", err)
	}
	if threads < 0 {
		return fmt.Errorf("threads must be non-negative, got %d", threads)
	}
	return nil
}

func validateEnvScope(value string) error {
	return validateOneOf("scope", value, "all", "unlabeled")
}

func validateEnvBackend(value string) error {
	return validateOneOf("backend", value, "none", "tflite", "http")
}

func validateEnvLogLevel(value string) error {
	if !logger.ValidLevel(value) {
		return fmt.Errorf("unknown log level %q", value)
	}
	return nil
}

func validateOneOf(what, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", what, strings.Join(allowed, ", "), value)
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL must include scheme and host")
	}
	return nil
}

func validateEnvPath(value string) error {
	cleanedPath := filepath.Clean(value)
	for part := range strings.SplitSeq(filepath.ToSlash(value), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal detected: %s", value)
		}
	}
	if _, err := os.Stat(cleanedPath); os.IsNotExist(err) {
		return fmt.Errorf("warning: path does not exist: %s", cleanedPath)
	}
	return nil
}
