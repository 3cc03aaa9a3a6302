package conf

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		validate func(string) error
		value    string
		wantErr  bool
	}{
		{"bool true", validateEnvBool, "true", false},
		{"bool with spaces", validateEnvBool, " 1 ", false},
		{"bool yes", validateEnvBool, "yes", true},
		{"port ok", validateEnvPort, "8080", false},
		{"port zero", validateEnvPort, "0", true},
		{"port too large", validateEnvPort, "70000", true},
		{"port not a number", validateEnvPort, "http", true},
		{"threshold ok", validateEnvThreshold, "0.5", false},
		{"threshold above one", validateEnvThreshold, "1.5", true},
		{"threads zero", validateEnvThreads, "0", false},
		{"threads negative", validateEnvThreads, "-1", true},
		{"scope all", validateEnvScope, "all", false},
		{"scope unknown", validateEnvScope, "valid", true},
		{"backend tflite", validateEnvBackend, "tflite", false},
		{"backend unknown", validateEnvBackend, "onnx", true},
		{"log level", validateEnvLogLevel, "trace", false},
		{"log level unknown", validateEnvLogLevel, "verbose", true},
		{"url ok", validateEnvURL, "https://example.com/detect", false},
		{"url without host", validateEnvURL, "example.com", true},
		{"path traversal", validateEnvPath, "/srv/../etc", true},
		{"path missing", validateEnvPath, "/definitely/not/here", true},
		{"path exists", validateEnvPath, "/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBindEnvVars_ReportsInvalidValues(t *testing.T) {
	t.Setenv("LABELER_PORT", "not-a-port")
	t.Setenv("LABELER_SENTRY_DSN", "https://secretkey@sentry.example/1")

	err := bindEnvVars(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LABELER_PORT")
	assert.NotContains(t, err.Error(), "LABELER_SENTRY_DSN")
}

func TestEnvBindings_KeysHaveDefaults(t *testing.T) {
	t.Parallel()

	v := viper.New()
	setDefaultConfig(v)
	for _, b := range getEnvBindings() {
		assert.True(t, v.IsSet(b.ConfigKey), "binding %s targets unknown key %s", b.EnvVar, b.ConfigKey)
	}
}
