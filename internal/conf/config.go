// config.go: settings struct and functions to load and print the labeler configuration.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/platelab/labeler/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings holds the media root location.
type MainSettings struct {
	MediaRoot  string // directory holding the unlabeled, valid, invalid and skipped subtrees
	CreateDirs bool   // create missing category subtrees at startup
}

// WebServerSettings configures the HTTP listener.
type WebServerSettings struct {
	Host         string
	Port         int
	BodyLimit    string // echo body limit, e.g. "1M"
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr returns host:port.
func (w WebServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// CatalogSettings configures image listing.
type CatalogSettings struct {
	Scope    string        // "all" or "unlabeled"
	CacheTTL time.Duration // 0 disables the listing cache
}

// DetectorSettings configures plate detection.
type DetectorSettings struct {
	Backend   string        // none, tflite or http
	ModelPath string        // tflite model file
	URL       string        // http inference endpoint
	Timeout   time.Duration // http request timeout
	Threshold float64       // minimum confidence of a plate
	ClassID   int           // model class of license plates
	Threads   int           // tflite threads, 0 for physical cores
}

// CropSettings configures rendered crops.
type CropSettings struct {
	Padding float64 // fraction of the box added on every side
	Quality int     // JPEG quality
}

// PreviewSettings bounds on-demand crop work.
type PreviewSettings struct {
	Workers   int     // concurrent crop pipelines, 0 for GOMAXPROCS
	RateLimit float64 // crop requests per second per client, 0 disables
}

// TelemetrySettings configures metrics and error reporting.
type TelemetrySettings struct {
	Metrics   bool   // expose /metrics
	SentryDSN string `yaml:"sentrydsn"` // opt-in error reporting
}

// Settings is the complete labeler configuration.
type Settings struct {
	Debug     bool
	Main      MainSettings
	WebServer WebServerSettings
	Catalog   CatalogSettings
	Detector  DetectorSettings
	Crop      CropSettings
	Preview   PreviewSettings
	Logging   logger.LoggingConfig
	Telemetry TelemetrySettings
}

// Load reads configuration into a Settings value. Sources in increasing
// precedence: defaults, the config file, environment variables and flags
// already bound to v. configFile may be empty to search the default paths;
// a missing file is not an error, defaults apply.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	settings.Main.MediaRoot = ExpandPath(settings.Main.MediaRoot)

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

// initViper sets defaults, environment bindings and reads the config file.
func initViper(v *viper.Viper, configFile string) error {
	v.SetConfigType(ConfigType)
	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("fatal error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName(ConfigName)
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	GetLogger().Debug("config file loaded", logger.String("path", v.ConfigFileUsed()))
	return nil
}

// DefaultConfig returns the annotated default configuration file.
func DefaultConfig() []byte {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		// The file is embedded at build time.
		panic(fmt.Sprintf("embedded config.yaml missing: %v", err))
	}
	return data
}

// WriteDefaultConfig writes the default configuration to path. An existing
// file is never replaced.
func WriteDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // operator-supplied path
	if err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}
	if _, err := f.Write(DefaultConfig()); err != nil {
		_ = f.Close()
		return fmt.Errorf("error writing config file: %w", err)
	}
	return f.Close()
}

// redacted replaces configured secrets in printed configuration.
const redacted = "[REDACTED]"

// MarshalYAML renders settings as YAML with secrets redacted.
func MarshalYAML(s *Settings) ([]byte, error) {
	out := *s
	if out.Telemetry.SentryDSN != "" {
		out.Telemetry.SentryDSN = redacted
	}
	out.Detector.URL = logger.RedactSensitiveData(out.Detector.URL)

	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}
