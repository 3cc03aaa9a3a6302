package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level        string            `yaml:"level" json:"level"`                                           // default log level for all modules
	JSON         bool              `yaml:"json" json:"json"`                                             // emit JSON on stdout instead of text
	File         string            `yaml:"file" json:"file"`                                             // optional JSON log file path
	ModuleLevels map[string]string `yaml:"module_levels" json:"module_levels" mapstructure:"module_levels"` // per-module log levels
}

// DefaultLogLevel is used when no level is configured.
const DefaultLogLevel = "info"

// LogFilePermissions is the mode used when creating log files.
const LogFilePermissions = 0o600

func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg == nil {
		return
	}
	if cfg.Level == "" {
		cfg.Level = DefaultLogLevel
	}
}

// ValidLevel reports whether level names a known log level.
func ValidLevel(level string) bool {
	switch LogLevel(level) {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}
