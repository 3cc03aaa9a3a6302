// conf/utils.go various util functions for configuration package
package conf

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/platelab/labeler/internal/errors"
)

// OS name constants for runtime.GOOS comparisons.
const osWindows = "windows"

// GetDefaultConfigPaths returns the directories searched for config.yaml, in
// order. If one of them already holds a config.yaml only that one is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("config").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case osWindows:
		configPaths = []string{
			".",
			filepath.Join(homeDir, "AppData", "Roaming", AppName),
		}
	default:
		configPaths = []string{
			".",
			filepath.Join(homeDir, ".config", AppName),
			"/etc/" + AppName,
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, ConfigName+"."+ConfigType)); err == nil {
			return []string{path}, nil
		}
	}
	return configPaths, nil
}

// ExpandPath expands environment variables and a leading ~ and returns an
// absolute, cleaned path. Empty input stays empty.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	expanded := os.ExpandEnv(path)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
		}
	}
	if abs, err := filepath.Abs(expanded); err == nil {
		return abs
	}
	return filepath.Clean(expanded)
}
