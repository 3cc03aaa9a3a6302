// Package conf provides configuration management for the labeler.
package conf

import "github.com/platelab/labeler/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
