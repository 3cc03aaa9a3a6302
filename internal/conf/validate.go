// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/labstack/gommon/bytes"

	"github.com/platelab/labeler/internal/logger"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateMainSettings,
		validateWebServerSettings,
		validateCatalogSettings,
		validateDetectorSettings,
		validateCropSettings,
		validatePreviewSettings,
		validateLoggingSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateMainSettings(s *Settings) error {
	if strings.TrimSpace(s.Main.MediaRoot) == "" {
		return fmt.Errorf("main.mediaroot must be set")
	}
	return nil
}

func validateWebServerSettings(s *Settings) error {
	var errs []string
	w := s.WebServer
	if w.Port < 1 || w.Port > 65535 {
		errs = append(errs, fmt.Sprintf("webserver.port must be between 1 and 65535, got %d", w.Port))
	}
	if w.BodyLimit != "" {
		if n, err := bytes.Parse(w.BodyLimit); err != nil || n <= 0 {
			errs = append(errs, fmt.Sprintf("webserver.bodylimit %q is not a size like 64K or 1M", w.BodyLimit))
		}
	}
	if w.ReadTimeout < 0 || w.WriteTimeout < 0 {
		errs = append(errs, "webserver timeouts must not be negative")
	}
	return joinErrs(errs)
}

func validateCatalogSettings(s *Settings) error {
	var errs []string
	if s.Catalog.Scope != "all" && s.Catalog.Scope != "unlabeled" {
		errs = append(errs, fmt.Sprintf("catalog.scope must be all or unlabeled, got %q", s.Catalog.Scope))
	}
	if s.Catalog.CacheTTL < 0 {
		errs = append(errs, "catalog.cachettl must not be negative")
	}
	return joinErrs(errs)
}

func validateDetectorSettings(s *Settings) error {
	var errs []string
	d := s.Detector
	switch d.Backend {
	case "none":
	case "tflite":
		if d.ModelPath == "" {
			errs = append(errs, "detector.modelpath is required for the tflite backend")
		}
	case "http":
		u, err := url.Parse(d.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("detector.url must be an http(s) URL for the http backend, got %q",
				logger.RedactSensitiveData(d.URL)))
		}
	default:
		errs = append(errs, fmt.Sprintf("detector.backend must be none, tflite or http, got %q", d.Backend))
	}
	if d.Threshold < 0 || d.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("detector.threshold must be between 0 and 1, got %g", d.Threshold))
	}
	if d.Threads < 0 {
		errs = append(errs, "detector.threads must not be negative")
	}
	if d.Timeout < 0 {
		errs = append(errs, "detector.timeout must not be negative")
	}
	return joinErrs(errs)
}

func validateCropSettings(s *Settings) error {
	var errs []string
	if s.Crop.Padding < 0 || s.Crop.Padding > 1 {
		errs = append(errs, fmt.Sprintf("crop.padding must be between 0 and 1, got %g", s.Crop.Padding))
	}
	if s.Crop.Quality < 1 || s.Crop.Quality > 100 {
		errs = append(errs, fmt.Sprintf("crop.quality must be between 1 and 100, got %d", s.Crop.Quality))
	}
	return joinErrs(errs)
}

func validatePreviewSettings(s *Settings) error {
	var errs []string
	if s.Preview.Workers < 0 {
		errs = append(errs, "preview.workers must not be negative")
	}
	if s.Preview.RateLimit < 0 {
		errs = append(errs, "preview.ratelimit must not be negative")
	}
	return joinErrs(errs)
}

func validateLoggingSettings(s *Settings) error {
	var errs []string
	if s.Logging.Level != "" && !logger.ValidLevel(s.Logging.Level) {
		errs = append(errs, fmt.Sprintf("logging.level %q is not a known level", s.Logging.Level))
	}
	for module, level := range s.Logging.ModuleLevels {
		if !logger.ValidLevel(level) {
			errs = append(errs, fmt.Sprintf("logging.module_levels.%s %q is not a known level", module, level))
		}
	}
	return joinErrs(errs)
}

func joinErrs(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(errs, "; "))
}
