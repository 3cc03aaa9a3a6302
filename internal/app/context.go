// Package app holds the state shared by every labeler command: the loaded
// settings, the central logger and constructors for the components that
// commands assemble from those settings.
package app

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/platelab/labeler/internal/buildinfo"
	"github.com/platelab/labeler/internal/catalog"
	"github.com/platelab/labeler/internal/conf"
	"github.com/platelab/labeler/internal/crop"
	"github.com/platelab/labeler/internal/detector"
	"github.com/platelab/labeler/internal/errors"
	"github.com/platelab/labeler/internal/logger"
	"github.com/platelab/labeler/internal/media"
	"github.com/platelab/labeler/internal/observability"
	"github.com/platelab/labeler/internal/observability/metrics"
	"github.com/platelab/labeler/internal/securefs"
	"github.com/platelab/labeler/internal/telemetry"
)

// GetLogger returns the app module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}

// telemetryFlushTimeout bounds how long shutdown waits for queued error reports.
const telemetryFlushTimeout = 2 * time.Second

// Context holds the overall application state for one command invocation.
type Context struct {
	Viper      *viper.Viper
	ConfigFile string
	Settings   *conf.Settings
	Build      *buildinfo.Context

	central *logger.CentralLogger
	closers []func()
}

// NewContext creates an empty context with its own viper instance.
func NewContext() *Context {
	return &Context{
		Viper: viper.New(),
		Build: buildinfo.Current(),
	}
}

// Load reads the configuration and installs the central logger.
func (c *Context) Load() error {
	settings, err := conf.Load(c.Viper, c.ConfigFile)
	if err != nil {
		return err
	}
	c.Settings = settings
	return c.initLogging()
}

func (c *Context) initLogging() error {
	cfg := c.Settings.Logging
	if c.Settings.Debug {
		cfg.Level = string(logger.LogLevelDebug)
	}
	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	c.central = central
	return nil
}

// OnClose registers fn to run when the context is closed, in reverse order.
func (c *Context) OnClose(fn func()) {
	c.closers = append(c.closers, fn)
}

// Close runs registered cleanups and flushes the logger.
func (c *Context) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
	if c.central != nil {
		if err := c.central.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", err)
		}
	}
}

// InstallTelemetry enables Sentry error reporting when a DSN is configured.
// Pending reports are flushed by Close.
func (c *Context) InstallTelemetry() error {
	r, err := telemetry.Install(telemetry.Options{
		DSN:     c.Settings.Telemetry.SentryDSN,
		Release: c.Build.GetVersion(),
	})
	if err != nil {
		return err
	}
	if r.IsEnabled() {
		c.OnClose(func() { r.Flush(telemetryFlushTimeout) })
	}
	return nil
}

// OpenMediaRoot opens the configured media root. A missing root is fatal.
// With main.createdirs the category subtrees are created inside an existing root.
func (c *Context) OpenMediaRoot() (*securefs.SecureFS, error) {
	root := c.Settings.Main.MediaRoot
	info, err := os.Stat(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, errors.New(fmt.Errorf("media root %s does not exist", root)).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("media_root", root).
			Build()
	case err != nil:
		return nil, errors.New(fmt.Errorf("media root %s: %w", root, err)).
			Component("app").
			Category(errors.CategoryFileIO).
			Build()
	case !info.IsDir():
		return nil, errors.New(fmt.Errorf("media root %s is not a directory", root)).
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sfs, err := securefs.New(root)
	if err != nil {
		return nil, err
	}

	if c.Settings.Main.CreateDirs {
		for _, category := range media.Categories {
			if err := sfs.MkdirAll(string(category), 0o755); err != nil {
				_ = sfs.Close()
				return nil, err
			}
		}
	}
	return sfs, nil
}

// NewMetrics returns the metrics registry, or nil when metrics are disabled.
func (c *Context) NewMetrics() (*observability.Metrics, error) {
	if !c.Settings.Telemetry.Metrics {
		return nil, nil
	}
	return observability.NewMetrics(c.detectorBackend())
}

// NewCatalog creates the catalog for sfs.
func (c *Context) NewCatalog(sfs *securefs.SecureFS, m *observability.Metrics) (*catalog.Catalog, error) {
	opts := catalog.Options{
		Scope:    catalog.Scope(c.Settings.Catalog.Scope),
		CacheTTL: c.Settings.Catalog.CacheTTL,
	}
	if m != nil {
		opts.Recorder = m.Catalog
	}
	return catalog.New(sfs, opts)
}

// NewDetector creates the configured detector backend.
func (c *Context) NewDetector(m *observability.Metrics) (detector.Detector, error) {
	d := c.Settings.Detector
	cfg := detector.Config{
		Backend:   c.detectorBackend(),
		ModelPath: conf.ExpandPath(d.ModelPath),
		Threads:   d.Threads,
		URL:       d.URL,
		Timeout:   d.Timeout,
	}
	if m != nil {
		cfg.Recorder = m.Detector
	}
	det, err := detector.New(cfg)
	if err != nil {
		return nil, err
	}
	GetLogger().Info("detector ready", logger.String("backend", det.Name()))
	return det, nil
}

// DetectorParams returns the detection acceptance parameters.
func (c *Context) DetectorParams() detector.Params {
	return detector.Params{
		Threshold: c.Settings.Detector.Threshold,
		ClassID:   c.Settings.Detector.ClassID,
	}
}

// CropOptions returns the crop rendering options.
func (c *Context) CropOptions() crop.Options {
	return crop.Options{
		Padding: c.Settings.Crop.Padding,
		Quality: c.Settings.Crop.Quality,
	}
}

// DetectorRecorder returns the detector metrics recorder or nil.
func DetectorRecorder(m *observability.Metrics) metrics.Recorder {
	if m == nil {
		return nil
	}
	return m.Detector
}

func (c *Context) detectorBackend() string {
	if c.Settings.Detector.Backend == "" {
		return detector.BackendNone
	}
	return c.Settings.Detector.Backend
}
