// Package serve implements the labeler serve command.
package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/platelab/labeler/internal/api"
	"github.com/platelab/labeler/internal/app"
	"github.com/platelab/labeler/internal/conf"
	"github.com/platelab/labeler/internal/instancelock"
	"github.com/platelab/labeler/internal/logger"
	"github.com/platelab/labeler/internal/media"
	"github.com/platelab/labeler/internal/preview"
	"github.com/platelab/labeler/internal/triage"
)

// GetLogger returns the serve command logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("serve")
}

// Command creates the serve command.
func Command(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the labeling HTTP server",
		Long:  "Serve the labeling API over the configured media root until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(runCtx, ctx)
		},
	}
}

// Run assembles every component from ctx and serves until runCtx is done.
// Cleanups are registered on ctx and run by its Close.
func Run(runCtx context.Context, ctx *app.Context) error {
	log := GetLogger()
	settings := ctx.Settings

	sfs, err := ctx.OpenMediaRoot()
	if err != nil {
		return err
	}
	ctx.OnClose(func() { _ = sfs.Close() })

	lock, err := instancelock.Acquire(sfs.BaseDir(), conf.LockFileName)
	if err != nil {
		return err
	}
	ctx.OnClose(func() {
		if err := lock.Release(); err != nil {
			log.Warn("failed to release instance lock", logger.Error(err))
		}
	})

	if err := ctx.InstallTelemetry(); err != nil {
		log.Warn("error reporting disabled", logger.Error(err))
	}

	m, err := ctx.NewMetrics()
	if err != nil {
		return err
	}

	cat, err := ctx.NewCatalog(sfs, m)
	if err != nil {
		return err
	}

	triageOpts := []triage.Option{triage.WithInvalidator(cat)}
	if m != nil {
		triageOpts = append(triageOpts, triage.WithRecorder(m.Triage))
	}
	engine := triage.New(sfs, triageOpts...)

	det, err := ctx.NewDetector(m)
	if err != nil {
		return err
	}
	ctx.OnClose(func() { _ = det.Close() })

	svc := preview.New(sfs, det, preview.Config{
		Workers:  settings.Preview.Workers,
		Params:   ctx.DetectorParams(),
		Crop:     ctx.CropOptions(),
		Recorder: app.DetectorRecorder(m),
	})

	srv, err := api.New(api.ConfigFromSettings(settings),
		api.WithCatalog(cat),
		api.WithTriage(engine),
		api.WithPreview(svc),
		api.WithFileServer(sfs),
		api.WithMetrics(m),
		api.WithBuildInfo(ctx.Build),
	)
	if err != nil {
		return err
	}

	if counts, err := cat.Counts(runCtx); err == nil {
		log.Info("media root ready",
			logger.String("media_root", sfs.BaseDir()),
			logger.Int("unlabeled", counts[media.Unlabeled]),
			logger.Int("total", counts.Total()))
	}

	return srv.Run(runCtx)
}
