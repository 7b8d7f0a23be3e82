package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roman-kulish/spectrum-waterfall/internal/colormap"
	"github.com/roman-kulish/spectrum-waterfall/internal/waterfall"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	mapper := colormap.New(colormap.Palette(config.Palette))
	raster := waterfall.NewRaster(config.Width, config.Height, config.PixelRatio, mapper)

	var ann *waterfall.Annotator
	if config.FontPath != "" {
		var err error
		if ann, err = waterfall.NewAnnotator(config.FontPath); err != nil {
			return fmt.Errorf("loading annotation font: %w", err)
		}
	}

	session := waterfall.NewSession(config.URL, raster, waterfall.WithLogger(logger))
	defer session.Stop()

	logger.Info("streaming waterfall",
		slog.Group("view",
			slog.String("endpoint", config.URL),
			slog.String("palette", config.Palette),
			slog.Int("width", raster.Width()),
			slog.Int("height", raster.Height()),
		))

	session.Start(ctx)

	if config.CenterHz > 0 || config.BandwidthHz > 0 {
		cfg := session.Viewport()
		if config.CenterHz > 0 {
			cfg.CenterHz = config.CenterHz
		}
		if config.BandwidthHz > 0 {
			cfg.BandwidthHz = config.BandwidthHz
		}
		session.Retune(cfg)
	}

	if every := config.SnapshotEvery(); every > 0 {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return writeSnapshot(session, config, ann, logger)
			case <-ticker.C:
				if err := writeSnapshot(session, config, ann, logger); err != nil {
					logger.Warn("snapshot failed", slog.String("error", err.Error()))
				}
			}
		}
	}

	<-ctx.Done()
	return writeSnapshot(session, config, ann, logger)
}

// writeSnapshot rewrites the output file in place with the current raster, so
// the newest snapshot is always at the configured path.
func writeSnapshot(session *waterfall.Session, config *Config, ann *waterfall.Annotator, logger *slog.Logger) error {
	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}

	if err = session.Snapshot(out, ann); err != nil {
		out.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err = out.Close(); err != nil {
		return err
	}

	stats := session.Stats()
	logger.Info("snapshot written",
		slog.String("destination", config.OutputFile),
		slog.String("state", string(session.State())),
		slog.Uint64("frames", stats.FramesReceived),
		slog.Uint64("dropped", stats.MessagesDropped))
	return nil
}
