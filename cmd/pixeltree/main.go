package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"dev.acmcsuf.com/pixeltree"
	"dev.acmcsuf.com/pixeltree/effects"
	"dev.acmcsuf.com/pixeltree/pixelmap"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"libdb.so/hserve"
)

func init() {
	registerFlags(pflag.CommandLine)
}

func main() {
	log.SetFlags(0)
	pflag.Parse()

	cfg, err := loadConfig(pflag.CommandLine)
	if err != nil {
		log.Fatalln(err)
	}

	logHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel(cfg.Verbose),
		TimeFormat: "15:04:05 PM", // extended time.Kitchen
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	// The scheduler stops us with SIGTERM at sunrise.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	pixelMap, err := pixelmap.Load(cfg.PixelMap)
	if err != nil {
		return fmt.Errorf("failed to load pixel map: %w", err)
	}

	pool, err := effects.New(pixelMap, cfg.Effects...)
	if err != nil {
		return fmt.Errorf("failed to create effects: %w", err)
	}

	sink, err := dialSink(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to pixel server: %w", err)
	}
	defer sink.Close()

	registry := metrics.NewRegistry()

	animator, err := pixeltree.NewAnimator(pixeltree.AnimatorOpts{
		FPS:        cfg.FPS,
		PixelCount: pixelMap.Len(),
		Sink:       sink,
		Logger:     logger.With("component", "animator"),
		Metrics:    registry,
	})
	if err != nil {
		return fmt.Errorf("failed to create animator: %w", err)
	}

	coordinator, err := pixeltree.NewCoordinator(pixeltree.CoordinatorOpts{
		Animator:      animator,
		Effects:       pool,
		MinEffectTime: cfg.MinEffectTime,
		MaxEffectTime: cfg.MaxEffectTime,
		FadeTime:      cfg.FadeTime,
		Logger:        logger.With("component", "coordinator"),
		Metrics:       registry,
	})
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		return coordinator.Run(ctx)
	})

	if cfg.HTTPAdminAddr != "" {
		errg.Go(func() error {
			admin := newAdminHandler(coordinator, registry, logLevel(cfg.Verbose))

			logger.Info(
				"starting admin HTTP server",
				"addr", cfg.HTTPAdminAddr)

			return hserve.ListenAndServe(ctx, cfg.HTTPAdminAddr, admin)
		})
	}

	if err := errg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func dialSink(ctx context.Context, cfg config) (pixeltree.FrameSink, error) {
	if cfg.Sim != "" {
		return pixeltree.DialUnix(ctx, cfg.Sim, cfg.SendTimeout)
	}

	addr := net.JoinHostPort(cfg.TargetIP, strconv.Itoa(cfg.TargetPort))
	return pixeltree.DialTCP(ctx, addr, pixeltree.TCPClientOpts{
		SkipAck: cfg.SkipAck,
		Timeout: cfg.SendTimeout,
	})
}

func logLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
