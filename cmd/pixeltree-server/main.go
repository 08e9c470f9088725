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
	"syscall"

	"dev.acmcsuf.com/pixeltree"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"libdb.so/hserve"
	"libdb.so/ledctl"
)

var (
	listenAddr   = "0.0.0.0:7689"
	pixelCount   = 1000
	gpioPin      = 18
	dmaChannel   = 10
	maxFrameRate = 0
	noAck        = false
	httpAdmin    = "127.0.0.1:9003"
	verbose      = false
)

func init() {
	pflag.StringVarP(&listenAddr, "addr", "a", listenAddr, "TCP address to accept frames on")
	pflag.IntVarP(&pixelCount, "pixels", "n", pixelCount, "number of pixels on the strip")
	pflag.IntVar(&gpioPin, "gpio", gpioPin, "GPIO pin the strip is connected to")
	pflag.IntVar(&dmaChannel, "dma", dmaChannel, "DMA channel used to drive the strip")
	pflag.IntVar(&maxFrameRate, "max-fps", maxFrameRate, "flush the strip at most this often instead of once per frame")
	pflag.BoolVar(&noAck, "no-ack", noAck, "do not acknowledge frames")
	pflag.StringVarP(&httpAdmin, "http-admin-addr", "A", httpAdmin, "HTTP admin server address, empty to disable")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose logging")
}

var ws281xConfig = ledctl.WS281xConfig{
	ColorOrder:   ledctl.BGROrder,
	ColorModel:   ledctl.RGBModel,
	PWMFrequency: 800000,
}

func main() {
	log.SetFlags(0)
	pflag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05 PM", // extended time.Kitchen
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	ws281xCfg := ws281xConfig
	ws281xCfg.NumPixels = pixelCount
	ws281xCfg.DMAChannel = dmaChannel
	ws281xCfg.GPIOPins = []int{gpioPin}

	ws281x, err := ledctl.NewWS281x(ws281xCfg)
	if err != nil {
		return fmt.Errorf("failed to create a WS281x controller: %v", err)
	}

	controller := newLEDController(ledControlConfig{
		Controller:   ws281x,
		PixelCount:   pixelCount,
		MaxFrameRate: maxFrameRate,
		Logger:       logger.With("component", "led-controller"),
	})

	server, err := pixeltree.NewServer(pixeltree.ServerOpts{
		PixelCount: pixelCount,
		Ack:        !noAck,
		Handler:    controller,
		Logger:     logger.With("component", "server"),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		controller.start(ctx)
		return nil
	})

	errg.Go(func() error {
		logger.Info(
			"accepting frames",
			"addr", listenAddr,
			"pixels", pixelCount,
			"ack", !noAck)

		return server.Serve(ctx, l)
	})

	if httpAdmin != "" {
		errg.Go(func() error {
			logger.Info(
				"starting admin HTTP server",
				"addr", httpAdmin)

			return hserve.ListenAndServe(ctx, httpAdmin, newAdminHandler(server))
		})
	}

	err = errg.Wait()

	// Leave the strip dark.
	if blankErr := controller.HandleFrame(pixeltree.NewPixelBuffer(pixelCount)); blankErr != nil {
		logger.Warn(
			"failed to blank LED strip",
			"error", blankErr)
	}
	if maxFrameRate > 0 {
		if flushErr := ws281x.Flush(); flushErr != nil {
			logger.Warn(
				"failed to blank LED strip",
				"error", flushErr)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
