package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"dev.acmcsuf.com/pixeltree"
	"dev.acmcsuf.com/pixeltree/pixelmap"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"libdb.so/hserve"
)

//go:embed frontend
var frontendFS embed.FS
var frontendFilesFS, _ = fs.Sub(frontendFS, "frontend")

var (
	socketPath  = "./tree_sim.sock"
	tcpAddr     = ""
	httpAddr    = ":9001"
	pixelMapCSV = "pixel-map.csv"
	verbose     = false
)

func init() {
	pflag.StringVarP(&socketPath, "socket", "s", socketPath, "unix socket to accept frames on")
	pflag.StringVar(&tcpAddr, "tcp-addr", tcpAddr, "also accept acknowledged frames over TCP on this address")
	pflag.StringVarP(&httpAddr, "http-addr", "a", httpAddr, "HTTP server address for the viewer")
	pflag.StringVar(&pixelMapCSV, "pixel-map", pixelMapCSV, "CSV file of pixel positions")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose logging")
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

	if err := run(ctx, logger, level); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, logger *slog.Logger, level slog.Level) error {
	pixelMap, err := pixelmap.Load(pixelMapCSV)
	if err != nil {
		return fmt.Errorf("failed to load pixel map: %w", err)
	}

	errg, ctx := errgroup.WithContext(ctx)

	hub := newViewerHub(ctx, pixelMap, logger.With("component", "viewers"))

	// A previous run that was killed leaves its socket file behind.
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	unixServer, err := pixeltree.NewServer(pixeltree.ServerOpts{
		PixelCount: pixelMap.Len(),
		Handler:    hub,
		Logger:     logger.With("component", "unix-server"),
	})
	if err != nil {
		return fmt.Errorf("failed to create unix server: %w", err)
	}

	var lc net.ListenConfig

	unixListener, err := lc.Listen(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on unix socket: %w", err)
	}

	errg.Go(func() error {
		logger.Info(
			"accepting frames",
			"socket", socketPath,
			"pixels", pixelMap.Len())

		return unixServer.Serve(ctx, unixListener)
	})

	if tcpAddr != "" {
		tcpServer, err := pixeltree.NewServer(pixeltree.ServerOpts{
			PixelCount: pixelMap.Len(),
			Ack:        true,
			Handler:    hub,
			Logger:     logger.With("component", "tcp-server"),
		})
		if err != nil {
			unixListener.Close()
			return fmt.Errorf("failed to create TCP server: %w", err)
		}

		tcpListener, err := lc.Listen(ctx, "tcp", tcpAddr)
		if err != nil {
			unixListener.Close()
			return fmt.Errorf("failed to listen on TCP: %w", err)
		}

		errg.Go(func() error {
			logger.Info(
				"accepting frames",
				"addr", tcpAddr,
				"pixels", pixelMap.Len())

			return tcpServer.Serve(ctx, tcpListener)
		})
	}

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(httplog.NewLogger("pixeltree-sim", httplog.Options{
		LogLevel: level,
		Concise:  true,
	})))

	r.Get("/pixel-map.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		if err := pixelMap.WriteCSV(w); err != nil {
			logger.Warn(
				"failed to write pixel map",
				"error", err)
		}
	})
	r.Get("/ws", hub.handleWS)
	r.Mount("/", http.FileServer(http.FS(frontendFilesFS)))

	errg.Go(func() error {
		logger.Info(
			"starting HTTP server",
			"addr", httpAddr)

		return hserve.ListenAndServe(ctx, httpAddr, r)
	})

	if err := errg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
