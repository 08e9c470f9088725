// Command pixeltree-fill sets every pixel to one color. It is handy for
// checking the wiring and for turning the tree off by hand.
//
// Pixel servers go dark when their client disconnects, so by default the
// connection is held open until the command is interrupted.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"dev.acmcsuf.com/pixeltree"
	"dev.acmcsuf.com/pixeltree/pixelmap"
	"github.com/lmittmann/tint"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
)

var (
	targetIP    = os.Getenv("PIXEL_TARGET_IP")
	targetPort  = 7689
	pixelCount  = 1000
	pixelMapCSV = ""
	color       = "ffffff"
	simSocket   = ""
	sendTimeout = 5 * time.Second
	hold        = true
	verbose     = false
)

func init() {
	if targetIP == "" {
		targetIP = "127.0.0.1"
	}
	if port, err := strconv.Atoi(os.Getenv("PIXEL_TARGET_PORT")); err == nil {
		targetPort = port
	}

	pflag.StringVar(&targetIP, "target-ip", targetIP, "IP address of the pixel server ($PIXEL_TARGET_IP)")
	pflag.IntVar(&targetPort, "target-port", targetPort, "port of the pixel server ($PIXEL_TARGET_PORT)")
	pflag.IntVarP(&pixelCount, "pixels", "n", pixelCount, "number of pixels")
	pflag.StringVar(&pixelMapCSV, "pixel-map", pixelMapCSV, "take the pixel count from this pixel map instead")
	pflag.StringVarP(&color, "color", "c", color, "hex color to fill with, 000000 turns the pixels off")
	pflag.StringVar(&simSocket, "sim", simSocket, "send to the simulator listening on this unix socket instead")
	pflag.DurationVar(&sendTimeout, "send-timeout", sendTimeout, "give up after this long")
	pflag.BoolVar(&hold, "hold", hold, "stay connected until interrupted")
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

	if err := run(ctx, logger); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	c, err := colorful.Hex("#" + strings.TrimPrefix(color, "#"))
	if err != nil {
		return fmt.Errorf("invalid color %q: %w", color, err)
	}

	n := pixelCount
	if pixelMapCSV != "" {
		m, err := pixelmap.Load(pixelMapCSV)
		if err != nil {
			return fmt.Errorf("failed to load pixel map: %w", err)
		}
		n = m.Len()
	}

	dialCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	var sink pixeltree.FrameSink
	if simSocket != "" {
		sink, err = pixeltree.DialUnix(dialCtx, simSocket, sendTimeout)
	} else {
		addr := net.JoinHostPort(targetIP, strconv.Itoa(targetPort))
		sink, err = pixeltree.DialTCP(dialCtx, addr, pixeltree.TCPClientOpts{Timeout: sendTimeout})
	}
	if err != nil {
		return fmt.Errorf("failed to connect to pixel server: %w", err)
	}
	defer sink.Close()

	r, g, b := c.RGB255()

	frame := pixeltree.NewPixelBuffer(n)
	frame.Fill(r, g, b)

	if err := sink.SendFrame(frame); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}

	logger.Info(
		"filled pixels",
		"pixels", n,
		"color", c.Hex())

	if hold {
		<-ctx.Done()
	}

	return nil
}
