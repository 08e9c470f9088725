package pixeltree

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rcrowley/go-metrics"
)

// Clock is the time source used for pacing.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// WallClock is the Clock backed by the system time.
var WallClock Clock = wallClock{}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// AnimatorOpts are options for an Animator.
type AnimatorOpts struct {
	// FPS is the target frame rate.
	FPS int
	// PixelCount is the number of pixels in every frame.
	PixelCount int
	// Sink receives every rendered frame. It may be nil.
	Sink FrameSink
	// Logger is the logger to use for the animator.
	Logger *slog.Logger
	// Metrics is the registry to record frame timings into. A private
	// registry is used if nil.
	Metrics metrics.Registry
	// Clock is the time source. WallClock is used if nil.
	Clock Clock
}

// Animator is the fixed-rate render loop. Every tick it animates the target
// effect with the time elapsed since the previous tick and sends the frame
// to the sink.
//
// An Animator is not safe for concurrent use.
type Animator struct {
	opts   AnimatorOpts
	period time.Duration
	logger *slog.Logger
	clock  Clock

	target   Effect
	sink     FrameSink
	lastTick time.Time

	tickTime metrics.Timer
	frames   metrics.Counter
	overruns metrics.Counter
}

// NewAnimator creates a new animator.
func NewAnimator(opts AnimatorOpts) (*Animator, error) {
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("invalid frame rate %d", opts.FPS)
	}
	if opts.PixelCount <= 0 {
		return nil, fmt.Errorf("invalid pixel count %d", opts.PixelCount)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}
	if opts.Clock == nil {
		opts.Clock = WallClock
	}

	return &Animator{
		opts:     opts,
		period:   time.Second / time.Duration(opts.FPS),
		logger:   opts.Logger,
		clock:    opts.Clock,
		sink:     opts.Sink,
		lastTick: opts.Clock.Now(),
		tickTime: metrics.GetOrRegisterTimer("animator.tick", opts.Metrics),
		frames:   metrics.GetOrRegisterCounter("animator.frames", opts.Metrics),
		overruns: metrics.GetOrRegisterCounter("animator.overruns", opts.Metrics),
	}, nil
}

// Period returns the target time between ticks.
func (a *Animator) Period() time.Duration {
	return a.period
}

// Clock returns the animator's time source.
func (a *Animator) Clock() Clock {
	return a.clock
}

// PixelCount returns the number of pixels per frame.
func (a *Animator) PixelCount() int {
	return a.opts.PixelCount
}

// SetTarget sets the effect to animate. A nil target stops rendering.
func (a *Animator) SetTarget(target Effect) {
	a.target = target
}

// Target returns the effect being animated.
func (a *Animator) Target() Effect {
	return a.target
}

// SetSink sets where frames are sent. A nil sink discards frames.
func (a *Animator) SetSink(sink FrameSink) {
	a.sink = sink
}

// Tick renders and sends one frame. The tick time is recorded even when
// there is no target or sink so that attaching one later does not produce a
// large elapsed time.
func (a *Animator) Tick() error {
	now := a.clock.Now()
	elapsed := now.Sub(a.lastTick)
	a.lastTick = now

	if a.target == nil {
		return nil
	}

	frame := a.target.Animate(elapsed)
	if err := checkFrameSize(frame, a.opts.PixelCount); err != nil {
		return err
	}

	if a.sink != nil {
		if err := a.sink.SendFrame(frame); err != nil {
			return err
		}
		a.frames.Inc(1)
	}

	a.tickTime.Update(a.clock.Now().Sub(now))
	return nil
}

// RunOnce sleeps for whatever is left of the frame period since the last
// tick, then ticks. If the period has already passed, it ticks immediately.
func (a *Animator) RunOnce(ctx context.Context) error {
	wait := a.period - a.clock.Now().Sub(a.lastTick)
	switch {
	case wait > 0:
		if err := a.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	case wait < 0:
		a.overruns.Inc(1)
		a.logger.Debug(
			"frame overran its period",
			"overrun", -wait)
	}

	return a.Tick()
}

// Run ticks until ctx is done or a tick fails.
func (a *Animator) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.RunOnce(ctx); err != nil {
			return err
		}
	}
}
