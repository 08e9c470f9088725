package pixeltree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"
)

var (
	// ErrDegeneratePool is returned when there are too few effects to rotate
	// without repeating one back to back.
	ErrDegeneratePool = errors.New("effect pool needs at least 2 effects")
	// ErrInvalidTiming is returned for inconsistent effect timings.
	ErrInvalidTiming = errors.New("invalid effect timing")
)

// CoordinatorOpts are options for a Coordinator.
type CoordinatorOpts struct {
	// Animator is the render loop to drive.
	Animator *Animator
	// Effects is the pool of effects to rotate through, keyed by name. It
	// must hold at least 2 effects.
	Effects map[string]Effect
	// MinEffectTime is the shortest time an effect stays selected.
	MinEffectTime time.Duration
	// MaxEffectTime is the longest time an effect stays selected.
	MaxEffectTime time.Duration
	// FadeTime is how long effects take to fade in and out. It must not be
	// longer than MinEffectTime.
	FadeTime time.Duration
	// Rand is the source used to pick effects and durations. A randomly
	// seeded source is used if nil.
	Rand *rand.Rand
	// Logger is the logger to use for the coordinator.
	Logger *slog.Logger
	// Metrics is the registry to record selections into. A private registry
	// is used if nil.
	Metrics metrics.Registry
}

func (o CoordinatorOpts) validate() error {
	if o.Animator == nil {
		return errors.New("missing animator")
	}
	if len(o.Effects) < 2 {
		return fmt.Errorf("%w: got %d", ErrDegeneratePool, len(o.Effects))
	}
	for name, effect := range o.Effects {
		if effect == nil {
			return fmt.Errorf("effect %q is nil", name)
		}
	}
	if o.MinEffectTime <= 0 || o.MinEffectTime > o.MaxEffectTime {
		return fmt.Errorf("%w: need 0 < min (%v) <= max (%v)", ErrInvalidTiming, o.MinEffectTime, o.MaxEffectTime)
	}
	if o.FadeTime < 0 || o.FadeTime > o.MinEffectTime {
		return fmt.Errorf("%w: need 0 <= fade (%v) <= min (%v)", ErrInvalidTiming, o.FadeTime, o.MinEffectTime)
	}
	return nil
}

// Status is a snapshot of the rotation.
type Status struct {
	// Effect is the name of the active effect, or empty before the first
	// selection.
	Effect string
	// Previous is the name of the effect active before Effect.
	Previous string
	// Duration is how long Effect was scheduled to run for.
	Duration time.Duration
	// SelectedAt is when Effect was selected.
	SelectedAt time.Time
}

// Coordinator rotates through a pool of effects, crossfading between them,
// and drives the Animator. An effect is never selected twice in a row.
//
// All methods except Skip and Status must be called from the goroutine
// running the coordinator.
type Coordinator struct {
	opts     CoordinatorOpts
	animator *Animator
	clock    Clock
	rand     *rand.Rand
	logger   *slog.Logger

	names []string
	fades map[string]*Fade

	current   string
	previous  string
	remaining time.Duration
	fadingOut bool

	skip       chan struct{}
	status     atomic.Pointer[Status]
	selections metrics.Counter
}

// NewCoordinator creates a new coordinator. Every effect in the pool is
// wrapped in its own Fade.
func NewCoordinator(opts CoordinatorOpts) (*Coordinator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}

	names := make([]string, 0, len(opts.Effects))
	fades := make(map[string]*Fade, len(opts.Effects))
	for name, effect := range opts.Effects {
		names = append(names, name)
		fades[name] = NewFade(effect)
	}
	slices.Sort(names)

	c := &Coordinator{
		opts:       opts,
		animator:   opts.Animator,
		clock:      opts.Animator.Clock(),
		rand:       opts.Rand,
		logger:     opts.Logger,
		names:      names,
		fades:      fades,
		skip:       make(chan struct{}, 1),
		selections: metrics.GetOrRegisterCounter("coordinator.selections", opts.Metrics),
	}
	c.status.Store(&Status{})

	return c, nil
}

// Names returns the sorted names of the effects in the pool.
func (c *Coordinator) Names() []string {
	return slices.Clone(c.names)
}

// Fade returns the fade wrapping the named effect.
func (c *Coordinator) Fade(name string) (*Fade, bool) {
	f, ok := c.fades[name]
	return f, ok
}

// Current returns the name of the active effect.
func (c *Coordinator) Current() string {
	return c.current
}

// Remaining returns the time left before the next selection.
func (c *Coordinator) Remaining() time.Duration {
	return c.remaining
}

// Status returns the last published snapshot of the rotation. It is safe to
// call from any goroutine.
func (c *Coordinator) Status() Status {
	return *c.status.Load()
}

// Skip asks the coordinator to fade out the active effect now and move on to
// the next one. It is safe to call from any goroutine and never blocks.
func (c *Coordinator) Skip() {
	select {
	case c.skip <- struct{}{}:
	default:
	}
}

// Run runs the control loop until ctx is done or a frame cannot be
// delivered.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info(
		"starting effect rotation",
		"effects", c.names,
		"pixels", c.animator.PixelCount(),
		"fps", int(time.Second/c.animator.Period()))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Step(ctx); err != nil {
			return err
		}
	}
}

// Step runs one iteration of the control loop: one animator tick followed by
// the rotation bookkeeping for the time that tick took.
func (c *Coordinator) Step(ctx context.Context) error {
	start := c.clock.Now()
	if err := c.animator.RunOnce(ctx); err != nil {
		return fmt.Errorf("failed to render frame: %w", err)
	}
	c.remaining -= c.clock.Now().Sub(start)

	select {
	case <-c.skip:
		if c.current != "" && c.remaining > c.opts.FadeTime {
			c.logger.Info(
				"skipping effect",
				"effect", c.current)
			c.remaining = c.opts.FadeTime
		}
	default:
	}

	if c.remaining < c.opts.FadeTime && c.current != "" && !c.fadingOut {
		c.fades[c.current].FadeOut(c.opts.FadeTime)
		c.fadingOut = true
	}

	if c.remaining < 0 {
		c.selectNext()
	}

	return nil
}

func (c *Coordinator) selectNext() {
	c.previous = c.current

	c.remaining = time.Duration(c.rand.Float64() * float64(c.opts.MaxEffectTime))
	c.remaining = max(c.opts.MinEffectTime, c.remaining)

	next := c.previous
	for next == c.previous {
		next = c.names[c.rand.Intn(len(c.names))]
	}
	c.current = next
	c.fadingOut = false

	fade := c.fades[next]
	fade.Reset()
	fade.FadeIn(c.opts.FadeTime)
	c.animator.SetTarget(fade)

	c.selections.Inc(1)
	c.status.Store(&Status{
		Effect:     c.current,
		Previous:   c.previous,
		Duration:   c.remaining,
		SelectedAt: c.clock.Now(),
	})

	c.logger.Info(
		"selected next effect",
		"effect", next,
		"previous", c.previous,
		"duration", c.remaining)
}
