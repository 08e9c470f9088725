package pixeltree

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/rcrowley/go-metrics"
)

const (
	testMinEffectTime = 30 * time.Second
	testMaxEffectTime = 300 * time.Second
	testFadeTime      = 5 * time.Second
)

type testCoordinator struct {
	*Coordinator
	clock    *fakeClock
	effects  map[string]*stubEffect
	sink     *recordSink
	registry metrics.Registry
}

func newTestCoordinator(t *testing.T, names ...string) *testCoordinator {
	t.Helper()

	clock := newFakeClock()
	sink := &recordSink{}
	registry := metrics.NewRegistry()

	animator, err := NewAnimator(AnimatorOpts{
		FPS:        10,
		PixelCount: 2,
		Sink:       sink,
		Logger:     slogt.New(t),
		Metrics:    registry,
		Clock:      clock,
	})
	if err != nil {
		t.Fatal("failed to create animator:", err)
	}

	stubs := make(map[string]*stubEffect, len(names))
	pool := make(map[string]Effect, len(names))
	for i, name := range names {
		stubs[name] = &stubEffect{pixelCount: 2, color: byte(100 + i)}
		pool[name] = stubs[name]
	}

	c, err := NewCoordinator(CoordinatorOpts{
		Animator:      animator,
		Effects:       pool,
		MinEffectTime: testMinEffectTime,
		MaxEffectTime: testMaxEffectTime,
		FadeTime:      testFadeTime,
		Rand:          rand.New(rand.NewSource(1)),
		Logger:        slogt.New(t),
		Metrics:       registry,
	})
	if err != nil {
		t.Fatal("failed to create coordinator:", err)
	}

	return &testCoordinator{
		Coordinator: c,
		clock:       clock,
		effects:     stubs,
		sink:        sink,
		registry:    registry,
	}
}

func (c *testCoordinator) step(t *testing.T) {
	t.Helper()

	if err := c.Step(context.Background()); err != nil {
		t.Fatal("step failed:", err)
	}
}

// stepUntilSelection steps until a different effect is selected and returns
// the number of steps taken.
func (c *testCoordinator) stepUntilSelection(t *testing.T) int {
	t.Helper()

	before := c.Current()
	limit := int(testMaxEffectTime/c.animator.Period()) + 10

	for i := 1; i <= limit; i++ {
		c.step(t)
		if c.Current() != before {
			return i
		}
	}

	t.Fatal("no selection after", limit, "steps")
	return 0
}

func TestCoordinatorFirstSelection(t *testing.T) {
	c := newTestCoordinator(t, "a", "b", "c")
	assertEq(t, "", c.Current())

	c.step(t)

	current := c.Current()
	if _, ok := c.effects[current]; !ok {
		t.Fatalf("selected unknown effect %q", current)
	}

	fade, _ := c.Fade(current)
	assertEq(t, PhaseFadingIn, fade.Phase())
	assertEq(t, testFadeTime, fade.Remaining())
	assertEq(t, 1, c.effects[current].resets)

	// The animator renders the selected effect through its fade.
	if c.animator.Target() != Effect(fade) {
		t.Errorf("animator target is %T, not the selected fade", c.animator.Target())
	}
	if fade.Effect() != Effect(c.effects[current]) {
		t.Errorf("fade wraps %T, not effect %q", fade.Effect(), current)
	}

	if c.Remaining() < testMinEffectTime || c.Remaining() > testMaxEffectTime {
		t.Errorf("remaining %v outside [%v, %v]", c.Remaining(), testMinEffectTime, testMaxEffectTime)
	}

	status := c.Status()
	assertEq(t, current, status.Effect)
	assertEq(t, "", status.Previous)
	assertEq(t, c.Remaining(), status.Duration)
}

func TestCoordinatorNoRepeat(t *testing.T) {
	c := newTestCoordinator(t, "a", "b", "c")
	c.step(t)

	for i := 0; i < 25; i++ {
		previous := c.Current()
		resets := c.effects[previous].resets

		c.stepUntilSelection(t)

		current := c.Current()
		if current == previous {
			t.Fatalf("selection %d repeated %q", i, current)
		}
		assertEq(t, previous, c.Status().Previous)

		// The outgoing effect is not reset again.
		assertEq(t, resets, c.effects[previous].resets)

		fade, _ := c.Fade(current)
		assertEq(t, PhaseFadingIn, fade.Phase())
	}

	selections := metrics.GetOrRegisterCounter("coordinator.selections", c.registry)
	assertEq(t, int64(26), selections.Count())
}

func TestCoordinatorSingleFadeOut(t *testing.T) {
	c := newTestCoordinator(t, "a", "b", "c")
	c.step(t)

	for cycle := 0; cycle < 5; cycle++ {
		current := c.Current()
		fade, _ := c.Fade(current)

		for c.Remaining() >= testFadeTime {
			c.step(t)
			if c.Remaining() >= testFadeTime {
				if fade.Phase() == PhaseFadingOut {
					t.Fatalf("cycle %d: fade out started with %v remaining", cycle, c.Remaining())
				}
			}
		}

		assertEq(t, PhaseFadingOut, fade.Phase())
		assertEq(t, testFadeTime, fade.Remaining())

		// A repeated fade-out would restart the timer. It must only count
		// down until the next selection.
		last := fade.Remaining()
		for c.Current() == current {
			c.step(t)
			if c.Current() != current {
				break
			}
			if fade.Phase() != PhaseFadingOut {
				t.Fatalf("cycle %d: phase %v before selection", cycle, fade.Phase())
			}
			if fade.Remaining() >= last {
				t.Fatalf("cycle %d: fade out restarted: %v after %v", cycle, fade.Remaining(), last)
			}
			last = fade.Remaining()
		}
	}
}

func TestCoordinatorSkip(t *testing.T) {
	c := newTestCoordinator(t, "a", "b")
	c.step(t)

	current := c.Current()
	fade, _ := c.Fade(current)

	// Let the fade-in finish.
	for fade.Phase() != PhaseSteady {
		c.step(t)
	}

	c.Skip()
	c.Skip() // coalesced
	c.step(t)
	assertEq(t, testFadeTime, c.Remaining())

	c.step(t)
	assertEq(t, PhaseFadingOut, fade.Phase())

	steps := c.stepUntilSelection(t)
	if limit := int(testFadeTime/c.animator.Period()) + 1; steps > limit {
		t.Errorf("selection took %d steps after skip, want at most %d", steps, limit)
	}
	if c.Current() == current {
		t.Fatalf("skip reselected %q", current)
	}
}

func TestCoordinatorSkipBeforeSelection(t *testing.T) {
	c := newTestCoordinator(t, "a", "b")
	c.Skip()
	c.step(t)

	if c.Current() == "" {
		t.Fatal("no effect selected")
	}
	if c.Remaining() < testMinEffectTime {
		t.Errorf("skip before selection shortened the first effect to %v", c.Remaining())
	}
}

func TestCoordinatorFrames(t *testing.T) {
	c := newTestCoordinator(t, "a", "b")

	// The first tick has no target yet.
	c.step(t)
	assertEq(t, 0, len(c.sink.frames))

	// The new effect fades in from black.
	c.step(t)
	assertEq(t, PixelBuffer{0, 0, 0, 0, 0, 0}, c.sink.frames[0])

	for fade, _ := c.Fade(c.Current()); fade.Phase() != PhaseSteady; {
		c.step(t)
	}

	color := c.effects[c.Current()].color
	last := c.sink.frames[len(c.sink.frames)-1]
	assertEq(t, PixelBuffer{color, color, color, color, color, color}, last)
}

func TestCoordinatorRunCanceled(t *testing.T) {
	c := newTestCoordinator(t, "a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCoordinatorSinkFailure(t *testing.T) {
	c := newTestCoordinator(t, "a", "b")
	c.sink.err = &TransportError{Op: "write frame", Addr: "test", Err: errors.New("connection reset")}

	err := c.Run(context.Background())

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
}

func TestNewCoordinatorInvalid(t *testing.T) {
	animator, err := NewAnimator(AnimatorOpts{FPS: 30, PixelCount: 1, Clock: newFakeClock()})
	if err != nil {
		t.Fatal(err)
	}

	pool := func(names ...string) map[string]Effect {
		m := make(map[string]Effect, len(names))
		for _, name := range names {
			m[name] = &stubEffect{pixelCount: 1}
		}
		return m
	}

	tests := []struct {
		name    string
		opts    CoordinatorOpts
		wantErr error
	}{
		{
			name: "empty pool",
			opts: CoordinatorOpts{
				Animator:      animator,
				Effects:       pool(),
				MinEffectTime: time.Second,
				MaxEffectTime: time.Second,
			},
			wantErr: ErrDegeneratePool,
		},
		{
			name: "single effect",
			opts: CoordinatorOpts{
				Animator:      animator,
				Effects:       pool("a"),
				MinEffectTime: time.Second,
				MaxEffectTime: time.Second,
			},
			wantErr: ErrDegeneratePool,
		},
		{
			name: "min above max",
			opts: CoordinatorOpts{
				Animator:      animator,
				Effects:       pool("a", "b"),
				MinEffectTime: 2 * time.Second,
				MaxEffectTime: time.Second,
			},
			wantErr: ErrInvalidTiming,
		},
		{
			name: "zero min",
			opts: CoordinatorOpts{
				Animator:      animator,
				Effects:       pool("a", "b"),
				MaxEffectTime: time.Second,
			},
			wantErr: ErrInvalidTiming,
		},
		{
			name: "fade longer than min",
			opts: CoordinatorOpts{
				Animator:      animator,
				Effects:       pool("a", "b"),
				MinEffectTime: time.Second,
				MaxEffectTime: time.Minute,
				FadeTime:      2 * time.Second,
			},
			wantErr: ErrInvalidTiming,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewCoordinator(test.opts)
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("expected %v, got %v", test.wantErr, err)
			}
		})
	}
}
