package pixeltree

import "time"

// FadePhase is the phase of a Fade.
type FadePhase uint8

const (
	// PhaseSilenced is the initial phase. Output is forced to black until
	// the first fade-in is requested.
	PhaseSilenced FadePhase = iota
	// PhaseFadingIn ramps the output up from black.
	PhaseFadingIn
	// PhaseFadingOut ramps the output down to black.
	PhaseFadingOut
	// PhaseSteady passes frames through unchanged.
	PhaseSteady
)

func (p FadePhase) String() string {
	switch p {
	case PhaseSilenced:
		return "silenced"
	case PhaseFadingIn:
		return "fading-in"
	case PhaseFadingOut:
		return "fading-out"
	case PhaseSteady:
		return "steady"
	default:
		return "unknown"
	}
}

// Fade wraps an Effect and scales its output to fade it in and out. A Fade
// is itself an Effect.
//
// A fade-in always takes precedence: a fade-out requested while silenced or
// while fading in is held until the fade-in completes, and a fade-in
// requested while fading out replaces the fade-out.
type Fade struct {
	effect Effect
	out    PixelBuffer

	phase     FadePhase
	remaining time.Duration
	duration  time.Duration

	pendingOut    time.Duration
	hasPendingOut bool
}

var _ Effect = (*Fade)(nil)

// NewFade wraps effect. The returned Fade starts silenced.
func NewFade(effect Effect) *Fade {
	return &Fade{effect: effect, phase: PhaseSilenced}
}

// Effect returns the wrapped effect.
func (f *Fade) Effect() Effect {
	return f.effect
}

// Phase returns the current phase.
func (f *Fade) Phase() FadePhase {
	return f.phase
}

// Remaining returns the time left in the current fade, or 0 if no fade is
// running.
func (f *Fade) Remaining() time.Duration {
	switch f.phase {
	case PhaseFadingIn, PhaseFadingOut:
		return f.remaining
	default:
		return 0
	}
}

// Reset resets the wrapped effect. The fade phase is left untouched.
func (f *Fade) Reset() {
	f.effect.Reset()
}

// FadeIn starts fading in over d. It does nothing if a fade-in is already
// running.
func (f *Fade) FadeIn(d time.Duration) {
	if f.phase == PhaseFadingIn {
		return
	}
	f.phase = PhaseFadingIn
	f.remaining = d
	f.duration = d
}

// FadeOut starts fading out over d. It does nothing if a fade-out is
// already running or pending. It never lifts the silenced phase.
func (f *Fade) FadeOut(d time.Duration) {
	switch {
	case f.phase == PhaseFadingOut, f.hasPendingOut:
		return
	case f.phase == PhaseSilenced, f.phase == PhaseFadingIn:
		f.pendingOut = d
		f.hasPendingOut = true
	default:
		f.startFadeOut(d)
	}
}

func (f *Fade) startFadeOut(d time.Duration) {
	f.phase = PhaseFadingOut
	f.remaining = d
	f.duration = d
	f.hasPendingOut = false
	f.pendingOut = 0
}

// Animate animates the wrapped effect and applies the current fade.
func (f *Fade) Animate(elapsed time.Duration) PixelBuffer {
	base := f.effect.Animate(elapsed)
	if len(f.out) != len(base) {
		f.out = make(PixelBuffer, len(base))
	}
	copy(f.out, base)

	switch f.phase {
	case PhaseSilenced:
		f.out.Clear()
	case PhaseFadingIn:
		percent := 1.0
		if f.duration > 0 {
			percent = 1 - float64(f.remaining)/float64(f.duration)
		}
		if f.advance(elapsed) {
			if f.hasPendingOut {
				f.startFadeOut(f.pendingOut)
			} else {
				f.phase = PhaseSteady
			}
		}
		f.out.Scale(percent)
	case PhaseFadingOut:
		percent := 0.0
		if f.duration > 0 {
			percent = float64(f.remaining) / float64(f.duration)
		}
		if f.advance(elapsed) {
			f.phase = PhaseSteady
		}
		f.out.Scale(percent)
	}

	return f.out
}

// advance consumes elapsed from the running fade and reports whether it has
// finished.
func (f *Fade) advance(elapsed time.Duration) bool {
	if f.duration <= 0 {
		return true
	}
	f.remaining -= elapsed
	return f.remaining < 0
}
