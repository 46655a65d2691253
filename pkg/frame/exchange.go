package frame

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-xrstream/pkg/xrmath"
)

// Handle is an exclusive checkout of a latched frame pair.
type Handle struct {
	latched  *Latched
	src      Source
	released bool
}

// Frames returns the latched pair.
func (h *Handle) Frames() *Latched {
	return h.latched
}

// Pose returns the head pose the server rendered the pair with.
func (h *Handle) Pose() xrmath.Pose {
	return h.latched.Pose()
}

// Option configures an Exchange.
type Option func(*Exchange)

// WithTimeout sets the latch timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Exchange) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithBackground sets the packed ARGB fallback color.
func WithBackground(argb uint32) Option {
	return func(e *Exchange) {
		e.background = UnpackARGB(argb)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exchange) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Exchange runs the per-frame latch/composite/release protocol. It is used
// from the render goroutine only.
type Exchange struct {
	provider   SourceProvider
	gfx        Graphics
	timeout    time.Duration
	background Color
	logger     *slog.Logger

	// lazily created, one per eye, never recreated
	targets [NumEyes]Target
	created [NumEyes]bool
}

// NewExchange creates an Exchange drawing into gfx with frames from provider.
func NewExchange(provider SourceProvider, gfx Graphics, opts ...Option) *Exchange {
	e := &Exchange{
		provider:   provider,
		gfx:        gfx,
		timeout:    DefaultLatchTimeout,
		background: UnpackARGB(0xFF000000),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Latch checks out the next frame pair. It returns false without waiting if
// no session is streaming, and false after the timeout if no frame arrived.
// Neither case is an error.
func (e *Exchange) Latch() (*Handle, bool) {
	src, ok := e.provider.ActiveSource()
	if !ok {
		return nil, false
	}

	l, err := src.LatchFrame(e.timeout)
	if err == nil {
		return &Handle{latched: l, src: src}, true
	}
	if errors.Is(err, ErrFrameNotReady) {
		e.logger.Debug("frame not ready", "timeout_ms", e.timeout.Milliseconds())
	} else {
		e.logger.Error("latch frame failed", "error", err)
	}
	return nil, false
}

// Composite draws the given eye of h into the bound target. When valid is
// false, or the blit fails, the target is filled with the background color
// so it never keeps stale contents.
func (e *Exchange) Composite(h *Handle, valid bool, eye int) {
	if valid && h != nil && eye >= 0 && eye < NumEyes {
		img := h.latched.Frames[eye].Image
		if img != nil {
			err := e.gfx.Blit(img)
			if err == nil {
				return
			}
			e.logger.Error("blit failed", "eye", eye, "error", err)
		}
	}
	e.gfx.Clear(e.background)
}

// Release returns h to its source. Only the first call has an effect.
func (e *Exchange) Release(h *Handle) {
	if h == nil || h.released {
		return
	}
	h.released = true
	h.src.ReleaseFrame(h.latched)
}

// BindEyeTarget makes the eye's render target current with color attached
// and the viewport set to width x height. The target is created on the
// first call for an eye and reused afterwards.
func (e *Exchange) BindEyeTarget(color Image, eye, width, height int) error {
	if eye < 0 || eye >= NumEyes {
		return fmt.Errorf("%w: %d", ErrInvalidEye, eye)
	}

	if !e.created[eye] {
		t, err := e.gfx.CreateTarget()
		if err != nil {
			return fmt.Errorf("create target for eye %d: %w", eye, err)
		}
		e.targets[eye] = t
		e.created[eye] = true
		e.logger.Info("created eye target", "eye", eye, "target", t)
	}

	if err := e.gfx.AttachColor(e.targets[eye], color); err != nil {
		e.logger.Error("eye target incomplete", "eye", eye, "target", e.targets[eye], "error", err)
		return fmt.Errorf("bind eye %d: %w", eye, err)
	}
	e.gfx.Viewport(width, height)
	return nil
}

// Result summarizes one RenderFrame call.
type Result struct {
	// Valid is true when a server frame was latched.
	Valid bool

	// Pose is the server render pose when Valid, for the projection layer.
	Pose xrmath.Pose

	// EyeErrors holds the bind error for each eye, nil on success.
	EyeErrors []error
}

// RenderFrame latches a frame pair, composites every eye that could be
// bound, and releases the pair exactly once.
func (e *Exchange) RenderFrame(eyes []EyeImage) Result {
	h, valid := e.Latch()
	if valid {
		defer e.Release(h)
	}

	res := Result{Valid: valid, EyeErrors: make([]error, len(eyes))}
	if valid {
		res.Pose = h.Pose()
	}

	for i, eye := range eyes {
		if err := e.BindEyeTarget(eye.Color, i, eye.Width, eye.Height); err != nil {
			res.EyeErrors[i] = err
			continue
		}
		e.Composite(h, valid, i)
	}
	return res
}
