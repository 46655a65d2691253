// Package frame implements the latch/composite/release exchange around the
// single in-flight stereo frame pair delivered by the streaming session.
//
// Per display refresh the render loop calls Latch once, then BindEyeTarget
// and Composite for each eye, then Release exactly once if the latch
// succeeded. RenderFrame runs that sequence.
package frame

import (
	"errors"
	"time"

	"github.com/teslashibe/go-xrstream/pkg/xrmath"
)

// NumEyes is the number of views in a stereo frame pair.
const NumEyes = 2

// DefaultLatchTimeout bounds how long Latch waits for the next frame pair.
const DefaultLatchTimeout = 500 * time.Millisecond

var (
	// ErrFrameNotReady is returned by a Source when no frame arrived within
	// the latch timeout. It is an expected outcome, not a failure.
	ErrFrameNotReady = errors.New("frame: not ready within timeout")

	// ErrIncompleteTarget is returned by Graphics when a render target cannot
	// be drawn to after its color attachment changed.
	ErrIncompleteTarget = errors.New("frame: incomplete render target")

	// ErrInvalidEye is returned for an eye index outside [0, NumEyes).
	ErrInvalidEye = errors.New("frame: invalid eye index")
)

// Image is a color image owned by the graphics backend.
type Image interface {
	Dimensions() (width, height int)
}

// VideoFrame is one decoded eye image of a latched pair.
type VideoFrame struct {
	Image Image

	// TimestampUs is the server's capture timestamp in microseconds.
	TimestampUs uint64
}

// Latched is a server-rendered stereo frame pair checked out from a Source.
type Latched struct {
	// PoseID identifies the tracking snapshot the server rendered with.
	PoseID uint64

	// PoseMatrix is the head pose the server rendered with.
	PoseMatrix xrmath.Matrix34

	Frames [NumEyes]VideoFrame
}

// Pose returns the server render pose, suitable for the projection layer.
func (l *Latched) Pose() xrmath.Pose {
	return xrmath.MatrixToPose(l.PoseMatrix)
}

// Source delivers latched frame pairs. Every successful LatchFrame must be
// matched by exactly one ReleaseFrame.
type Source interface {
	// LatchFrame waits up to timeout for the next frame pair. It returns
	// ErrFrameNotReady when the wait expires.
	LatchFrame(timeout time.Duration) (*Latched, error)

	// ReleaseFrame returns a latched pair to the source.
	ReleaseFrame(l *Latched)
}

// SourceProvider yields the active Source while a streaming session is in
// progress, and false otherwise.
type SourceProvider interface {
	ActiveSource() (Source, bool)
}

// Target is an opaque render target handle issued by Graphics.
type Target uint32

// Color is a normalized RGBA color.
type Color struct {
	R, G, B, A float32
}

// UnpackARGB converts a packed 0xAARRGGBB value into a normalized Color.
func UnpackARGB(argb uint32) Color {
	return Color{
		R: float32((argb&0x00FF0000)>>16) / 255,
		G: float32((argb&0x0000FF00)>>8) / 255,
		B: float32(argb&0x000000FF) / 255,
		A: float32((argb&0xFF000000)>>24) / 255,
	}
}

// Graphics is the drawing surface the exchange composites into. Calls are
// made from the render goroutine only.
type Graphics interface {
	// CreateTarget allocates a new render target.
	CreateTarget() (Target, error)

	// AttachColor binds t as the draw target and attaches color as its color
	// buffer. It returns ErrIncompleteTarget if t cannot be drawn to.
	AttachColor(t Target, color Image) error

	// Viewport sets the drawable region of the bound target.
	Viewport(width, height int)

	// Blit copies src into the viewport of the bound target.
	Blit(src Image) error

	// Clear fills the viewport of the bound target with c.
	Clear(c Color)
}

// EyeImage is the color image the host compositor reads for one eye.
type EyeImage struct {
	Color         Image
	Width, Height int
}
