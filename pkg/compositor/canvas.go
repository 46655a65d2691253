package compositor

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-xrstream/pkg/frame"
)

// Canvas draws into Images attached to render targets.
type Canvas struct {
	mu       sync.Mutex
	next     frame.Target
	targets  map[frame.Target]*Image
	bound    frame.Target
	viewport image.Rectangle
}

var _ frame.Graphics = (*Canvas)(nil)

// NewCanvas creates an empty canvas.
func NewCanvas() *Canvas {
	return &Canvas{targets: make(map[frame.Target]*Image)}
}

// CreateTarget allocates a new target with no color attachment.
func (c *Canvas) CreateTarget() (frame.Target, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.targets[c.next] = nil
	return c.next, nil
}

// AttachColor binds t and attaches color to it.
func (c *Canvas) AttachColor(t frame.Target, color frame.Image) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.targets[t]; !ok {
		return fmt.Errorf("target %d: %w", t, frame.ErrIncompleteTarget)
	}
	img, ok := color.(*Image)
	if !ok || img == nil || img.Mat.Empty() {
		return fmt.Errorf("target %d attachment %T: %w", t, color, frame.ErrIncompleteTarget)
	}
	c.targets[t] = img
	c.bound = t
	c.viewport = img.Bounds()
	return nil
}

// Viewport restricts drawing to the top-left width x height region of the
// bound attachment.
func (c *Canvas) Viewport(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dst := c.targets[c.bound]; dst != nil {
		c.viewport = image.Rect(0, 0, width, height).Intersect(dst.Bounds())
	}
}

// Blit scales src into the viewport, converting channel layout as needed.
func (c *Canvas) Blit(src frame.Image) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dst := c.targets[c.bound]
	if dst == nil {
		return frame.ErrIncompleteTarget
	}
	img, ok := src.(*Image)
	if !ok || img == nil || img.Mat.Empty() {
		return fmt.Errorf("blit source %T: unsupported image", src)
	}
	if c.viewport.Empty() {
		return nil
	}

	converted, err := convertChannels(img.Mat, dst.Mat.Channels())
	if err != nil {
		return err
	}
	defer converted.Close()

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(converted, &scaled, c.viewport.Size(), 0, 0, gocv.InterpolationLinear)

	roi := dst.Mat.Region(c.viewport)
	defer roi.Close()
	scaled.CopyTo(&roi)
	return nil
}

// Clear fills the viewport with col.
func (c *Canvas) Clear(col frame.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dst := c.targets[c.bound]
	if dst == nil || c.viewport.Empty() {
		return
	}
	roi := dst.Mat.Region(c.viewport)
	defer roi.Close()
	roi.SetTo(gocv.NewScalar(
		float64(col.B*255),
		float64(col.G*255),
		float64(col.R*255),
		float64(col.A*255),
	))
}

// Targets returns the number of targets created.
func (c *Canvas) Targets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.targets)
}

// convertChannels returns a copy of m with the given channel count.
func convertChannels(m gocv.Mat, channels int) (gocv.Mat, error) {
	out := gocv.NewMat()
	have := m.Channels()
	switch {
	case have == channels:
		m.CopyTo(&out)
	case have == 3 && channels == 4:
		gocv.CvtColor(m, &out, gocv.ColorBGRToBGRA)
	case have == 4 && channels == 3:
		gocv.CvtColor(m, &out, gocv.ColorBGRAToBGR)
	case have == 1 && channels == 4:
		gocv.CvtColor(m, &out, gocv.ColorGrayToBGRA)
	case have == 1 && channels == 3:
		gocv.CvtColor(m, &out, gocv.ColorGrayToBGR)
	default:
		out.Close()
		return gocv.Mat{}, fmt.Errorf("convert %d to %d channels: unsupported", have, channels)
	}
	return out, nil
}
