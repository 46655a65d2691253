// Package compositor implements frame.Graphics on OpenCV matrices, for
// headless clients that present eye images without a GPU context.
package compositor

import (
	"image"

	"gocv.io/x/gocv"
)

// Image is a BGR or BGRA matrix usable as a frame.Image.
type Image struct {
	Mat gocv.Mat
}

// NewImage allocates a black BGRA image.
func NewImage(width, height int) *Image {
	return &Image{Mat: gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC4)}
}

// FromMat wraps m. The Image takes ownership.
func FromMat(m gocv.Mat) *Image {
	return &Image{Mat: m}
}

// Dimensions returns the image size in pixels.
func (i *Image) Dimensions() (int, int) {
	if i == nil || i.Mat.Empty() {
		return 0, 0
	}
	return i.Mat.Cols(), i.Mat.Rows()
}

// Bounds returns the image rectangle.
func (i *Image) Bounds() image.Rectangle {
	w, h := i.Dimensions()
	return image.Rect(0, 0, w, h)
}

// Close releases the underlying matrix.
func (i *Image) Close() error {
	if i == nil {
		return nil
	}
	return i.Mat.Close()
}
