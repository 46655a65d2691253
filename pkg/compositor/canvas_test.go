package compositor

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-xrstream/pkg/frame"
)

func pixel(t *testing.T, img *Image, row, col int) []uint8 {
	t.Helper()
	return img.Mat.GetVecbAt(row, col)
}

func TestAttachColor_UnknownTarget(t *testing.T) {
	c := NewCanvas()
	img := NewImage(4, 4)
	defer img.Close()

	if err := c.AttachColor(7, img); !errors.Is(err, frame.ErrIncompleteTarget) {
		t.Errorf("got %v, want ErrIncompleteTarget", err)
	}
}

func TestAttachColor_EmptyImage(t *testing.T) {
	c := NewCanvas()
	tgt, _ := c.CreateTarget()
	empty := FromMat(gocv.NewMat())
	defer empty.Close()

	if err := c.AttachColor(tgt, empty); !errors.Is(err, frame.ErrIncompleteTarget) {
		t.Errorf("got %v, want ErrIncompleteTarget", err)
	}
}

func TestClear_FillsViewportOnly(t *testing.T) {
	c := NewCanvas()
	tgt, _ := c.CreateTarget()
	dst := NewImage(8, 8)
	defer dst.Close()

	if err := c.AttachColor(tgt, dst); err != nil {
		t.Fatal(err)
	}
	c.Viewport(4, 4)
	c.Clear(frame.UnpackARGB(0xFF102030))

	got := pixel(t, dst, 1, 1)
	if got[0] != 0x30 || got[1] != 0x20 || got[2] != 0x10 || got[3] != 0xFF {
		t.Errorf("inside viewport: got %v", got)
	}
	if got := pixel(t, dst, 6, 6); got[0] != 0 || got[3] != 0 {
		t.Errorf("outside viewport: got %v", got)
	}
}

func TestBlit_ScalesAndConvertsChannels(t *testing.T) {
	c := NewCanvas()
	tgt, _ := c.CreateTarget()
	dst := NewImage(8, 8)
	defer dst.Close()

	src := FromMat(gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC3))
	defer src.Close()
	src.Mat.SetTo(gocv.NewScalar(200, 100, 50, 0))

	if err := c.AttachColor(tgt, dst); err != nil {
		t.Fatal(err)
	}
	c.Viewport(8, 8)
	if err := c.Blit(src); err != nil {
		t.Fatalf("Blit: %v", err)
	}

	got := pixel(t, dst, 7, 7)
	if got[0] != 200 || got[1] != 100 || got[2] != 50 || got[3] != 255 {
		t.Errorf("blitted pixel: got %v", got)
	}
}

func TestBlit_NoAttachment(t *testing.T) {
	c := NewCanvas()
	src := NewImage(2, 2)
	defer src.Close()

	if err := c.Blit(src); !errors.Is(err, frame.ErrIncompleteTarget) {
		t.Errorf("got %v", err)
	}
}

func TestExchangeRendersIntoCanvas(t *testing.T) {
	c := NewCanvas()
	ex := frame.NewExchange(noSource{}, c, frame.WithBackground(0xFF0000FF))

	left, right := NewImage(4, 4), NewImage(4, 4)
	defer left.Close()
	defer right.Close()

	res := ex.RenderFrame([]frame.EyeImage{
		{Color: left, Width: 4, Height: 4},
		{Color: right, Width: 4, Height: 4},
	})
	if res.Valid {
		t.Error("no source means no valid frame")
	}
	if c.Targets() != 2 {
		t.Errorf("targets: got %d", c.Targets())
	}
	for _, img := range []*Image{left, right} {
		if got := pixel(t, img, 0, 0); got[0] != 0xFF || got[2] != 0 {
			t.Errorf("background: got %v", got)
		}
	}
}

type noSource struct{}

func (noSource) ActiveSource() (frame.Source, bool) { return nil, false }
