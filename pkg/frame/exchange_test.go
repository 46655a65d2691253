package frame

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-xrstream/pkg/xrmath"
)

type fakeImage struct {
	name string
	w, h int
}

func (f *fakeImage) Dimensions() (int, int) { return f.w, f.h }

type fakeSource struct {
	mu       sync.Mutex
	next     *Latched
	err      error
	latches  int
	releases int
	timeouts []time.Duration
}

func (s *fakeSource) LatchFrame(timeout time.Duration) (*Latched, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latches++
	s.timeouts = append(s.timeouts, timeout)
	if s.err != nil {
		return nil, s.err
	}
	return s.next, nil
}

func (s *fakeSource) ReleaseFrame(*Latched) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
}

type fakeProvider struct {
	src       *fakeSource
	streaming bool
}

func (p *fakeProvider) ActiveSource() (Source, bool) {
	if !p.streaming {
		return nil, false
	}
	return p.src, true
}

type fakeGraphics struct {
	nextTarget Target
	created    int
	attachErr  map[int]error // keyed by attach call index
	attaches   int
	blits      []Image
	blitErr    error
	clears     []Color
	viewports  [][2]int
}

func (g *fakeGraphics) CreateTarget() (Target, error) {
	g.created++
	g.nextTarget++
	return g.nextTarget, nil
}

func (g *fakeGraphics) AttachColor(Target, Image) error {
	i := g.attaches
	g.attaches++
	if err, ok := g.attachErr[i]; ok {
		return err
	}
	return nil
}

func (g *fakeGraphics) Viewport(w, h int) { g.viewports = append(g.viewports, [2]int{w, h}) }

func (g *fakeGraphics) Blit(src Image) error {
	g.blits = append(g.blits, src)
	return g.blitErr
}

func (g *fakeGraphics) Clear(c Color) { g.clears = append(g.clears, c) }

func stereoLatched() *Latched {
	return &Latched{
		PoseMatrix: xrmath.Identity().Matrix34(),
		Frames: [NumEyes]VideoFrame{
			{Image: &fakeImage{name: "left", w: 64, h: 64}},
			{Image: &fakeImage{name: "right", w: 64, h: 64}},
		},
	}
}

func eyeImages() []EyeImage {
	return []EyeImage{
		{Color: &fakeImage{name: "swap-left"}, Width: 64, Height: 64},
		{Color: &fakeImage{name: "swap-right"}, Width: 64, Height: 64},
	}
}

func TestUnpackARGB(t *testing.T) {
	c := UnpackARGB(0xFF000000)
	if c != (Color{R: 0, G: 0, B: 0, A: 1}) {
		t.Errorf("opaque black: got %+v", c)
	}
	c = UnpackARGB(0x80FF0000)
	if c.R != 1 || c.G != 0 || c.B != 0 || c.A != float32(0x80)/255 {
		t.Errorf("half red: got %+v", c)
	}
}

func TestLatch_NotStreaming(t *testing.T) {
	src := &fakeSource{next: stereoLatched()}
	e := NewExchange(&fakeProvider{src: src}, &fakeGraphics{})

	h, ok := e.Latch()
	if ok || h != nil {
		t.Fatal("latch should fail when not streaming")
	}
	if src.latches != 0 {
		t.Errorf("source should not be asked, got %d latches", src.latches)
	}
}

func TestLatch_UsesTimeout(t *testing.T) {
	src := &fakeSource{next: stereoLatched()}
	e := NewExchange(&fakeProvider{src: src, streaming: true}, &fakeGraphics{}, WithTimeout(250*time.Millisecond))

	h, ok := e.Latch()
	if !ok {
		t.Fatal("expected latch to succeed")
	}
	e.Release(h)
	if src.timeouts[0] != 250*time.Millisecond {
		t.Errorf("timeout: got %v", src.timeouts[0])
	}
}

func TestRenderFrame_LatchTimeoutClearsEachEye(t *testing.T) {
	src := &fakeSource{err: ErrFrameNotReady}
	gfx := &fakeGraphics{}
	e := NewExchange(&fakeProvider{src: src, streaming: true}, gfx)

	res := e.RenderFrame(eyeImages())

	if res.Valid {
		t.Error("result should be invalid")
	}
	if len(gfx.blits) != 0 {
		t.Errorf("Blit called %d times, want 0", len(gfx.blits))
	}
	if len(gfx.clears) != NumEyes {
		t.Errorf("Clear called %d times, want %d", len(gfx.clears), NumEyes)
	}
	if src.releases != 0 {
		t.Errorf("release called %d times for failed latch", src.releases)
	}
	for _, c := range gfx.clears {
		if c != UnpackARGB(0xFF000000) {
			t.Errorf("clear color: got %+v", c)
		}
	}
}

func TestRenderFrame_BlitsAndReleasesOnce(t *testing.T) {
	src := &fakeSource{next: stereoLatched()}
	gfx := &fakeGraphics{}
	e := NewExchange(&fakeProvider{src: src, streaming: true}, gfx)

	res := e.RenderFrame(eyeImages())

	if !res.Valid {
		t.Fatal("result should be valid")
	}
	if len(gfx.blits) != NumEyes {
		t.Fatalf("Blit called %d times, want %d", len(gfx.blits), NumEyes)
	}
	if gfx.blits[0].(*fakeImage).name != "left" || gfx.blits[1].(*fakeImage).name != "right" {
		t.Error("eyes blitted in wrong order")
	}
	if len(gfx.clears) != 0 {
		t.Errorf("Clear called %d times, want 0", len(gfx.clears))
	}
	if src.releases != 1 {
		t.Errorf("release called %d times, want 1", src.releases)
	}
	if res.Pose != xrmath.IdentityPose {
		t.Errorf("pose: got %+v", res.Pose)
	}
}

func TestRenderFrame_BindFailureStillReleasesOnce(t *testing.T) {
	src := &fakeSource{next: stereoLatched()}
	gfx := &fakeGraphics{attachErr: map[int]error{1: ErrIncompleteTarget}}
	e := NewExchange(&fakeProvider{src: src, streaming: true}, gfx)

	res := e.RenderFrame(eyeImages())

	if res.EyeErrors[0] != nil {
		t.Errorf("eye 0: unexpected error %v", res.EyeErrors[0])
	}
	if !errors.Is(res.EyeErrors[1], ErrIncompleteTarget) {
		t.Errorf("eye 1: got %v, want ErrIncompleteTarget", res.EyeErrors[1])
	}
	if len(gfx.blits) != 1 {
		t.Errorf("Blit called %d times, want 1", len(gfx.blits))
	}
	if src.releases != 1 {
		t.Errorf("release called %d times, want 1", src.releases)
	}
}

func TestRenderFrame_BlitErrorFallsBackToClear(t *testing.T) {
	src := &fakeSource{next: stereoLatched()}
	gfx := &fakeGraphics{blitErr: errors.New("size mismatch")}
	e := NewExchange(&fakeProvider{src: src, streaming: true}, gfx, WithBackground(0xFF112233))

	e.RenderFrame(eyeImages())

	if len(gfx.clears) != NumEyes {
		t.Errorf("Clear called %d times, want %d", len(gfx.clears), NumEyes)
	}
	if gfx.clears[0] != UnpackARGB(0xFF112233) {
		t.Errorf("clear color: got %+v", gfx.clears[0])
	}
}

func TestBindEyeTarget_CreatesOncePerEye(t *testing.T) {
	gfx := &fakeGraphics{}
	e := NewExchange(&fakeProvider{}, gfx)

	for i := 0; i < 3; i++ {
		for eye := 0; eye < NumEyes; eye++ {
			if err := e.BindEyeTarget(&fakeImage{}, eye, 32, 16); err != nil {
				t.Fatalf("bind eye %d: %v", eye, err)
			}
		}
	}
	if gfx.created != NumEyes {
		t.Errorf("targets created: got %d, want %d", gfx.created, NumEyes)
	}
	if gfx.viewports[0] != [2]int{32, 16} {
		t.Errorf("viewport: got %v", gfx.viewports[0])
	}
	if err := e.BindEyeTarget(&fakeImage{}, 2, 32, 16); !errors.Is(err, ErrInvalidEye) {
		t.Errorf("eye 2: got %v, want ErrInvalidEye", err)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	src := &fakeSource{next: stereoLatched()}
	e := NewExchange(&fakeProvider{src: src, streaming: true}, &fakeGraphics{})

	h, ok := e.Latch()
	if !ok {
		t.Fatal("latch failed")
	}
	e.Release(h)
	e.Release(h)
	e.Release(nil)
	if src.releases != 1 {
		t.Errorf("release called %d times, want 1", src.releases)
	}
}

func TestComposite_InvalidClears(t *testing.T) {
	gfx := &fakeGraphics{}
	e := NewExchange(&fakeProvider{}, gfx)

	e.Composite(nil, false, 0)
	e.Composite(nil, true, 0)
	if len(gfx.clears) != 2 || len(gfx.blits) != 0 {
		t.Errorf("clears=%d blits=%d", len(gfx.clears), len(gfx.blits))
	}
}
