package main

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/chewxy/math32"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-xrstream/internal/config"
	"github.com/teslashibe/go-xrstream/pkg/compositor"
	"github.com/teslashibe/go-xrstream/pkg/frame"
	"github.com/teslashibe/go-xrstream/pkg/session"
	"github.com/teslashibe/go-xrstream/pkg/tracking"
	"github.com/teslashibe/go-xrstream/pkg/xrmath"
)

const (
	// reportEvery is how often render counters are logged.
	reportEvery = 5 * time.Second

	// swayPeriod is one full cycle of the synthetic head and controllers.
	swayPeriod = 8 * time.Second
)

// headlessHost reports a fixed display configuration.
type headlessHost struct {
	width, height int
	ipd           float32
}

func (h *headlessHost) RecommendedViewSize() (int, int) { return h.width, h.height }
func (h *headlessHost) IPD() (float32, bool)            { return h.ipd, h.ipd > 0 }
func (h *headlessHost) GraphicsContext() any            { return nil }

// renderer runs the display loop: update the pose, latch, composite and
// release, once per display refresh.
type renderer struct {
	bridge *tracking.Bridge
	ipd    float32
	ex     *frame.Exchange
	eyes   []frame.EyeImage
	images []*compositor.Image
	logger *slog.Logger
	start  time.Time
	warn   rate.Sometimes
}

func newRenderer(src frame.SourceProvider, bridge *tracking.Bridge, host *headlessHost, opts config.Options, logger *slog.Logger) *renderer {
	logger = logger.With("component", "render")
	canvas := compositor.NewCanvas()
	ipd := host.ipd
	if ipd <= 0 {
		ipd = tracking.DefaultIPD
	}
	r := &renderer{
		bridge: bridge,
		ipd:    ipd,
		ex: frame.NewExchange(src, canvas,
			frame.WithTimeout(opts.LatchTimeout),
			frame.WithBackground(opts.BackgroundColor),
			frame.WithLogger(logger),
		),
		logger: logger,
		start:  time.Now(),
		warn:   rate.Sometimes{Interval: reportEvery},
	}
	for i := 0; i < frame.NumEyes; i++ {
		img := compositor.NewImage(host.width, host.height)
		r.images = append(r.images, img)
		r.eyes = append(r.eyes, frame.EyeImage{Color: img, Width: host.width, Height: host.height})
	}
	return r
}

// Run renders until ctx is done.
func (r *renderer) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / session.TargetFPS))
	defer ticker.Stop()
	report := time.NewTicker(reportEvery)
	defer report.Stop()

	var frames, valid int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			r.track(now)
			res := r.ex.RenderFrame(r.eyes)
			frames++
			if res.Valid {
				valid++
			}
			for eye, err := range res.EyeErrors {
				if err != nil {
					r.warn.Do(func() {
						r.logger.Warn("eye target unavailable", "eye", eye, "error", err)
					})
				}
			}
		case <-report.C:
			head := r.bridge.Head()
			r.logger.Debug("render loop", "frames", frames, "valid", valid,
				"head_y", head.Position.Y, "head_qy", head.Orientation.Y)
			frames, valid = 0, 0
		}
	}
}

// track feeds the bridge what a runtime would report for this frame: the
// head pose, the IPD measured between the eye views and controller input.
func (r *renderer) track(now time.Time) {
	t := now.Sub(r.start)
	head := syntheticHead(t)
	left, right := eyePositions(head, r.ipd)

	r.bridge.SetPose(head, xrmath.Vec3{}, xrmath.Vec3{}, nil)
	r.bridge.SetIPD(tracking.IPDFromViews(left, right))
	r.bridge.SetControllerInputs(syntheticInputs(t))
}

// Close frees the eye images.
func (r *renderer) Close() {
	for _, img := range r.images {
		img.Close()
	}
}

// syntheticHead sways the head slowly left and right. Height stays at zero
// and the bridge adds the eye height.
func syntheticHead(t time.Duration) xrmath.Pose {
	yaw := 0.3 * math32.Sin(swayPhase(t)*2*math32.Pi)
	half := yaw / 2
	return xrmath.Pose{
		Orientation: xrmath.Quat{Y: math32.Sin(half), W: math32.Cos(half)},
	}
}

// eyePositions places the eye views ipd apart along the head's X axis.
func eyePositions(head xrmath.Pose, ipd float32) (left, right xrmath.Vec3) {
	m := xrmath.PoseToMatrix(head)
	return m.TransformPoint(xrmath.Vec3{X: -ipd / 2}), m.TransformPoint(xrmath.Vec3{X: ipd / 2})
}

// syntheticInputs tilts the left joystick with the sway and pulls the right
// trigger during the first half of each cycle: a ramp, then a full click.
func syntheticInputs(t time.Duration) [tracking.NumControllers]tracking.ControllerInput {
	phase := swayPhase(t)
	var in [tracking.NumControllers]tracking.ControllerInput

	in[0].Buttons = tracking.ButtonJoystickTouch
	in[0].Analog[tracking.AnalogJoystickX] = math32.Sin(phase * 2 * math32.Pi)

	var trigger float32
	switch {
	case phase < 0.25:
		trigger = phase * 4
	case phase < 0.5:
		trigger = 1
	}
	in[1].Analog[tracking.AnalogTrigger] = trigger
	if trigger > 0 {
		in[1].Buttons |= tracking.ButtonTriggerTouch
	}
	if trigger >= 1 {
		in[1].Buttons |= tracking.ButtonTriggerClick
	}
	return in
}

// swayPhase is the position within the current cycle, in [0, 1).
func swayPhase(t time.Duration) float32 {
	return float32(math.Mod(t.Seconds(), swayPeriod.Seconds()) / swayPeriod.Seconds())
}
