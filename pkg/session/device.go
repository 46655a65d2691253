package session

import (
	"github.com/teslashibe/go-xrstream/internal/config"
	"github.com/teslashibe/go-xrstream/pkg/tracking"
	"github.com/teslashibe/go-xrstream/pkg/xrmath"
)

// DeliveryType is how the server lays out the video streams.
type DeliveryType uint8

const (
	DeliveryMono DeliveryType = iota
	DeliveryStereoRGB
)

// ControllerType selects the server-side controller model.
type ControllerType uint8

const (
	ControllerGeneric ControllerType = iota
	ControllerTouch
)

// Universe is the tracking origin the chaperone is expressed in.
type Universe uint8

const (
	UniverseSeated Universe = iota
	UniverseStanding
)

// Projection holds the tangent-space extents of one eye's frustum.
type Projection struct {
	Left, Right, Top, Bottom float32
}

// Chaperone describes the play area.
type Chaperone struct {
	Universe Universe
	Origin   xrmath.Matrix34
	PlayArea [2]float32 // meters, X by Z
}

// DeviceDesc describes the headset to the server.
type DeviceDesc struct {
	Delivery     DeliveryType
	Width        int // per eye
	Height       int // per eye
	MaxResFactor float32
	FPS          float32
	IPD          float32

	// PredOffset shifts the server's pose prediction, in seconds.
	PredOffset   float32
	ReceiveAudio bool
	SendAudio    bool

	// PosePollFreq of 0 lets the server pull tracking at its own rate.
	PosePollFreq int

	DisablePosePrediction        bool
	AngularVelocityInDeviceSpace bool

	// Foveation is the foveated scale factor percentage, 0 to disable.
	Foveation  int
	Controller ControllerType
	Projection [2]Projection
	Chaperone  Chaperone
}

// Device description constants.
const (
	TargetFPS               = 90
	DefaultPredOffset       = -0.02
	DefaultMaxResFactor     = 1.0
	DefaultProjectionExtent = 1.25
	DefaultPlayAreaMeters   = 1.5
	DefaultNumStreams       = 2
)

// modelFoveation holds per-model foveation defaults found by testing.
var modelFoveation = map[string]int{
	"Pico Neo 3": 88,
}

// ModelFoveation returns the default foveation for a device model.
func ModelFoveation(model string) int {
	return modelFoveation[model]
}

// BuildDeviceDesc describes the headset from the configured options and the
// host's display configuration. The host is queried here only, once per
// session start.
func BuildDeviceDesc(opts config.Options, host Host) DeviceDesc {
	width, height := host.RecommendedViewSize()

	ipd := tracking.DefaultIPD
	if v, ok := host.IPD(); ok && v > 0 {
		ipd = v
	}

	foveation := ModelFoveation(opts.DeviceModel)
	if f, ok := opts.FoveationOverride(); ok {
		foveation = f
	}

	proj := Projection{
		Left:   -DefaultProjectionExtent,
		Right:  DefaultProjectionExtent,
		Top:    -DefaultProjectionExtent,
		Bottom: DefaultProjectionExtent,
	}

	// a play area of 2 * 1.5 * 0.5 on each side
	side := float32(2 * DefaultPlayAreaMeters * 0.5)

	return DeviceDesc{
		Delivery:     DeliveryStereoRGB,
		Width:        width,
		Height:       height,
		MaxResFactor: DefaultMaxResFactor,
		FPS:          TargetFPS,
		IPD:          ipd,
		PredOffset:   DefaultPredOffset,
		ReceiveAudio: true,
		SendAudio:    false,
		PosePollFreq: 0,
		Foveation:    foveation,
		Controller:   ControllerTouch,
		Projection:   [2]Projection{proj, proj},
		Chaperone: Chaperone{
			Universe: UniverseStanding,
			Origin:   xrmath.Identity().Matrix34(),
			PlayArea: [2]float32{side, side},
		},
	}
}

// DebugFlags toggle diagnostic behavior in the service.
type DebugFlags uint32

const (
	DebugLogVerbose DebugFlags = 1 << iota
	DebugLogQuiet
	DebugHardwareDecoder
	DebugDumpImages
	DebugDumpAudio
	DebugDisableFEC
)

// EffectiveDebugFlags ORs the configured flags with the ones every session
// runs with.
func EffectiveDebugFlags(configured uint32) DebugFlags {
	return DebugFlags(configured) | DebugHardwareDecoder | DebugLogVerbose
}
