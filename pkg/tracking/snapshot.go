// Package tracking owns the user's current head and controller state and
// converts it into the device tracking snapshot pulled by the streaming
// session.
//
// The render thread writes with SetPose once per frame; the session's own
// goroutine reads with Snapshot whenever it needs a pose. Both sides go
// through one mutex and the snapshot is returned by value, so a reader never
// observes a partially written pose.
package tracking

import "github.com/teslashibe/go-xrstream/pkg/xrmath"

// NumControllers is the number of hand controllers reported to the server.
const NumControllers = 2

// TrackingResult describes the runtime's tracking quality for a device.
type TrackingResult uint8

const (
	TrackingUninitialized TrackingResult = iota
	TrackingRunningOK
)

// HMDFlags are per-frame validity flags for the headset entry.
type HMDFlags uint32

const (
	// HMDHasIPD marks the IPD field as populated.
	HMDHasIPD HMDFlags = 1 << iota
)

// TrackedPose is a device pose in the server's tracking representation.
type TrackedPose struct {
	Position        xrmath.Vec3 `cbor:"1,keyasint"`
	Rotation        xrmath.Quat `cbor:"2,keyasint"`
	Velocity        xrmath.Vec3 `cbor:"3,keyasint"`
	AngularVelocity xrmath.Vec3 `cbor:"4,keyasint"`

	PoseIsValid       bool           `cbor:"5,keyasint"`
	DeviceIsConnected bool           `cbor:"6,keyasint"`
	TrackingResult    TrackingResult `cbor:"7,keyasint"`
}

// HMDState is the headset entry of a snapshot.
type HMDState struct {
	Pose  TrackedPose `cbor:"1,keyasint"`
	IPD   float32     `cbor:"2,keyasint"`
	Flags HMDFlags    `cbor:"3,keyasint"`
}

// ControllerState is one controller entry of a snapshot.
type ControllerState struct {
	Pose           TrackedPose          `cbor:"1,keyasint"`
	Buttons        ButtonMask           `cbor:"2,keyasint"`
	ButtonsChanged ButtonMask           `cbor:"3,keyasint"`
	Analog         [AnalogCount]float32 `cbor:"4,keyasint"`
}

// Snapshot is the full device tracking state for one pull. It contains no
// references, so assigning it copies everything.
type Snapshot struct {
	HMD         HMDState                        `cbor:"1,keyasint"`
	Controllers [NumControllers]ControllerState `cbor:"2,keyasint"`
}
