package tracking

import (
	"sync"

	"github.com/chewxy/math32"

	"github.com/teslashibe/go-xrstream/pkg/xrmath"
)

// TruncateIPD truncates ipd to 4 decimal places (sub-millimeter precision).
// Truncation, not rounding: 0.063499 becomes 0.0634.
func TruncateIPD(ipd float32) float32 {
	return math32.Trunc(ipd*10000) / 10000
}

// IPDFromViews returns the distance between the left and right eye positions.
func IPDFromViews(left, right xrmath.Vec3) float32 {
	return right.Sub(left).Len()
}

// Bridge is the single source of truth for where the user is right now.
type Bridge struct {
	cfg Config

	mu              sync.Mutex
	head            xrmath.Pose
	linearVelocity  xrmath.Vec3
	angularVelocity xrmath.Vec3
	hands           []xrmath.Pose
	ipd             float32

	// inputs persist between snapshots so button deltas can be computed
	controllers [NumControllers]ControllerState
}

// NewBridge creates a Bridge with the given offsets.
func NewBridge(cfg Config) *Bridge {
	if cfg.IPD <= 0 {
		cfg.IPD = DefaultIPD
	}
	return &Bridge{
		cfg:  cfg,
		head: xrmath.IdentityPose,
		ipd:  cfg.IPD,
	}
}

// SetPose replaces the head pose, the head velocities and the hand poses.
// The configured eye height is added to the head and every hand. Hands from
// a previous call are discarded, never merged.
func (b *Bridge) SetPose(head xrmath.Pose, linearVelocity, angularVelocity xrmath.Vec3, hands []xrmath.Pose) {
	n := len(hands)
	if n > NumControllers {
		n = NumControllers
	}
	lifted := make([]xrmath.Pose, n)
	copy(lifted, hands[:n])
	for i := range lifted {
		lifted[i].Position.Y += b.cfg.EyeHeight
	}
	head.Position.Y += b.cfg.EyeHeight

	b.mu.Lock()
	b.head = head
	b.linearVelocity = linearVelocity
	b.angularVelocity = angularVelocity
	b.hands = lifted
	b.mu.Unlock()
}

// SetIPD records a measured IPD in meters. Non-positive values are ignored.
func (b *Bridge) SetIPD(ipd float32) {
	if ipd <= 0 {
		return
	}
	b.mu.Lock()
	b.ipd = ipd
	b.mu.Unlock()
}

// SetControllerInputs records this frame's button and analog state.
// ButtonsChanged is the XOR against the previously recorded buttons.
func (b *Bridge) SetControllerInputs(inputs [NumControllers]ControllerInput) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, in := range inputs {
		c := &b.controllers[i]
		c.ButtonsChanged = in.Buttons ^ c.Buttons
		c.Buttons = in.Buttons
		c.Analog = in.Analog
	}
}

// Head returns the stored head pose (eye height already applied).
func (b *Bridge) Head() xrmath.Pose {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head
}

// Snapshot builds the device tracking snapshot from the latest stored state.
//
// Every populated device is reported as valid, connected and tracking. The
// runtime only hands us poses it considers valid, so there is no lost-tracking
// path. Controllers have no velocity of their own and reuse the head's.
func (b *Bridge) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	var s Snapshot
	for i := range b.controllers {
		c := b.controllers[i]
		c.Pose = TrackedPose{}
		if i < len(b.hands) {
			c.Pose = b.convertPose(b.hands[i], b.cfg.ControllerTilt)
			c.Pose.DeviceIsConnected = true
			c.Pose.TrackingResult = TrackingRunningOK
		}
		s.Controllers[i] = c
	}

	s.HMD.IPD = TruncateIPD(b.ipd)
	s.HMD.Flags = 0
	s.HMD.Flags |= HMDHasIPD

	s.HMD.Pose = b.convertPose(b.head, 0)
	s.HMD.Pose.PoseIsValid = true
	s.HMD.Pose.DeviceIsConnected = true
	s.HMD.Pose.TrackingResult = TrackingRunningOK
	return s
}

// convertPose maps a runtime pose into the server representation, applying
// an optional rotation about X after the pose's own rotation.
// Caller must hold b.mu.
func (b *Bridge) convertPose(in xrmath.Pose, rotationX float32) TrackedPose {
	transform := xrmath.PoseToMatrix(in)
	if rotationX != 0 {
		transform = xrmath.Compose(transform, xrmath.Rotation(rotationX, 0, 0))
	}
	p := xrmath.MatrixToPose(transform.Matrix34())
	return TrackedPose{
		Position:        p.Position,
		Rotation:        p.Orientation,
		Velocity:        xrmath.ToRemote(b.linearVelocity),
		AngularVelocity: xrmath.ToRemote(b.angularVelocity),
		PoseIsValid:     true,
	}
}
