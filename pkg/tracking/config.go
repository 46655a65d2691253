package tracking

// Defaults for the pose bridge.
const (
	// DefaultEyeHeight is added to the Y position of the head and every hand.
	// The headset reports poses relative to floor-less local space while the
	// server expects a standing origin.
	DefaultEyeHeight float32 = 1.7

	// DefaultControllerTilt is the extra rotation about X (radians) applied to
	// controller poses only, aligning the grip pose with the server's
	// controller model.
	DefaultControllerTilt float32 = 0.45

	// DefaultIPD is used until the runtime reports a measured IPD (meters).
	DefaultIPD float32 = 0.060
)

// Config holds the fixed offsets applied by the Bridge.
type Config struct {
	EyeHeight      float32 // meters added to head and hand Y
	ControllerTilt float32 // radians about X, controllers only
	IPD            float32 // initial interpupillary distance, meters
}

// DefaultConfig returns the standard standing-origin offsets.
func DefaultConfig() Config {
	return Config{
		EyeHeight:      DefaultEyeHeight,
		ControllerTilt: DefaultControllerTilt,
		IPD:            DefaultIPD,
	}
}
