package tracking

// ButtonMask is a bitmask of controller buttons.
type ButtonMask uint32

const (
	ButtonSystem ButtonMask = 1 << iota
	ButtonMenu
	ButtonTriggerTouch
	ButtonTriggerClick
	ButtonGripTouch
	ButtonGripClick
	ButtonJoystickTouch
	ButtonJoystickClick
	ButtonA
	ButtonB
	ButtonX
	ButtonY
)

// Analog indexes the scalar components of a controller.
type Analog int

const (
	AnalogJoystickX Analog = iota
	AnalogJoystickY
	AnalogTrigger
	AnalogGrip

	AnalogCount
)

// ControllerInput is the raw input state of one controller for a frame.
type ControllerInput struct {
	Buttons ButtonMask
	Analog  [AnalogCount]float32
}

// Pressed reports whether every button in b is held.
func (in ControllerInput) Pressed(b ButtonMask) bool {
	return in.Buttons&b == b
}
