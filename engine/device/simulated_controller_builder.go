package device

import "github.com/Carmen-Shannon/oxy-xr/common"

type ControllerBuilderOption func(*simulatedControllerImpl)

// WithControllerName overrides the generated device name.
//
// Parameters:
//   - name: the device name
//
// Returns:
//   - ControllerBuilderOption: a function that sets the name
func WithControllerName(name string) ControllerBuilderOption {
	return func(c *simulatedControllerImpl) {
		c.name = name
	}
}

// WithControllerSerial overrides the generated serial.
//
// Parameters:
//   - serial: the serial string
//
// Returns:
//   - ControllerBuilderOption: a function that sets the serial
func WithControllerSerial(serial string) ControllerBuilderOption {
	return func(c *simulatedControllerImpl) {
		c.serial = serial
	}
}

// WithControllerPose places the controller at pose instead of its default spot beside the head.
//
// Parameters:
//   - pose: the starting pose relative to the tracking origin
//
// Returns:
//   - ControllerBuilderOption: a function that sets the pose
func WithControllerPose(pose common.Pose) ControllerBuilderOption {
	return func(c *simulatedControllerImpl) {
		c.pose = pose
	}
}

// WithControllerActive sets whether the controller starts connected.
//
// Parameters:
//   - active: the starting state
//
// Returns:
//   - ControllerBuilderOption: a function that sets the starting state
func WithControllerActive(active bool) ControllerBuilderOption {
	return func(c *simulatedControllerImpl) {
		c.active = active
	}
}
