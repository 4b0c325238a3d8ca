package device

import (
	"github.com/Carmen-Shannon/oxy-xr/common"
)

// KeyboardDriver turns window key events into simulated controller and headset state.
// It is fed from the window thread's event queue, never from GLFW callbacks directly.
type KeyboardDriver interface {
	// HandleKey applies one key event.
	//
	// Parameters:
	//   - key: a key code from the common package
	//   - pressed: true on press, false on release
	//
	// Returns:
	//   - bool: true if the key was bound to something
	HandleKey(key int, pressed bool) bool
}

type keyboardDriverImpl struct {
	left  SimulatedController
	right SimulatedController
	hmd   SimulatedHMD

	onExit func()
}

var _ KeyboardDriver = &keyboardDriverImpl{}

// NewKeyboardDriver creates a driver. Devices that are not configured are simply not driven.
//
// Parameters:
//   - options: functional options naming the driven devices
//
// Returns:
//   - KeyboardDriver: the driver
func NewKeyboardDriver(options ...KeyboardBuilderOption) KeyboardDriver {
	k := &keyboardDriverImpl{}
	for _, option := range options {
		option(k)
	}
	return k
}

func (k *keyboardDriverImpl) HandleKey(key int, pressed bool) bool {
	switch key {
	case common.KeyQ:
		return setComponent(k.left, "input/select/click", pressed)
	case common.KeyW:
		return setComponent(k.left, "input/menu/click", pressed)
	case common.KeyA:
		return toggleActive(k.left, pressed)
	case common.KeyO:
		return setComponent(k.right, "input/select/click", pressed)
	case common.KeyP:
		return setComponent(k.right, "input/menu/click", pressed)
	case common.KeyL:
		return toggleActive(k.right, pressed)
	case common.KeySpace:
		l := setComponent(k.left, "input/select/click", pressed)
		r := setComponent(k.right, "input/select/click", pressed)
		return l || r
	case common.KeyEsc:
		if k.onExit == nil {
			return false
		}
		if pressed {
			k.onExit()
		}
		return true
	case common.Key1:
		return k.setMotion(MotionStationary, pressed)
	case common.Key2:
		return k.setMotion(MotionRotate, pressed)
	case common.Key3:
		return k.setMotion(MotionWobble, pressed)
	}
	return false
}

func (k *keyboardDriverImpl) setMotion(m Motion, pressed bool) bool {
	if k.hmd == nil {
		return false
	}
	if pressed {
		k.hmd.SetMotion(m)
	}
	return true
}

func setComponent(c SimulatedController, component string, pressed bool) bool {
	if c == nil {
		return false
	}
	name, ok := c.InputFor(component)
	if !ok {
		return false
	}
	if err := c.SetBool(name, pressed); err != nil {
		common.ComponentLogger("device").Warn("keyboard binding rejected", "input", name, "error", err)
		return false
	}
	return true
}

func toggleActive(c SimulatedController, pressed bool) bool {
	if c == nil {
		return false
	}
	if pressed {
		c.SetActive(!c.Active())
	}
	return true
}
