package device

type KeyboardBuilderOption func(*keyboardDriverImpl)

// WithLeftController drives c with Q, W and A.
//
// Parameters:
//   - c: the left hand controller
//
// Returns:
//   - KeyboardBuilderOption: a function that sets the left controller
func WithLeftController(c SimulatedController) KeyboardBuilderOption {
	return func(k *keyboardDriverImpl) {
		k.left = c
	}
}

// WithRightController drives c with O, P and L.
//
// Parameters:
//   - c: the right hand controller
//
// Returns:
//   - KeyboardBuilderOption: a function that sets the right controller
func WithRightController(c SimulatedController) KeyboardBuilderOption {
	return func(k *keyboardDriverImpl) {
		k.right = c
	}
}

// WithHeadset switches the motion model of h with the 1, 2 and 3 keys.
//
// Parameters:
//   - h: the simulated headset
//
// Returns:
//   - KeyboardBuilderOption: a function that sets the headset
func WithHeadset(h SimulatedHMD) KeyboardBuilderOption {
	return func(k *keyboardDriverImpl) {
		k.hmd = h
	}
}

// WithExitHandler calls fn when Esc is pressed.
//
// Parameters:
//   - fn: typically a session exit request
//
// Returns:
//   - KeyboardBuilderOption: a function that sets the exit handler
func WithExitHandler(fn func()) KeyboardBuilderOption {
	return func(k *keyboardDriverImpl) {
		k.onExit = fn
	}
}
