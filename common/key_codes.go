package common

// Key codes consumed by the keyboard-driven simulated controllers.
// Values match GLFW key codes, which use ASCII for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyQ     = 81  // left controller select
	KeyW     = 87  // left controller menu
	KeyA     = 65  // left controller active toggle
	KeyO     = 79  // right controller select
	KeyP     = 80  // right controller menu
	KeyL     = 76  // right controller active toggle
	KeySpace = 32  // both controllers select
	KeyEsc   = 256 // request session exit (GLFW)

	Key1 = 49 // head motion: stationary
	Key2 = 50 // head motion: rotate
	Key3 = 51 // head motion: wobble
)
