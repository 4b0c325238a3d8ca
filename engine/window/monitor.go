package window

import (
	"github.com/go-gl/glfw/v3.3/glfw"
)

// VideoMode is a resolution and refresh rate a monitor supports.
type VideoMode struct {
	Width, Height int
	RefreshHz     int
}

// Monitor describes a connected display.
type Monitor struct {
	// Index is the position in GLFW's monitor list, stable while no display is hot-plugged.
	Index   int
	Name    string
	Primary bool
	Current VideoMode
	Modes   []VideoMode
}

// Monitors lists the connected displays.
//
// Returns:
//   - []Monitor: the monitors, primary first as GLFW reports them
//   - error: error if GLFW could not be initialized
func Monitors() ([]Monitor, error) {
	if err := thread.acquire(); err != nil {
		return nil, err
	}
	defer thread.release()

	var out []Monitor
	err := thread.do(func() {
		primary := glfw.GetPrimaryMonitor()
		for i, m := range glfw.GetMonitors() {
			mon := Monitor{
				Index:   i,
				Name:    m.GetName(),
				Primary: m == primary,
			}
			if vm := m.GetVideoMode(); vm != nil {
				mon.Current = VideoMode{Width: vm.Width, Height: vm.Height, RefreshHz: vm.RefreshRate}
			}
			for _, vm := range m.GetVideoModes() {
				mon.Modes = append(mon.Modes, VideoMode{Width: vm.Width, Height: vm.Height, RefreshHz: vm.RefreshRate})
			}
			out = append(out, mon)
		}
	})
	return out, err
}
