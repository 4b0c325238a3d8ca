package target

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/Carmen-Shannon/oxy-xr/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
)

// DisplayMode is a resolution and refresh rate a display supports.
type DisplayMode struct {
	Width, Height uint32
	// RefreshMHz is the refresh rate in millihertz.
	RefreshMHz uint32
}

// Pixels returns the pixel count of the mode.
func (m DisplayMode) Pixels() uint64 {
	return uint64(m.Width) * uint64(m.Height)
}

// FrameIntervalNs returns the refresh interval of a mode refreshing at refreshMHz millihertz.
//
// Parameters:
//   - refreshMHz: the refresh rate in millihertz
//
// Returns:
//   - int64: the interval in nanoseconds, 0 for a zero rate
func FrameIntervalNs(refreshMHz uint32) int64 {
	if refreshMHz == 0 {
		return 0
	}
	return 1_000_000_000_000 / int64(refreshMHz)
}

// SelectDisplayMode picks the mode with the most pixels, breaking ties by refresh rate, unless
// pinned names a valid index.
//
// Parameters:
//   - modes: the modes the display offers
//   - pinned: a user-selected index, or -1
//
// Returns:
//   - int: the index of the chosen mode
//   - error: error if modes is empty or pinned is out of range
func SelectDisplayMode(modes []DisplayMode, pinned int) (int, error) {
	if len(modes) == 0 {
		return -1, fmt.Errorf("display offers no modes")
	}
	if pinned >= 0 {
		if pinned >= len(modes) {
			return -1, fmt.Errorf("pinned mode %d out of %d", pinned, len(modes))
		}
		return pinned, nil
	}

	best := 0
	for i, m := range modes[1:] {
		b := modes[best]
		if m.Pixels() > b.Pixels() || (m.Pixels() == b.Pixels() && m.RefreshMHz > b.RefreshMHz) {
			best = i + 1
		}
	}
	return best, nil
}

// PlaneAlpha is a bitmask of the ways a display plane can blend with what is behind it.
type PlaneAlpha uint32

const (
	PlaneAlphaOpaque PlaneAlpha = 1 << iota
	PlaneAlphaGlobal
	PlaneAlphaPerPixel
	PlaneAlphaPerPixelPremultiplied
)

// SelectAlphaMode picks per-pixel premultiplied over per-pixel over global alpha, falling back
// to opaque.
//
// Parameters:
//   - supported: the modes the plane supports
//
// Returns:
//   - PlaneAlpha: the chosen mode, 0 if supported is empty
func SelectAlphaMode(supported PlaneAlpha) PlaneAlpha {
	for _, m := range []PlaneAlpha{PlaneAlphaPerPixelPremultiplied, PlaneAlphaPerPixel, PlaneAlphaGlobal, PlaneAlphaOpaque} {
		if supported&m != 0 {
			return m
		}
	}
	return 0
}

// compositeAlphaModes maps the plane alpha modes onto surface composite modes.
var compositeAlphaModes = map[PlaneAlpha]wgpu.CompositeAlphaMode{
	PlaneAlphaOpaque:                wgpu.CompositeAlphaModeOpaque,
	PlaneAlphaGlobal:                wgpu.CompositeAlphaModeInherit,
	PlaneAlphaPerPixel:              wgpu.CompositeAlphaModeUnpremultiplied,
	PlaneAlphaPerPixelPremultiplied: wgpu.CompositeAlphaModePremultiplied,
}

// selectCompositeAlpha applies SelectAlphaMode to the modes a surface reports.
func selectCompositeAlpha(modes []wgpu.CompositeAlphaMode) wgpu.CompositeAlphaMode {
	var supported PlaneAlpha
	for plane, mode := range compositeAlphaModes {
		if slices.Contains(modes, mode) {
			supported |= plane
		}
	}
	if chosen := SelectAlphaMode(supported); chosen != 0 {
		return compositeAlphaModes[chosen]
	}
	if len(modes) > 0 {
		return modes[0]
	}
	return wgpu.CompositeAlphaModeAuto
}

// Connector is a display output a Leaser can take over.
type Connector struct {
	ID   uint32
	Name string
	// Available is false for outputs the desktop is using.
	Available bool
	Modes     []DisplayMode
}

// Lease is exclusive access to a display. The window covers the whole display.
type Lease interface {
	Window() window.Window
	Close() error
}

// Leaser finds displays and takes exclusive control of one.
type Leaser interface {
	// Connectors lists the display outputs.
	//
	// Returns:
	//   - []Connector: the outputs
	//   - error: error if the display server cannot be queried
	Connectors() ([]Connector, error)

	// Lease takes exclusive control of a connector in the given mode.
	//
	// Parameters:
	//   - connector: the output to lease
	//   - mode: the display mode to set
	//
	// Returns:
	//   - Lease: the lease
	//   - error: error if the display server refuses
	Lease(connector Connector, mode DisplayMode) (Lease, error)
}

// SelectConnector picks the available connector with the lowest id.
//
// Parameters:
//   - connectors: the outputs reported by a Leaser
//
// Returns:
//   - Connector: the chosen output
//   - error: result.ErrIncompatibleDisplay if none is available
func SelectConnector(connectors []Connector) (Connector, error) {
	var best *Connector
	for i := range connectors {
		c := &connectors[i]
		if !c.Available {
			continue
		}
		if best == nil || c.ID < best.ID {
			best = c
		}
	}
	if best == nil {
		return Connector{}, result.Errorf(result.IncompatibleDisplay, "no display available for lease among %d", len(connectors))
	}
	return *best, nil
}

// monitorLeaser treats every non-primary monitor as a leasable display and takes it over with
// a fullscreen window.
type monitorLeaser struct{}

// NewMonitorLeaser returns a Leaser backed by the desktop's monitor list.
//
// Returns:
//   - Leaser: the leaser
func NewMonitorLeaser() Leaser {
	return monitorLeaser{}
}

func (monitorLeaser) Connectors() ([]Connector, error) {
	monitors, err := window.Monitors()
	if err != nil {
		return nil, err
	}
	out := make([]Connector, 0, len(monitors))
	for _, m := range monitors {
		c := Connector{
			ID:        uint32(m.Index),
			Name:      m.Name,
			Available: !m.Primary,
		}
		for _, vm := range m.Modes {
			c.Modes = append(c.Modes, DisplayMode{
				Width:      uint32(vm.Width),
				Height:     uint32(vm.Height),
				RefreshMHz: uint32(vm.RefreshHz) * 1000,
			})
		}
		out = append(out, c)
	}
	return out, nil
}

type monitorLease struct {
	win window.Window
}

func (l *monitorLease) Window() window.Window { return l.win }

func (l *monitorLease) Close() error { return l.win.Close() }

func (monitorLeaser) Lease(connector Connector, mode DisplayMode) (Lease, error) {
	win, err := window.NewWindow(
		window.WithTitle(connector.Name),
		window.WithFullscreen(int(connector.ID), window.VideoMode{
			Width:     int(mode.Width),
			Height:    int(mode.Height),
			RefreshHz: int(mode.RefreshMHz / 1000),
		}),
	)
	if err != nil {
		return nil, err
	}
	return &monitorLease{win: win}, nil
}
