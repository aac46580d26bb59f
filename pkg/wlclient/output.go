package wlclient

import "github.com/wayfreeze/wayfreeze/pkg/wlclient/wire"

// wl_output transform values.
const (
	TransformNormal     int32 = 0
	Transform90         int32 = 1
	Transform180        int32 = 2
	Transform270        int32 = 3
	TransformFlipped    int32 = 4
	TransformFlipped90  int32 = 5
	TransformFlipped180 int32 = 6
	TransformFlipped270 int32 = 7
)

// wl_output mode flags.
const (
	ModeCurrent   uint32 = 1
	ModePreferred uint32 = 2
)

const (
	outputEvtGeometry = 0
	outputEvtMode     = 1
	outputEvtDone     = 2
	outputEvtScale    = 3
	outputEvtName     = 4

	xdgOutputManagerDestroy      = 0
	xdgOutputManagerGetXdgOutput = 1

	xdgOutputDestroy = 0

	xdgOutputEvtLogicalPosition = 0
	xdgOutputEvtLogicalSize     = 1
	xdgOutputEvtDone            = 2
	xdgOutputEvtName            = 3
)

// Output is a wl_output global. Its state arrives as a burst of events
// finished by OutputDoneEvent.
type Output struct {
	object
	version uint32
}

// Version is the version the output was bound at.
func (o *Output) Version() uint32 { return o.version }

// OutputGeometryEvent describes the output's position and physical
// properties.
type OutputGeometryEvent struct {
	Output         uint32
	X, Y           int32
	PhysicalWidth  int32
	PhysicalHeight int32
	Subpixel       int32
	Make, Model    string
	Transform      int32
}

func (OutputGeometryEvent) String() string { return "wl_output.geometry" }

// OutputModeEvent describes one display mode in physical pixels.
type OutputModeEvent struct {
	Output  uint32
	Flags   uint32
	Width   int32
	Height  int32
	Refresh int32
}

func (OutputModeEvent) String() string { return "wl_output.mode" }

// OutputDoneEvent closes a burst of output state events.
type OutputDoneEvent struct {
	Output uint32
}

func (OutputDoneEvent) String() string { return "wl_output.done" }

// OutputScaleEvent is the integer scale of the output.
type OutputScaleEvent struct {
	Output uint32
	Factor int32
}

func (OutputScaleEvent) String() string { return "wl_output.scale" }

// OutputNameEvent names the output (eDP-1 style). Sent since version 4.
type OutputNameEvent struct {
	Output uint32
	Name   string
}

func (OutputNameEvent) String() string { return "wl_output.name" }

func decodeOutput(m *wire.Message) Event {
	switch m.Opcode {
	case outputEvtGeometry:
		return OutputGeometryEvent{
			Output:         m.Object,
			X:              m.Int(),
			Y:              m.Int(),
			PhysicalWidth:  m.Int(),
			PhysicalHeight: m.Int(),
			Subpixel:       m.Int(),
			Make:           m.Str(),
			Model:          m.Str(),
			Transform:      m.Int(),
		}
	case outputEvtMode:
		return OutputModeEvent{
			Output:  m.Object,
			Flags:   m.Uint(),
			Width:   m.Int(),
			Height:  m.Int(),
			Refresh: m.Int(),
		}
	case outputEvtDone:
		return OutputDoneEvent{Output: m.Object}
	case outputEvtScale:
		return OutputScaleEvent{Output: m.Object, Factor: m.Int()}
	case outputEvtName:
		return OutputNameEvent{Output: m.Object, Name: m.Str()}
	}
	return nil
}

// XdgOutputManager is the zxdg_output_manager_v1 global.
type XdgOutputManager struct {
	object
}

// GetXdgOutput creates the logical-geometry extension object for an
// output.
func (x *XdgOutputManager) GetXdgOutput(o *Output) (*XdgOutput, error) {
	xo := &XdgOutput{object{x.c, x.c.newID(kindXdgOutput)}}
	m := wire.NewMessage(x.id, xdgOutputManagerGetXdgOutput).
		PutUint(xo.id).
		PutUint(o.id)
	if err := x.c.request("zxdg_output_manager_v1.get_xdg_output", m); err != nil {
		return nil, err
	}
	return xo, nil
}

// Destroy destroys the manager; xdg_output objects stay alive.
func (x *XdgOutputManager) Destroy() error {
	return x.c.request("zxdg_output_manager_v1.destroy", wire.NewMessage(x.id, xdgOutputManagerDestroy))
}

// XdgOutput is a zxdg_output_v1.
type XdgOutput struct {
	object
}

// XdgOutputLogicalPositionEvent is the output position in the logical
// coordinate space.
type XdgOutputLogicalPositionEvent struct {
	XdgOutput uint32
	X, Y      int32
}

func (XdgOutputLogicalPositionEvent) String() string { return "zxdg_output_v1.logical_position" }

// XdgOutputLogicalSizeEvent is the output size in logical pixels, with
// scaling and transform applied.
type XdgOutputLogicalSizeEvent struct {
	XdgOutput     uint32
	Width, Height int32
}

func (XdgOutputLogicalSizeEvent) String() string { return "zxdg_output_v1.logical_size" }

// XdgOutputDoneEvent closes an xdg_output state burst. Deprecated in
// version 3 of the protocol, where wl_output.done covers it, but still
// sent by older compositors.
type XdgOutputDoneEvent struct {
	XdgOutput uint32
}

func (XdgOutputDoneEvent) String() string { return "zxdg_output_v1.done" }

// XdgOutputNameEvent names the output.
type XdgOutputNameEvent struct {
	XdgOutput uint32
	Name      string
}

func (XdgOutputNameEvent) String() string { return "zxdg_output_v1.name" }

func decodeXdgOutput(m *wire.Message) Event {
	switch m.Opcode {
	case xdgOutputEvtLogicalPosition:
		return XdgOutputLogicalPositionEvent{XdgOutput: m.Object, X: m.Int(), Y: m.Int()}
	case xdgOutputEvtLogicalSize:
		return XdgOutputLogicalSizeEvent{XdgOutput: m.Object, Width: m.Int(), Height: m.Int()}
	case xdgOutputEvtDone:
		return XdgOutputDoneEvent{XdgOutput: m.Object}
	case xdgOutputEvtName:
		return XdgOutputNameEvent{XdgOutput: m.Object, Name: m.Str()}
	}
	return nil
}

// Destroy destroys the xdg_output.
func (x *XdgOutput) Destroy() error {
	return x.c.request("zxdg_output_v1.destroy", wire.NewMessage(x.id, xdgOutputDestroy))
}
