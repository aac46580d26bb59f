// Package output tracks the compositor's outputs: their pixel modes,
// positions, transforms and scale factors, in the order they were
// advertised.
package output

import (
	"errors"
	"fmt"

	"github.com/wayfreeze/wayfreeze/internal/scale"
	"github.com/wayfreeze/wayfreeze/pkg/wlclient"
)

// ErrNoOutputs means enumeration finished without a single output.
var ErrNoOutputs = errors.New("compositor advertised no outputs")

// Output is the accumulated state of one wl_output.
type Output struct {
	WL  *wlclient.Output
	Xdg *wlclient.XdgOutput

	Name        string
	Make, Model string

	// Position and transform from wl_output.geometry.
	X, Y      int32
	Transform int32

	// Current mode in physical pixels.
	PixelWidth  int32
	PixelHeight int32

	// Logical geometry from xdg-output, when available.
	LogicalX, LogicalY          int32
	LogicalWidth, LogicalHeight int32

	// Scale starts from the integer wl_output scale and is refined by
	// per-surface preferred scale events.
	Scale scale.Factor

	done bool
}

// Label identifies the output in logs.
func (o *Output) Label() string {
	if o.Name != "" {
		return o.Name
	}
	return fmt.Sprintf("output-%d", o.WL.ID())
}

// Done reports whether the initial state burst has completed.
func (o *Output) Done() bool { return o.done }

// Registry holds every known output, keyed by proxy id and ordered by
// advertisement.
type Registry struct {
	outputs []*Output
	byID    map[uint32]*Output
	byXdg   map[uint32]*Output
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[uint32]*Output),
		byXdg: make(map[uint32]*Output),
	}
}

// Add registers a freshly bound output with a scale of 1 until events
// say otherwise.
func (r *Registry) Add(wl *wlclient.Output) *Output {
	o := &Output{WL: wl, Scale: scale.FromInteger(1)}
	r.outputs = append(r.outputs, o)
	r.byID[wl.ID()] = o
	return o
}

// AttachXdg associates the xdg-output extension object with an output
// so logical geometry events can be routed to it.
func (r *Registry) AttachXdg(o *Output, xdg *wlclient.XdgOutput) {
	o.Xdg = xdg
	r.byXdg[xdg.ID()] = o
}

// Get resolves an output by wl_output id.
func (r *Registry) Get(id uint32) (*Output, bool) {
	o, ok := r.byID[id]
	return o, ok
}

// Enumerate returns the outputs in advertisement order. The slice is
// shared; callers only read it.
func (r *Registry) Enumerate() []*Output {
	return r.outputs
}

// Len is the number of known outputs.
func (r *Registry) Len() int {
	return len(r.outputs)
}

// AllDone reports whether every output finished its state burst.
func (r *Registry) AllDone() bool {
	for _, o := range r.outputs {
		if !o.done {
			return false
		}
	}
	return true
}

// HandleGeometry records position and transform.
func (r *Registry) HandleGeometry(ev wlclient.OutputGeometryEvent) {
	if o, ok := r.byID[ev.Output]; ok {
		o.X, o.Y = ev.X, ev.Y
		o.Make, o.Model = ev.Make, ev.Model
		o.Transform = ev.Transform
	}
}

// HandleMode records the current mode; other advertised modes are
// irrelevant here.
func (r *Registry) HandleMode(ev wlclient.OutputModeEvent) {
	if ev.Flags&wlclient.ModeCurrent == 0 {
		return
	}
	if o, ok := r.byID[ev.Output]; ok {
		o.PixelWidth, o.PixelHeight = ev.Width, ev.Height
	}
}

// HandleScale seeds the scale factor from the integer output scale.
func (r *Registry) HandleScale(ev wlclient.OutputScaleEvent) {
	if o, ok := r.byID[ev.Output]; ok {
		o.Scale = scale.FromInteger(ev.Factor)
	}
}

// HandleName records the output name.
func (r *Registry) HandleName(ev wlclient.OutputNameEvent) {
	if o, ok := r.byID[ev.Output]; ok {
		o.Name = ev.Name
	}
}

// HandleDone marks the output's state burst complete.
func (r *Registry) HandleDone(ev wlclient.OutputDoneEvent) {
	if o, ok := r.byID[ev.Output]; ok {
		o.done = true
	}
}

// HandleLogicalPosition records the xdg-output position.
func (r *Registry) HandleLogicalPosition(ev wlclient.XdgOutputLogicalPositionEvent) {
	if o, ok := r.byXdg[ev.XdgOutput]; ok {
		o.LogicalX, o.LogicalY = ev.X, ev.Y
	}
}

// HandleLogicalSize records the xdg-output size.
func (r *Registry) HandleLogicalSize(ev wlclient.XdgOutputLogicalSizeEvent) {
	if o, ok := r.byXdg[ev.XdgOutput]; ok {
		o.LogicalWidth, o.LogicalHeight = ev.Width, ev.Height
	}
}
