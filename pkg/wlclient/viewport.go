package wlclient

import "github.com/wayfreeze/wayfreeze/pkg/wlclient/wire"

const (
	viewporterGetViewport = 1

	viewportSetSource      = 1
	viewportSetDestination = 2
	viewportDestroy        = 0

	fractionalScaleMgrGetFractionalScale = 1

	fractionalScaleDestroy      = 0
	fractionalScaleEvtPreferred = 0
)

// Viewporter is the wp_viewporter global.
type Viewporter struct {
	object
}

// GetViewport extends a surface with crop and scale state.
func (v *Viewporter) GetViewport(s *Surface) (*Viewport, error) {
	vp := &Viewport{object{v.c, v.c.newID(kindViewport)}}
	m := wire.NewMessage(v.id, viewporterGetViewport).
		PutUint(vp.id).
		PutUint(s.id)
	if err := v.c.request("wp_viewporter.get_viewport", m); err != nil {
		return nil, err
	}
	return vp, nil
}

// Viewport is a wp_viewport.
type Viewport struct {
	object
}

// SetSource selects the source rectangle of the buffer. All -1 resets
// to the full buffer.
func (v *Viewport) SetSource(x, y, width, height wire.Fixed) error {
	m := wire.NewMessage(v.id, viewportSetSource).
		PutFixed(x).
		PutFixed(y).
		PutFixed(width).
		PutFixed(height)
	return v.c.request("wp_viewport.set_source", m)
}

// SetDestination sets the surface size the buffer is scaled to, in
// logical pixels.
func (v *Viewport) SetDestination(width, height int32) error {
	m := wire.NewMessage(v.id, viewportSetDestination).
		PutInt(width).
		PutInt(height)
	return v.c.request("wp_viewport.set_destination", m)
}

// Destroy removes the viewport from its surface.
func (v *Viewport) Destroy() error {
	return v.c.request("wp_viewport.destroy", wire.NewMessage(v.id, viewportDestroy))
}

// FractionalScaleManager is the wp_fractional_scale_manager_v1 global.
type FractionalScaleManager struct {
	object
}

// GetFractionalScale subscribes a surface to preferred scale events.
func (f *FractionalScaleManager) GetFractionalScale(s *Surface) (*FractionalScale, error) {
	fs := &FractionalScale{object{f.c, f.c.newID(kindFractionalScale)}}
	m := wire.NewMessage(f.id, fractionalScaleMgrGetFractionalScale).
		PutUint(fs.id).
		PutUint(s.id)
	if err := f.c.request("wp_fractional_scale_manager_v1.get_fractional_scale", m); err != nil {
		return nil, err
	}
	return fs, nil
}

// FractionalScale is a wp_fractional_scale_v1.
type FractionalScale struct {
	object
}

// PreferredScaleEvent is the scale the compositor renders the surface
// at, as a numerator over 120.
type PreferredScaleEvent struct {
	FractionalScale uint32
	Scale           uint32
}

func (PreferredScaleEvent) String() string { return "wp_fractional_scale_v1.preferred_scale" }

func decodeFractionalScale(m *wire.Message) Event {
	if m.Opcode == fractionalScaleEvtPreferred {
		return PreferredScaleEvent{FractionalScale: m.Object, Scale: m.Uint()}
	}
	return nil
}

// Destroy unsubscribes the surface from scale events.
func (f *FractionalScale) Destroy() error {
	return f.c.request("wp_fractional_scale_v1.destroy", wire.NewMessage(f.id, fractionalScaleDestroy))
}
